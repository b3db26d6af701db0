package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends an audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, provider_order_id,
			event_type, event_source,
			expected_amount, received_amount, currency, amounts_match,
			payment_status, payload, error_message,
			ip_address, user_agent, client,
			processing_time_ms, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.ProviderOrderID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.Currency, audit.AmountsMatch,
		audit.PaymentStatus, audit.Payload, audit.ErrorMessage,
		audit.IPAddress, audit.UserAgent, audit.Client,
		audit.ProcessingTimeMs, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
		}).Error("Failed to write payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"booking_id": audit.BookingID,
	}).Debug("Payment audit logged")

	return nil
}

// GetByBookingID returns a booking's audit trail in order
func (r *PaymentAuditRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	audits := []models.PaymentAudit{}
	query := `
		SELECT id, booking_id, provider_order_id, event_type, event_source,
		       expected_amount, received_amount, currency, amounts_match,
		       payment_status, payload, error_message,
		       ip_address, user_agent, client, processing_time_ms, created_at
		FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get audits for booking: %w", err)
	}
	return audits, nil
}
