package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
)

// BookingRepository handles booking persistence and the confirmation transaction
type BookingRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB, logger *logrus.Logger) *BookingRepository {
	return &BookingRepository{db: db, logger: logger}
}

const bookingColumns = `id, user_id, status, program_id, custom_trip_id,
	traveler_name, traveler_email, traveler_phone, number_of_travelers, travel_date,
	addons, promo_id, pricing, final_amount, currency,
	provider_order_id, gateway_uid, gateway_token, payment_status, payment_url, payment_expires_at,
	failure_reason, invoice_number, idempotency_key, confirmed_at, created_at, updated_at`

// ============================================================================
// CRUD
// ============================================================================

// Create inserts a booking in payment_pending
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, user_id, status, program_id, custom_trip_id,
			traveler_name, traveler_email, traveler_phone, number_of_travelers, travel_date,
			addons, promo_id, pricing, final_amount, currency,
			payment_expires_at, idempotency_key, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.Status, b.ProgramID, b.CustomTripID,
		b.TravelerName, b.TravelerEmail, b.TravelerPhone, b.NumberOfTravelers, b.TravelDate,
		b.Addons, b.PromoID, b.Pricing, b.FinalAmount, b.Currency,
		b.PaymentExpiresAt, b.IdempotencyKey, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// Resubmit overwrites the details of a booking re-entered after Retry.
// Only a booking in details may be resubmitted.
func (r *BookingRepository) Resubmit(ctx context.Context, b *models.Booking) error {
	query := `
		UPDATE bookings SET
			status = $2, program_id = $3, custom_trip_id = $4,
			traveler_name = $5, traveler_email = $6, traveler_phone = $7,
			number_of_travelers = $8, travel_date = $9,
			addons = $10, promo_id = $11, pricing = $12, final_amount = $13, currency = $14,
			payment_expires_at = $15,
			provider_order_id = NULL, gateway_uid = NULL, gateway_token = NULL, payment_status = NULL, payment_url = NULL,
			failure_reason = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'details'`

	result, err := r.db.ExecContext(ctx, query,
		b.ID, b.Status, b.ProgramID, b.CustomTripID,
		b.TravelerName, b.TravelerEmail, b.TravelerPhone,
		b.NumberOfTravelers, b.TravelDate,
		b.Addons, b.PromoID, b.Pricing, b.FinalAmount, b.Currency,
		b.PaymentExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to resubmit booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// GetByID returns a booking by id
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByProviderOrderID finds the booking a gateway order belongs to
func (r *BookingRepository) GetByProviderOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE provider_order_id = $1`, orderID)
}

// GetByIdempotencyKey finds a prior submit by the same user and key
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Booking, error) {
	return r.getOne(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.GetContext(ctx, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &bookings, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// Delete discards a booking abandoned before verification
func (r *BookingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM bookings WHERE id = $1 AND status IN ('details', 'payment_pending', 'failed')`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// ============================================================================
// STATUS TRANSITIONS (conditional on the current status)
// ============================================================================

// SetPaymentIntent stores the gateway intent on a payment_pending booking
func (r *BookingRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, gatewayUID, gatewayToken, paymentURL string) error {
	query := `
		UPDATE bookings
		SET gateway_uid = $2, gateway_token = $3, payment_url = $4, payment_status = 'pending', updated_at = NOW()
		WHERE id = $1 AND status = 'payment_pending'`
	result, err := r.db.ExecContext(ctx, query, id, gatewayUID, gatewayToken, paymentURL)
	if err != nil {
		return fmt.Errorf("failed to store payment intent: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// MarkVerifying records the client's claim and moves payment_pending -> verifying
func (r *BookingRepository) MarkVerifying(ctx context.Context, id uuid.UUID, providerOrderID string) error {
	query := `
		UPDATE bookings
		SET status = 'verifying', provider_order_id = $2, payment_status = 'claimed', updated_at = NOW()
		WHERE id = $1 AND status = 'payment_pending'`
	result, err := r.db.ExecContext(ctx, query, id, providerOrderID)
	if err != nil {
		return fmt.Errorf("failed to mark booking verifying: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// MarkFailed moves a booking out of from into failed with a reason
func (r *BookingRepository) MarkFailed(ctx context.Context, id uuid.UUID, from models.BookingStatus, reason string) error {
	query := `
		UPDATE bookings
		SET status = 'failed', failure_reason = $3, payment_status = 'failed', updated_at = NOW()
		WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, reason)
	if err != nil {
		return fmt.Errorf("failed to mark booking failed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// ResetToDetails re-opens a failed booking for editing
func (r *BookingRepository) ResetToDetails(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE bookings SET status = 'details', updated_at = NOW() WHERE id = $1 AND status = 'failed'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// ============================================================================
// BACKGROUND JOB QUERIES
// ============================================================================

// ExpirePaymentPending fails payment_pending bookings whose payment window closed
// and which never received a gateway intent. Bookings with an intent are
// checked against the gateway first; see ListExpiredWithIntent.
func (r *BookingRepository) ExpirePaymentPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		UPDATE bookings
		SET status = 'failed', failure_reason = $3, payment_status = 'expired', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM bookings
			WHERE status = 'payment_pending' AND payment_expires_at < $1 AND gateway_uid IS NULL
			ORDER BY payment_expires_at
			LIMIT $2
		) AND status = 'payment_pending'
		RETURNING id`

	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, now, limit, models.FailureReasonPaymentTimeout); err != nil {
		return nil, fmt.Errorf("failed to expire bookings: %w", err)
	}
	return ids, nil
}

// ListExpiredWithIntent returns payment_pending bookings past their window
// that hold a gateway intent, oldest first
func (r *BookingRepository) ListExpiredWithIntent(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'payment_pending' AND payment_expires_at < $1 AND gateway_uid IS NOT NULL
		ORDER BY payment_expires_at
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &bookings, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	return bookings, nil
}

// ExpireBooking fails a single payment_pending booking with payment_timeout
func (r *BookingRepository) ExpireBooking(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE bookings
		SET status = 'failed', failure_reason = $2, payment_status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'payment_pending'`
	result, err := r.db.ExecContext(ctx, query, id, models.FailureReasonPaymentTimeout)
	if err != nil {
		return fmt.Errorf("failed to expire booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// ListStuckVerifying returns bookings that have been verifying since before cutoff
func (r *BookingRepository) ListStuckVerifying(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'verifying' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &bookings, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list verifying bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// CONFIRMATION
// ============================================================================

// ConfirmParams is everything committed together when a payment is verified
type ConfirmParams struct {
	BookingID     uuid.UUID
	GatewayUID    string
	PaymentStatus string
	PromoID       *uuid.UUID
	CustomTripID  *uuid.UUID
	Invoice       *models.Invoice
}

// ConfirmResult reports what the confirmation transaction changed
type ConfirmResult struct {
	PromoCounted   bool
	InvoiceCreated bool
}

// ConfirmBooking commits the verified booking in a single transaction:
// booking -> confirmed, promo usage +1 (only while under its limit), paid invoice
// insert keyed by booking id, and custom trip -> booked.
// Returns ErrInvalidTransition if the booking is not verifying.
func (r *BookingRepository) ConfirmBooking(ctx context.Context, p ConfirmParams) (*ConfirmResult, error) {
	if p.Invoice == nil {
		return nil, fmt.Errorf("invoice is required to confirm a booking")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Booking: verifying -> confirmed
	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'confirmed', gateway_uid = COALESCE(NULLIF($2, ''), gateway_uid),
		    payment_status = $3, invoice_number = $4, confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'verifying'`,
		p.BookingID, p.GatewayUID, p.PaymentStatus, p.Invoice.InvoiceNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, models.ErrInvalidTransition
	}

	res := &ConfirmResult{}

	// 2. Promo usage, bounded by the limit
	if p.PromoID != nil {
		result, err = tx.ExecContext(ctx, `
			UPDATE promo_codes
			SET usage_count = usage_count + 1
			WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`,
			*p.PromoID)
		if err != nil {
			return nil, fmt.Errorf("failed to increment promo usage: %w", err)
		}
		rows, _ = result.RowsAffected()
		res.PromoCounted = rows > 0
		if !res.PromoCounted {
			r.logger.WithFields(logrus.Fields{
				"booking_id": p.BookingID,
				"promo_id":   *p.PromoID,
			}).Warn("Promo limit reached before confirmation; usage not counted")
		}
	}

	// 3. Invoice, at most one per booking
	inv := p.Invoice
	result, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, invoice_number, booking_id, customer_name, customer_email, customer_phone,
			line_items, subtotal, discount_amount, total_amount, currency,
			status, payment_reference, created_at, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (booking_id) DO NOTHING`,
		inv.ID, inv.InvoiceNumber, inv.BookingID, inv.CustomerName, inv.CustomerEmail, inv.CustomerPhone,
		inv.LineItems, inv.Subtotal, inv.DiscountAmount, inv.TotalAmount, inv.Currency,
		inv.Status, inv.PaymentReference, inv.CreatedAt, inv.PaidAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}
	rows, _ = result.RowsAffected()
	res.InvoiceCreated = rows > 0

	// 4. Custom trip -> booked
	if p.CustomTripID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE custom_trips SET status = 'booked', updated_at = NOW()
			WHERE id = $1 AND status IN ('draft', 'quoted')`,
			*p.CustomTripID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark custom trip booked: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}
	return res, nil
}
