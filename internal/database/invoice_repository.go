package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/travelcraft/booking-backend/internal/models"
)

// InvoiceRepository reads invoices and stores rendered documents.
// Invoices themselves are inserted by BookingRepository.ConfirmBooking.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository creates a new InvoiceRepository
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, invoice_number, booking_id, customer_name, customer_email, customer_phone,
	line_items, subtotal, discount_amount, total_amount, currency, status, payment_reference,
	document_url, document_checksum, created_at, paid_at`

// GetByNumber returns an invoice by its number
func (r *InvoiceRepository) GetByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1`, number)
}

// GetByBookingID returns the invoice issued for a booking
func (r *InvoiceRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE booking_id = $1`, bookingID)
}

func (r *InvoiceRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.GetContext(ctx, &inv, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

// ListMissingDocuments returns paid invoices whose document was never stored
func (r *InvoiceRepository) ListMissingDocuments(ctx context.Context, limit int) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = 'paid' AND document_url IS NULL
		ORDER BY created_at
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &invoices, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list invoices without documents: %w", err)
	}
	return invoices, nil
}

// SaveDocument stores the rendered document and links it from the invoice.
// Line items are never touched.
func (r *InvoiceRepository) SaveDocument(ctx context.Context, doc *models.InvoiceDocument, url string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoice_documents (invoice_number, content_type, body, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (invoice_number) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			body = EXCLUDED.body,
			checksum = EXCLUDED.checksum`,
		doc.InvoiceNumber, doc.ContentType, doc.Body, doc.Checksum, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store invoice document: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE invoices SET document_url = $2, document_checksum = $3
		WHERE invoice_number = $1`,
		doc.InvoiceNumber, url, doc.Checksum)
	if err != nil {
		return fmt.Errorf("failed to link invoice document: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrNotFound
	}

	return tx.Commit()
}

// GetDocument returns the stored document for an invoice
func (r *InvoiceRepository) GetDocument(ctx context.Context, number string) (*models.InvoiceDocument, error) {
	var doc models.InvoiceDocument
	query := `SELECT invoice_number, content_type, body, checksum, created_at
		FROM invoice_documents WHERE invoice_number = $1`
	if err := r.db.GetContext(ctx, &doc, query, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice document: %w", err)
	}
	return &doc, nil
}
