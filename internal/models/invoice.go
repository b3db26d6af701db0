package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the payment status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// InvoiceLineItem is one itemized charge. Negative amounts are discounts.
type InvoiceLineItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Amount    float64 `json:"amount"`
}

// InvoiceLineItems is stored as JSONB and never updated after insert
type InvoiceLineItems []InvoiceLineItem

func (l InvoiceLineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (l *InvoiceLineItems) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for InvoiceLineItems")
	}
	return json.Unmarshal(bytes, l)
}

// Invoice is the immutable financial record of a confirmed booking
type Invoice struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	InvoiceNumber    string           `json:"invoice_number" db:"invoice_number"`
	BookingID        uuid.UUID        `json:"booking_id" db:"booking_id"`
	CustomerName     string           `json:"customer_name" db:"customer_name"`
	CustomerEmail    string           `json:"customer_email" db:"customer_email"`
	CustomerPhone    string           `json:"customer_phone" db:"customer_phone"`
	LineItems        InvoiceLineItems `json:"line_items" db:"line_items"`
	Subtotal         float64          `json:"subtotal" db:"subtotal"`
	DiscountAmount   float64          `json:"discount_amount" db:"discount_amount"`
	TotalAmount      float64          `json:"total_amount" db:"total_amount"`
	Currency         string           `json:"currency" db:"currency"`
	Status           InvoiceStatus    `json:"status" db:"status"`
	PaymentReference *string          `json:"payment_reference,omitempty" db:"payment_reference"`
	DocumentURL      *string          `json:"document_url,omitempty" db:"document_url"`
	DocumentChecksum *string          `json:"document_checksum,omitempty" db:"document_checksum"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	PaidAt           *time.Time       `json:"paid_at,omitempty" db:"paid_at"`
}

// InvoiceNumberFor derives the invoice number from a booking id.
// The same booking always yields the same number.
func InvoiceNumberFor(prefix string, bookingID uuid.UUID) string {
	hex := strings.ReplaceAll(bookingID.String(), "-", "")
	return prefix + "-" + strings.ToUpper(hex[:12])
}

// InvoiceDocument is the rendered receipt stored alongside the invoice
type InvoiceDocument struct {
	InvoiceNumber string    `json:"invoice_number" db:"invoice_number"`
	ContentType   string    `json:"content_type" db:"content_type"`
	Body          string    `json:"body" db:"body"`
	Checksum      string    `json:"checksum" db:"checksum"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// BookingContext is everything the issuer needs to itemize a booking
type BookingContext struct {
	Booking *Booking
	Title   string // Program title or itinerary name
}
