package kafka

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on the booking events topic
const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingFailed    = "booking.failed"
)

// BookingEvent is the payload of the booking events topic
type BookingEvent struct {
	Type          string    `json:"type"`
	BookingID     uuid.UUID `json:"booking_id"`
	UserID        uuid.UUID `json:"user_id"`
	Status        string    `json:"status"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NotificationMessage is the payload of the notifications topic
type NotificationMessage struct {
	BookingID   uuid.UUID `json:"booking_id"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	DeepLink    string    `json:"deep_link"`
	CreatedAt   time.Time `json:"created_at"`
}
