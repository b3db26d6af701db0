package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUSES (matches DB CHECK constraint on bookings.status)
// ============================================================================

// BookingStatus is the workflow state of a checkout attempt
type BookingStatus string

const (
	BookingStatusDetails        BookingStatus = "details"         // Traveler details entered, nothing charged
	BookingStatusPaymentPending BookingStatus = "payment_pending" // Gateway intent created, waiting for the client
	BookingStatusVerifying      BookingStatus = "verifying"       // Client claimed success, server check outstanding
	BookingStatusConfirmed      BookingStatus = "confirmed"       // Server-verified, invoiced
	BookingStatusFailed         BookingStatus = "failed"          // Declined, cancelled, timed out or verification failed
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusDetails:        {BookingStatusPaymentPending},
	BookingStatusPaymentPending: {BookingStatusVerifying, BookingStatusFailed},
	BookingStatusVerifying:      {BookingStatusConfirmed, BookingStatusFailed},
	BookingStatusFailed:         {BookingStatusDetails},
}

// CanTransitionTo reports whether the workflow allows s -> next
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsAbandonable reports whether the user can still walk away without side effects
func (s BookingStatus) IsAbandonable() bool {
	return s == BookingStatusDetails || s == BookingStatusPaymentPending || s == BookingStatusFailed
}

// Failure reasons stored on failed bookings
const (
	FailureReasonPaymentError       = "payment_error"
	FailureReasonPaymentCancelled   = "payment_cancelled"
	FailureReasonVerificationFailed = "verification_failed"
	FailureReasonPaymentTimeout     = "payment_timeout"
)

// AuthorizationOutcome is what the client reports after the gateway page
type AuthorizationOutcome string

const (
	AuthorizationSuccess   AuthorizationOutcome = "success"
	AuthorizationCancelled AuthorizationOutcome = "cancelled"
	AuthorizationError     AuthorizationOutcome = "error"
)

// ============================================================================
// SERVICE ADD-ONS
// ============================================================================

// AddonPricingMode says whether an add-on is charged per traveler or once
type AddonPricingMode string

const (
	AddonPerPerson  AddonPricingMode = "per_person"
	AddonPerBooking AddonPricingMode = "per_booking"
)

// ServiceAddon is an optional service sold with a booking
type ServiceAddon struct {
	ID          string           `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Price       float64          `json:"price" db:"price"`
	PricingMode AddonPricingMode `json:"pricing_mode" db:"pricing_mode"`
}

// ChargeFor returns the add-on charge for a party size
func (a ServiceAddon) ChargeFor(travelers int) float64 {
	if a.PricingMode == AddonPerPerson {
		return a.Price * float64(travelers)
	}
	return a.Price
}

// ServiceAddons is the add-on snapshot stored as JSONB
type ServiceAddons []ServiceAddon

func (a ServiceAddons) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (a *ServiceAddons) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for ServiceAddons")
	}
	return json.Unmarshal(bytes, a)
}

// ============================================================================
// PRICING SNAPSHOT (server-calculated at submit)
// ============================================================================

// PricingSnapshot freezes the amounts a booking was offered at
type PricingSnapshot struct {
	Items          []string             `json:"items"` // Program or itinerary stop titles, in order
	UnitPrice      float64              `json:"unit_price"`
	Travelers      int                  `json:"travelers"`
	BaseAmount     float64              `json:"base_amount"`
	AddonsAmount   float64              `json:"addons_amount"`
	Subtotal       float64              `json:"subtotal"`
	DiscountAmount float64              `json:"discount_amount"`
	Total          float64              `json:"total"`
	Currency       string               `json:"currency"`
	Discount       *BookingDiscountInfo `json:"discount,omitempty"`
	CalculatedAt   time.Time            `json:"calculated_at"`
}

// BookingDiscountInfo records the promo applied at submit
type BookingDiscountInfo struct {
	PromoID        uuid.UUID    `json:"promo_id"`
	Code           string       `json:"code"`
	DiscountType   DiscountType `json:"discount_type"`
	DiscountValue  float64      `json:"discount_value"`
	DiscountAmount float64      `json:"discount_amount"`
}

func (p PricingSnapshot) Value() (driver.Value, error) {
	bytes, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (p *PricingSnapshot) Scan(value interface{}) error {
	if value == nil {
		*p = PricingSnapshot{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for PricingSnapshot")
	}
	return json.Unmarshal(bytes, p)
}

// ============================================================================
// BOOKING MODEL (bookings table)
// ============================================================================

// Booking is one checkout attempt and, once confirmed, the reservation
type Booking struct {
	ID     uuid.UUID     `json:"id" db:"id"`
	UserID uuid.UUID     `json:"user_id" db:"user_id"`
	Status BookingStatus `json:"status" db:"status"`

	// Target: exactly one of these is set
	ProgramID    *string    `json:"program_id,omitempty" db:"program_id"`
	CustomTripID *uuid.UUID `json:"custom_trip_id,omitempty" db:"custom_trip_id"`

	// Traveler
	TravelerName      string    `json:"traveler_name" db:"traveler_name"`
	TravelerEmail     string    `json:"traveler_email" db:"traveler_email"`
	TravelerPhone     string    `json:"traveler_phone" db:"traveler_phone"`
	NumberOfTravelers int       `json:"number_of_travelers" db:"number_of_travelers"`
	TravelDate        time.Time `json:"travel_date" db:"travel_date"`

	// Pricing
	Addons      ServiceAddons   `json:"addons" db:"addons"`
	PromoID     *uuid.UUID      `json:"promo_id,omitempty" db:"promo_id"`
	Pricing     PricingSnapshot `json:"pricing" db:"pricing"`
	FinalAmount float64         `json:"final_amount" db:"final_amount"`
	Currency    string          `json:"currency" db:"currency"`

	// Payment tracking
	ProviderOrderID  *string    `json:"provider_order_id,omitempty" db:"provider_order_id"`
	GatewayUID       *string    `json:"-" db:"gateway_uid"`
	GatewayToken     *string    `json:"-" db:"gateway_token"`
	PaymentStatus    *string    `json:"payment_status,omitempty" db:"payment_status"`
	PaymentURL       *string    `json:"payment_url,omitempty" db:"payment_url"`
	PaymentExpiresAt *time.Time `json:"payment_expires_at,omitempty" db:"payment_expires_at"`

	FailureReason  *string    `json:"failure_reason,omitempty" db:"failure_reason"`
	InvoiceNumber  *string    `json:"invoice_number,omitempty" db:"invoice_number"`
	IdempotencyKey *string    `json:"-" db:"idempotency_key"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// PaymentReference is the merchant invoice id sent to the gateway
func (b *Booking) PaymentReference() string {
	return b.ID.String()
}

// ============================================================================
// REQUEST/RESPONSE DTOs
// ============================================================================

// SubmitBookingRequest moves a booking from details to payment_pending
type SubmitBookingRequest struct {
	BookingID         *uuid.UUID `json:"booking_id,omitempty"` // Re-entry after Retry
	ProgramID         *string    `json:"program_id,omitempty"`
	CustomTripID      *uuid.UUID `json:"custom_trip_id,omitempty"`
	TravelerName      string     `json:"traveler_name"`
	TravelerEmail     string     `json:"traveler_email"`
	TravelerPhone     string     `json:"traveler_phone"`
	NumberOfTravelers int        `json:"number_of_travelers"`
	TravelDate        string     `json:"travel_date"` // YYYY-MM-DD
	ServiceIDs        []string   `json:"service_ids,omitempty"`
	PromoCode         *string    `json:"promo_code,omitempty"`
	ExpectedAmount    *float64   `json:"final_amount,omitempty"` // Client-computed, advisory only
	IdempotencyKey    *string    `json:"-"`
}

// SubmitBookingResponse is returned after a successful submit
type SubmitBookingResponse struct {
	BookingID      uuid.UUID     `json:"booking_id"`
	Status         BookingStatus `json:"status"`
	FinalAmount    float64       `json:"final_amount"`
	Currency       string        `json:"currency"`
	PaymentURL     string        `json:"payment_url,omitempty"`
	PromoRejection *string       `json:"promo_rejection,omitempty"`
}

// AuthorizationRequest is the client's claim about the gateway outcome
type AuthorizationRequest struct {
	ProviderOrderID string               `json:"provider_order_id"`
	Outcome         AuthorizationOutcome `json:"outcome" binding:"required"`
	Message         string               `json:"message,omitempty"`
}

// VerifyBookingRequest asks the server to verify the claimed payment
type VerifyBookingRequest struct {
	ProviderOrderID string   `json:"provider_order_id" binding:"required"`
	FinalAmount     *float64 `json:"final_amount,omitempty"`
}

// ConfirmBookingResponse is returned by verification
type ConfirmBookingResponse struct {
	BookingID      uuid.UUID     `json:"booking_id"`
	Status         BookingStatus `json:"status"`
	InvoiceNumber  string        `json:"invoice_number,omitempty"`
	ReceiptPending bool          `json:"receipt_pending"`
}

// RetryBookingResponse hands the stored details back for re-entry
type RetryBookingResponse struct {
	BookingID uuid.UUID            `json:"booking_id"`
	Status    BookingStatus        `json:"status"`
	Details   SubmitBookingRequest `json:"details"`
}

// DetailsForRetry rebuilds the submit payload from a stored booking
func (b *Booking) DetailsForRetry() SubmitBookingRequest {
	serviceIDs := make([]string, 0, len(b.Addons))
	for _, a := range b.Addons {
		serviceIDs = append(serviceIDs, a.ID)
	}
	id := b.ID
	req := SubmitBookingRequest{
		BookingID:         &id,
		ProgramID:         b.ProgramID,
		CustomTripID:      b.CustomTripID,
		TravelerName:      b.TravelerName,
		TravelerEmail:     b.TravelerEmail,
		TravelerPhone:     b.TravelerPhone,
		NumberOfTravelers: b.NumberOfTravelers,
		TravelDate:        b.TravelDate.Format(DateLayout),
		ServiceIDs:        serviceIDs,
	}
	if b.Pricing.Discount != nil {
		code := b.Pricing.Discount.Code
		req.PromoCode = &code
	}
	return req
}
