package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType is the kind of payment event being audited
type PaymentEventType string

const (
	PaymentEventIntentCreated       PaymentEventType = "intent_created"
	PaymentEventIntentFailed        PaymentEventType = "intent_failed"
	PaymentEventClientClaim         PaymentEventType = "client_claim"
	PaymentEventWebhookReceived     PaymentEventType = "webhook_received"
	PaymentEventVerifyRequest       PaymentEventType = "verify_request"
	PaymentEventVerifySuccess       PaymentEventType = "verify_success"
	PaymentEventVerifyFailed        PaymentEventType = "verify_failed"
	PaymentEventCancelled           PaymentEventType = "payment_cancelled"
	PaymentEventTimedOut            PaymentEventType = "payment_timed_out"
	PaymentEventBookingConfirmed    PaymentEventType = "booking_confirmed"
	PaymentEventAmountMismatch      PaymentEventType = "amount_mismatch"
	PaymentEventReconciliationRetry PaymentEventType = "reconciliation_retry"
	PaymentEventLateCapture         PaymentEventType = "late_capture" // Gateway success arrived after the booking failed
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend PaymentEventSource = "backend"
	PaymentSourceWebhook PaymentEventSource = "gateway_webhook"
	PaymentSourceGateway PaymentEventSource = "gateway_api"
	PaymentSourceClient  PaymentEventSource = "client"
	PaymentSourceSystem  PaymentEventSource = "system"
)

// PaymentAudit is an append-only log entry for one payment event
type PaymentAudit struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	BookingID       *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	ProviderOrderID *string    `json:"provider_order_id,omitempty" db:"provider_order_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	ExpectedAmount *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string  `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	PaymentStatus *string `json:"payment_status,omitempty" db:"payment_status"`
	Payload       JSONB   `json:"payload,omitempty" db:"payload"`
	ErrorMessage  *string `json:"error_message,omitempty" db:"error_message"`

	IPAddress *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent *string `json:"user_agent,omitempty" db:"user_agent"`
	Client    *string `json:"client,omitempty" db:"client"` // Parsed browser/OS summary

	ProcessingTimeMs *int      `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates an audit entry for a booking
func NewPaymentAudit(bookingID uuid.UUID, eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		BookingID:   &bookingID,
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetProviderOrderID sets the gateway order id
func (pa *PaymentAudit) SetProviderOrderID(id string) *PaymentAudit {
	if id != "" {
		pa.ProviderOrderID = &id
	}
	return pa
}

// SetAmounts records both amounts and reports whether they match to the cent
func (pa *PaymentAudit) SetAmounts(expected, received float64, currency string) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.Currency = &currency

	diff := expected - received
	if diff < 0 {
		diff = -diff
	}
	match := diff < 0.01
	pa.AmountsMatch = &match
	return match
}

// SetPaymentStatus sets the gateway status string
func (pa *PaymentAudit) SetPaymentStatus(status string) *PaymentAudit {
	pa.PaymentStatus = &status
	return pa
}

// SetError sets the error message
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetPayload stores the request or response body
func (pa *PaymentAudit) SetPayload(payload map[string]interface{}) *PaymentAudit {
	pa.Payload = JSONB(payload)
	return pa
}

// SetClientInfo sets request metadata
func (pa *PaymentAudit) SetClientInfo(ip, userAgent, client string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if client != "" {
		pa.Client = &client
	}
	return pa
}

// SetProcessingTime records elapsed time since start
func (pa *PaymentAudit) SetProcessingTime(start time.Time) *PaymentAudit {
	ms := int(time.Since(start).Milliseconds())
	pa.ProcessingTimeMs = &ms
	return pa
}

// RequestMeta is the caller information attached to audits
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Client    string
}
