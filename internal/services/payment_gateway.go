package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/models"
)

// PaymentIntentParams describes the charge a booking asks the gateway for
type PaymentIntentParams struct {
	Reference     string // Booking id, echoed back by the gateway as the invoice id
	Amount        float64
	Currency      string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Description   string
}

// PaymentIntent is the gateway's handle on a pending charge
type PaymentIntent struct {
	GatewayUID   string
	GatewayToken string
	PaymentURL   string
}

// PaymentLookup identifies the charge to verify server-side
type PaymentLookup struct {
	ProviderOrderID string // What the client claims
	GatewayUID      string // What the gateway issued at intent creation
	GatewayToken    string
	Reference       string
}

// VerifiedPayment is the gateway's authoritative answer for a captured charge.
// Only the gateway adapters construct one.
type VerifiedPayment struct {
	ProviderOrderID string
	TransactionID   string
	Reference       string
	Amount          float64
	Currency        string
	PaymentStatus   string
	VerifiedAt      time.Time
	Raw             models.JSONB
}

// PaymentClaim is a parsed gateway webhook. It is treated like a client claim
// and is always re-verified.
type PaymentClaim struct {
	Reference       string
	ProviderOrderID string
	Outcome         models.AuthorizationOutcome
	Raw             models.JSONB
}

// PaymentError reasons shared by the gateway adapters
const (
	PaymentReasonGatewayUnavailable = "gateway_unavailable"
	PaymentReasonGatewayPending     = "gateway_pending"
)

// PaymentGateway is the card processor behind checkout.
// VerifyIntent returns *models.VerificationError when the charge is definitively
// not captured, and *models.PaymentError when the gateway cannot be reached
// (PaymentReasonGatewayUnavailable) or the charge is not settled yet
// (PaymentReasonGatewayPending). Both PaymentError cases are transient.
type PaymentGateway interface {
	Name() string
	CreateIntent(ctx context.Context, params *PaymentIntentParams) (*PaymentIntent, error)
	VerifyIntent(ctx context.Context, lookup *PaymentLookup) (*VerifiedPayment, error)
	ParseWebhook(body []byte) (*PaymentClaim, error)
}

// ============================================================================
// PLACEHOLDER GATEWAY (development only, refused in production by config)
// ============================================================================

// PlaceholderGateway approves every intent it issued itself
type PlaceholderGateway struct {
	baseURL string
	logger  *logrus.Logger

	mu      sync.Mutex
	intents map[string]placeholderIntent
}

type placeholderIntent struct {
	reference string
	amount    float64
	currency  string
}

// NewPlaceholderGateway creates a gateway that never moves money
func NewPlaceholderGateway(baseURL string, logger *logrus.Logger) *PlaceholderGateway {
	return &PlaceholderGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		intents: make(map[string]placeholderIntent),
	}
}

func (g *PlaceholderGateway) Name() string { return "placeholder" }

func (g *PlaceholderGateway) CreateIntent(ctx context.Context, params *PaymentIntentParams) (*PaymentIntent, error) {
	uid := "PH-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:16])
	token := uuid.New().String()

	g.mu.Lock()
	g.intents[uid] = placeholderIntent{reference: params.Reference, amount: params.Amount, currency: params.Currency}
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"reference": params.Reference,
		"uid":       uid,
		"amount":    params.Amount,
	}).Warn("Placeholder payment intent created; no money will move")

	return &PaymentIntent{
		GatewayUID:   uid,
		GatewayToken: token,
		PaymentURL:   fmt.Sprintf("%s/placeholder-pay/%s", g.baseURL, uid),
	}, nil
}

func (g *PlaceholderGateway) VerifyIntent(ctx context.Context, lookup *PaymentLookup) (*VerifiedPayment, error) {
	if lookup.ProviderOrderID != lookup.GatewayUID {
		return nil, &models.VerificationError{ProviderOrderID: lookup.ProviderOrderID, Detail: "order does not belong to this booking"}
	}

	g.mu.Lock()
	intent, ok := g.intents[lookup.GatewayUID]
	g.mu.Unlock()
	if !ok {
		return nil, &models.VerificationError{ProviderOrderID: lookup.ProviderOrderID, Detail: "unknown order"}
	}

	return &VerifiedPayment{
		ProviderOrderID: lookup.ProviderOrderID,
		TransactionID:   "PH-TXN-" + lookup.GatewayUID,
		Reference:       intent.reference,
		Amount:          intent.amount,
		Currency:        intent.currency,
		PaymentStatus:   "SUCCESS",
		VerifiedAt:      time.Now(),
	}, nil
}

func (g *PlaceholderGateway) ParseWebhook(body []byte) (*PaymentClaim, error) {
	var payload struct {
		UID       string `json:"uid"`
		InvoiceID string `json:"invoiceId"`
		Status    string `json:"paymentStatus"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if payload.UID == "" || payload.InvoiceID == "" {
		return nil, fmt.Errorf("webhook missing required fields")
	}
	return &PaymentClaim{
		Reference:       payload.InvoiceID,
		ProviderOrderID: payload.UID,
		Outcome:         outcomeFromGatewayStatus(payload.Status),
	}, nil
}

// outcomeFromGatewayStatus maps a gateway payment status onto a claim outcome
func outcomeFromGatewayStatus(status string) models.AuthorizationOutcome {
	switch strings.ToUpper(status) {
	case "SUCCESS", "PAID", "COMPLETED":
		return models.AuthorizationSuccess
	case "CANCELLED", "CANCELED":
		return models.AuthorizationCancelled
	default:
		return models.AuthorizationError
	}
}
