package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/models"
)

// PAYableEnvironmentURLs maps environment names to their IPG endpoint URLs
var PAYableEnvironmentURLs = map[string]string{
	"dev":        "https://payable-ipg-dev.web.app/ipg/dev",
	"sandbox":    "https://sandboxipgpayment.payable.lk/ipg/sandbox",
	"production": "https://ipgpayment.payable.lk/ipg/pro",
}

// PAYableGateway implements PaymentGateway against PAYable IPG
type PAYableGateway struct {
	config      config.PaymentConfig
	logger      *logrus.Logger
	client      *http.Client
	endpointURL string
}

// PAYablePaymentRequest is the intent request sent to PAYable.
// merchantToken is never sent; it only feeds the checkValue.
type PAYablePaymentRequest struct {
	MerchantKey string `json:"merchantKey"`

	LogoURL         string `json:"logoUrl,omitempty"`
	ReturnURL       string `json:"returnUrl"`
	WebhookURL      string `json:"webhookUrl,omitempty"`
	StatusReturnURL string `json:"statusReturnUrl,omitempty"`

	PaymentType      int    `json:"paymentType"` // 1 = one-time
	InvoiceID        string `json:"invoiceId"`
	Amount           string `json:"amount"`
	CurrencyCode     string `json:"currencyCode"`
	OrderDescription string `json:"orderDescription,omitempty"`

	CustomerFirstName   string `json:"customerFirstName"`
	CustomerLastName    string `json:"customerLastName"`
	CustomerEmail       string `json:"customerEmail"`
	CustomerMobilePhone string `json:"customerMobilePhone"`

	BillingAddressStreet      string `json:"billingAddressStreet"`
	BillingAddressCity        string `json:"billingAddressCity"`
	BillingAddressCountry     string `json:"billingAddressCountry"`
	BillingAddressPostcodeZip string `json:"billingAddressPostcodeZip"`

	CheckValue string `json:"checkValue"`

	IsMobilePayment    int    `json:"isMobilePayment"`
	IntegrationType    string `json:"integrationType"` // Max 20 chars
	IntegrationVersion string `json:"integrationVersion"`
}

// PAYablePaymentResponse is the intent response
type PAYablePaymentResponse struct {
	Status          string `json:"status"`
	UID             string `json:"uid"`
	StatusIndicator string `json:"statusIndicator"`
	PaymentPage     string `json:"paymentPage"`
	Message         string `json:"message,omitempty"`
}

// PAYableStatusRequest is the check-status request
type PAYableStatusRequest struct {
	UID             string `json:"uid"`
	StatusIndicator string `json:"statusIndicator"`
}

// PAYableStatusResponse is the check-status response
type PAYableStatusResponse struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"` // pending, success, failed, cancelled
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currencyCode,omitempty"`
	InvoiceID     string `json:"invoiceId"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// PAYableWebhookPayload is the server-to-server notification body
type PAYableWebhookPayload struct {
	Status          string `json:"status"`
	UID             string `json:"uid"`
	InvoiceID       string `json:"invoiceId"`
	Amount          string `json:"amount"`
	CurrencyCode    string `json:"currencyCode"`
	PaymentStatus   string `json:"paymentStatus"`
	TransactionID   string `json:"transactionId,omitempty"`
	StatusIndicator string `json:"statusIndicator"`
}

// NewPAYableGateway creates the PAYable adapter
func NewPAYableGateway(cfg config.PaymentConfig, logger *logrus.Logger) *PAYableGateway {
	endpointURL, ok := PAYableEnvironmentURLs[cfg.Environment]
	if !ok {
		endpointURL = PAYableEnvironmentURLs["sandbox"]
	}
	return &PAYableGateway{
		config:      cfg,
		logger:      logger,
		client:      &http.Client{Timeout: 30 * time.Second},
		endpointURL: endpointURL,
	}
}

func (g *PAYableGateway) Name() string { return "payable" }

// GenerateCheckValue creates the SHA-512 checkValue:
// hash1 = SHA512(merchantToken), hash2 = SHA512("merchantKey|invoiceId|amount|currencyCode|hash1"),
// both uppercase hex.
func (g *PAYableGateway) GenerateCheckValue(invoiceID, amount, currencyCode string) string {
	hash1 := sha512.Sum512([]byte(g.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s", g.config.MerchantKey, invoiceID, amount, currencyCode, hash1Hex)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// CreateIntent registers the charge and returns the hosted payment page
func (g *PAYableGateway) CreateIntent(ctx context.Context, params *PaymentIntentParams) (*PaymentIntent, error) {
	if g.config.MerchantKey == "" || g.config.MerchantToken == "" {
		return nil, &models.PaymentError{Reason: "gateway_not_configured"}
	}

	amount := formatAmount(params.Amount)
	firstName, lastName := splitName(params.CustomerName)
	if lastName == "" {
		lastName = "." // PAYable requires a last name
	}

	request := &PAYablePaymentRequest{
		MerchantKey:               g.config.MerchantKey,
		LogoURL:                   g.config.LogoURL,
		ReturnURL:                 g.config.ReturnURL,
		WebhookURL:                g.config.WebhookURL,
		StatusReturnURL:           g.endpointURL + "/status-view",
		PaymentType:               1,
		InvoiceID:                 params.Reference,
		Amount:                    amount,
		CurrencyCode:              params.Currency,
		OrderDescription:          params.Description,
		CustomerFirstName:         firstName,
		CustomerLastName:          lastName,
		CustomerEmail:             params.CustomerEmail,
		CustomerMobilePhone:       params.CustomerPhone,
		BillingAddressStreet:      "Sri Lanka",
		BillingAddressCity:        "Colombo",
		BillingAddressCountry:     "LK",
		BillingAddressPostcodeZip: "00000",
		CheckValue:                g.GenerateCheckValue(params.Reference, amount, params.Currency),
		IsMobilePayment:           0,
		IntegrationType:           "TravelCraft",
		IntegrationVersion:        "1.0.0",
	}

	g.logger.WithFields(logrus.Fields{
		"reference": params.Reference,
		"amount":    amount,
		"currency":  params.Currency,
		"endpoint":  g.endpointURL,
	}).Info("Initiating PAYable payment")

	body, status, err := g.post(ctx, g.endpointURL, request)
	if err != nil {
		return nil, &models.PaymentError{Reason: PaymentReasonGatewayUnavailable, Err: err}
	}
	if status != http.StatusOK {
		return nil, &models.PaymentError{Reason: "gateway_rejected", Err: fmt.Errorf("status %d: %s", status, string(body))}
	}

	var resp PAYablePaymentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &models.PaymentError{Reason: "gateway_rejected", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	// PAYable answers PENDING when the page is ready, success in some environments
	if resp.Status != "success" && resp.Status != "PENDING" {
		msg := resp.Message
		if msg == "" {
			msg = "status=" + resp.Status
		}
		return nil, &models.PaymentError{Reason: "gateway_rejected", Err: fmt.Errorf("%s", msg)}
	}
	if resp.PaymentPage == "" || resp.UID == "" {
		return nil, &models.PaymentError{Reason: "gateway_rejected", Err: fmt.Errorf("no payment page returned")}
	}

	g.logger.WithFields(logrus.Fields{
		"reference": params.Reference,
		"uid":       resp.UID,
	}).Info("PAYable payment initiated")

	return &PaymentIntent{
		GatewayUID:   resp.UID,
		GatewayToken: resp.StatusIndicator,
		PaymentURL:   resp.PaymentPage,
	}, nil
}

// VerifyIntent asks PAYable for the authoritative status of the charge
func (g *PAYableGateway) VerifyIntent(ctx context.Context, lookup *PaymentLookup) (*VerifiedPayment, error) {
	if lookup.GatewayUID == "" || lookup.ProviderOrderID != lookup.GatewayUID {
		return nil, &models.VerificationError{ProviderOrderID: lookup.ProviderOrderID, Detail: "order does not belong to this booking"}
	}

	statusURL := strings.Replace(g.endpointURL, "/ipg/", "/check-status/", 1)
	body, status, err := g.post(ctx, statusURL, &PAYableStatusRequest{
		UID:             lookup.GatewayUID,
		StatusIndicator: lookup.GatewayToken,
	})
	if err != nil {
		return nil, &models.PaymentError{Reason: PaymentReasonGatewayUnavailable, Err: err}
	}
	if status >= http.StatusInternalServerError {
		return nil, &models.PaymentError{Reason: PaymentReasonGatewayUnavailable, Err: fmt.Errorf("status %d", status)}
	}

	var resp PAYableStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &models.PaymentError{Reason: PaymentReasonGatewayUnavailable, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	g.logger.WithFields(logrus.Fields{
		"uid":            lookup.GatewayUID,
		"payment_status": resp.PaymentStatus,
		"invoice_id":     resp.InvoiceID,
	}).Info("PAYable status checked")

	switch strings.ToUpper(resp.PaymentStatus) {
	case "SUCCESS":
	case "FAILED", "CANCELLED", "CANCELED", "DECLINED":
		return nil, &models.VerificationError{
			ProviderOrderID: lookup.ProviderOrderID,
			Detail:          "gateway reports " + strings.ToLower(resp.PaymentStatus),
		}
	default:
		// Not settled yet; the booking stays verifying until a later check
		return nil, &models.PaymentError{
			Reason: PaymentReasonGatewayPending,
			Err:    fmt.Errorf("gateway reports %q for %s", resp.PaymentStatus, lookup.GatewayUID),
		}
	}
	if resp.InvoiceID != "" && resp.InvoiceID != lookup.Reference {
		return nil, &models.VerificationError{ProviderOrderID: lookup.ProviderOrderID, Detail: "charge belongs to another reference"}
	}

	amount, err := strconv.ParseFloat(resp.Amount, 64)
	if err != nil {
		return nil, &models.VerificationError{ProviderOrderID: lookup.ProviderOrderID, Detail: "gateway returned an unreadable amount"}
	}

	currency := resp.CurrencyCode
	if currency == "" {
		currency = g.config.Currency
	}

	return &VerifiedPayment{
		ProviderOrderID: lookup.ProviderOrderID,
		TransactionID:   resp.TransactionID,
		Reference:       lookup.Reference,
		Amount:          amount,
		Currency:        currency,
		PaymentStatus:   resp.PaymentStatus,
		VerifiedAt:      time.Now(),
		Raw: models.JSONB{
			"uid":            lookup.GatewayUID,
			"payment_status": resp.PaymentStatus,
			"amount":         resp.Amount,
			"transaction_id": resp.TransactionID,
		},
	}, nil
}

// ParseWebhook decodes a PAYable notification into a claim
func (g *PAYableGateway) ParseWebhook(body []byte) (*PaymentClaim, error) {
	var payload PAYableWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if payload.UID == "" || payload.InvoiceID == "" {
		return nil, fmt.Errorf("webhook missing required fields")
	}

	g.logger.WithFields(logrus.Fields{
		"uid":            payload.UID,
		"invoice_id":     payload.InvoiceID,
		"payment_status": payload.PaymentStatus,
	}).Info("PAYable webhook received")

	return &PaymentClaim{
		Reference:       payload.InvoiceID,
		ProviderOrderID: payload.UID,
		Outcome:         outcomeFromGatewayStatus(payload.PaymentStatus),
		Raw: models.JSONB{
			"uid":            payload.UID,
			"invoice_id":     payload.InvoiceID,
			"amount":         payload.Amount,
			"payment_status": payload.PaymentStatus,
		},
	}, nil
}

func (g *PAYableGateway) post(ctx context.Context, url string, payload interface{}) ([]byte, int, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("url", url).Error("Failed to call PAYable endpoint")
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// formatAmount renders an amount the way PAYable hashes it
func formatAmount(amount float64) string {
	return strconv.FormatFloat(models.RoundMoney(amount), 'f', 2, 64)
}

// splitName splits a full name into first and last name
func splitName(fullName string) (firstName, lastName string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "Customer", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
