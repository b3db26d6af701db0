package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sender delivers a text message to one or more phones
type Sender interface {
	SendMessage(ctx context.Context, phones []string, message string) (int64, error)
	GetName() string
}

// DialogGateway implements SMS sending via Dialog eSMS API
type DialogGateway struct {
	apiURL   string
	username string
	password string
	mask     string
	client   *http.Client
	logger   *logrus.Logger

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// DialogConfig holds configuration for Dialog SMS Gateway
type DialogConfig struct {
	APIURL   string
	Username string
	Password string
	Mask     string
}

// NewDialogGateway creates a new Dialog SMS Gateway client
func NewDialogGateway(config DialogConfig, logger *logrus.Logger) *DialogGateway {
	return &DialogGateway{
		apiURL:   strings.TrimRight(config.APIURL, "/"),
		username: config.Username,
		password: config.Password,
		mask:     config.Mask,
		logger:   logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LoginRequest represents the login request structure
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response structure
type LoginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // Token expiry in seconds
	ErrCode    string `json:"errCode"`
}

// SMSRecipient represents a single SMS recipient
type SMSRecipient struct {
	Mobile string `json:"mobile"`
}

// SendSMSRequest represents the SMS sending request structure
type SendSMSRequest struct {
	MSISDN        []SMSRecipient `json:"msisdn"`
	Message       string         `json:"message"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	TransactionID int64          `json:"transaction_id"`
	PaymentMethod int            `json:"payment_method,omitempty"` // 0 = wallet, 4 = package
}

// SendSMSResponse represents the SMS sending response structure
type SendSMSResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID     int     `json:"campaignId"`
		CampaignCost   float64 `json:"campaignCost"`
		InvalidNumbers int     `json:"invalidNumbers"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// CheckStatusRequest represents campaign status check request
type CheckStatusRequest struct {
	TransactionID int64 `json:"transaction_id"`
}

// CheckStatusResponse represents campaign status check response
type CheckStatusResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignStatus string `json:"campaign_status"` // pending, running, completed
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// login retrieves an access token
func (d *DialogGateway) login(ctx context.Context) error {
	d.logger.WithFields(logrus.Fields{
		"url":      d.apiURL + "/login",
		"username": d.username,
	}).Debug("Dialog API login")

	var loginResp LoginResponse
	if err := d.postJSON(ctx, "/login", LoginRequest{Username: d.username, Password: d.password}, false, &loginResp); err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	if loginResp.Status != "success" {
		return fmt.Errorf("login failed: %s (error code: %s)", loginResp.Comment, loginResp.ErrCode)
	}

	d.tokenMutex.Lock()
	d.token = loginResp.Token
	d.tokenExpiry = time.Now().Add(time.Duration(loginResp.Expiration) * time.Second)
	d.tokenMutex.Unlock()

	return nil
}

// isTokenValid checks if the current token is still valid
func (d *DialogGateway) isTokenValid() bool {
	d.tokenMutex.RLock()
	defer d.tokenMutex.RUnlock()

	if d.token == "" {
		return false
	}

	// Consider token invalid 5 minutes before actual expiry
	return time.Now().Before(d.tokenExpiry.Add(-5 * time.Minute))
}

func (d *DialogGateway) ensureValidToken(ctx context.Context) error {
	if d.isTokenValid() {
		return nil
	}
	return d.login(ctx)
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// FormatPhoneForDialog converts phone number to Dialog's 9-digit format
// Input: "0771234567" (10 digits) or "94771234567" (11 digits) or "+94771234567"
// Output: "771234567" (9 digits without prefix)
func FormatPhoneForDialog(phone string) (string, error) {
	phone = nonDigits.ReplaceAllString(phone, "")

	if strings.HasPrefix(phone, "94") && len(phone) == 11 {
		phone = phone[2:]
	}

	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = phone[1:]
	}

	if len(phone) != 9 {
		return "", fmt.Errorf("invalid phone number length after formatting: %d digits (expected 9)", len(phone))
	}

	if !strings.HasPrefix(phone, "7") {
		return "", fmt.Errorf("invalid Sri Lankan mobile prefix: must start with 7")
	}

	return phone, nil
}

// SendMessage sends one message to every valid phone. Invalid numbers are
// skipped; an error is returned only when none remain or the API rejects the campaign.
func (d *DialogGateway) SendMessage(ctx context.Context, phones []string, message string) (int64, error) {
	if err := d.ensureValidToken(ctx); err != nil {
		return 0, fmt.Errorf("failed to get access token: %w", err)
	}

	recipients := make([]SMSRecipient, 0, len(phones))
	for _, phone := range phones {
		formatted, err := FormatPhoneForDialog(phone)
		if err != nil {
			d.logger.WithError(err).WithField("phone", phone).Warn("Skipping invalid SMS recipient")
			continue
		}
		recipients = append(recipients, SMSRecipient{Mobile: formatted})
	}

	if len(recipients) == 0 {
		return 0, fmt.Errorf("no valid recipients after formatting")
	}

	// Transaction IDs must be unique per campaign
	transactionID := time.Now().UnixMicro()

	smsReq := SendSMSRequest{
		MSISDN:        recipients,
		Message:       message,
		SourceAddress: d.mask,
		TransactionID: transactionID,
		PaymentMethod: 0,
	}

	var smsResp SendSMSResponse
	if err := d.postJSON(ctx, "/sms", smsReq, true, &smsResp); err != nil {
		return 0, fmt.Errorf("failed to send SMS request: %w", err)
	}

	if smsResp.Status != "success" {
		d.logger.WithFields(logrus.Fields{
			"status":   smsResp.Status,
			"comment":  smsResp.Comment,
			"err_code": smsResp.ErrCode,
		}).Error("Dialog API rejected SMS")
		return 0, fmt.Errorf("SMS sending failed: %s (error code: %s)", smsResp.Comment, smsResp.ErrCode)
	}

	d.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"campaign_id":    smsResp.Data.CampaignID,
		"cost":           smsResp.Data.CampaignCost,
		"recipients":     len(recipients),
	}).Info("SMS sent")

	return transactionID, nil
}

// CheckCampaignStatus checks the status of an SMS campaign
func (d *DialogGateway) CheckCampaignStatus(ctx context.Context, transactionID int64) (string, error) {
	if err := d.ensureValidToken(ctx); err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}

	var checkResp CheckStatusResponse
	if err := d.postJSON(ctx, "/sms/check-transaction", CheckStatusRequest{TransactionID: transactionID}, true, &checkResp); err != nil {
		return "", fmt.Errorf("failed to check campaign status: %w", err)
	}

	if checkResp.Status != "success" {
		return "", fmt.Errorf("status check failed: %s (error code: %s)", checkResp.Comment, checkResp.ErrCode)
	}

	return checkResp.Data.CampaignStatus, nil
}

// postJSON posts payload to path and decodes the JSON response into out
func (d *DialogGateway) postJSON(ctx context.Context, path string, payload interface{}, authorized bool, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		d.tokenMutex.RLock()
		req.Header.Set("Authorization", "Bearer "+d.token)
		d.tokenMutex.RUnlock()
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

// GetName returns the name of this SMS gateway
func (d *DialogGateway) GetName() string {
	return "Dialog API v2 Gateway"
}

// LogSender only logs messages. Used in dev mode.
type LogSender struct {
	logger *logrus.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendMessage(ctx context.Context, phones []string, message string) (int64, error) {
	s.logger.WithField("phones", phones).Info("[DEV MODE] SMS:\n" + message)
	return time.Now().UnixMicro(), nil
}

func (s *LogSender) GetName() string {
	return "Log Sender"
}
