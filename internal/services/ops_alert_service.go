package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/kafka"
	"github.com/travelcraft/booking-backend/pkg/sms"
)

// smsMaxLength keeps alerts within a few SMS segments, counted in characters
const smsMaxLength = 600

// OpsAlertService relays queued booking notifications to the operations phones
type OpsAlertService struct {
	sender sms.Sender
	phones []string
	logger *logrus.Logger
}

// NewOpsAlertService creates a relay sending to phones
func NewOpsAlertService(sender sms.Sender, phones []string, logger *logrus.Logger) *OpsAlertService {
	return &OpsAlertService{sender: sender, phones: phones, logger: logger}
}

// HandleMessage decodes one notification and sends it. Delivery is best effort:
// malformed payloads, gateway failures and send timeouts are logged and skipped
// so one bad message never stalls the partition. Only shutdown returns an error,
// leaving the message for the next run.
func (s *OpsAlertService) HandleMessage(ctx context.Context, value []byte) error {
	var msg kafka.NotificationMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		s.logger.WithError(err).Warn("Skipping malformed notification message")
		return nil
	}

	if len(s.phones) == 0 {
		s.logger.WithField("booking_id", msg.BookingID).Debug("No operations phones configured")
		return nil
	}

	text := FormatOpsAlert(msg)
	txID, err := s.sender.SendMessage(ctx, s.phones, text)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		if ctx.Err() != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"booking_id": msg.BookingID,
				"gateway":    s.sender.GetName(),
			}).Warn("Operations alert timed out; skipping")
			return nil
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": msg.BookingID,
			"gateway":    s.sender.GetName(),
		}).Error("Failed to send operations alert")
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     msg.BookingID,
		"transaction_id": txID,
	}).Info("Operations alert sent")
	return nil
}

// FormatOpsAlert shortens the booking summary for SMS and appends the chat link
func FormatOpsAlert(msg kafka.NotificationMessage) string {
	text := msg.Text
	if msg.DeepLink != "" {
		suffix := fmt.Sprintf("\nReply: %s", msg.DeepLink)
		if utf8.RuneCountInString(text)+utf8.RuneCountInString(suffix) <= smsMaxLength {
			return text + suffix
		}
	}
	if utf8.RuneCountInString(text) > smsMaxLength {
		return string([]rune(text)[:smsMaxLength-3]) + "..."
	}
	return text
}
