package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/kafka"
	"github.com/travelcraft/booking-backend/internal/models"
)

// Publisher writes JSON payloads to a topic
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Dispatcher delivers an operations notification
type Dispatcher interface {
	Dispatch(ctx context.Context, msg kafka.NotificationMessage) error
}

// KafkaDispatcher queues notifications for the worker
type KafkaDispatcher struct {
	publisher Publisher
	topic     string
}

// NewKafkaDispatcher creates a dispatcher writing to topic
func NewKafkaDispatcher(publisher Publisher, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: publisher, topic: topic}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, msg kafka.NotificationMessage) error {
	return d.publisher.Publish(ctx, d.topic, msg.BookingID.String(), msg)
}

// LogDispatcher only logs notifications. Used when no brokers are configured.
type LogDispatcher struct {
	logger *logrus.Logger
}

// NewLogDispatcher creates a log-only dispatcher
func NewLogDispatcher(logger *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, msg kafka.NotificationMessage) error {
	d.logger.WithFields(logrus.Fields{
		"booking_id": msg.BookingID,
		"deep_link":  msg.DeepLink,
	}).Info("[DEV MODE] Booking notification:\n" + msg.Text)
	return nil
}

// NotificationService tells operations about confirmed bookings
type NotificationService struct {
	dispatcher Dispatcher
	config     config.NotificationConfig
	logger     *logrus.Logger
	wg         sync.WaitGroup
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(dispatcher Dispatcher, cfg config.NotificationConfig, logger *logrus.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

// BuildBookingMessage composes the operations summary and its WhatsApp deep link
func BuildBookingMessage(b *models.Booking, opsNumber, deepLinkBase string) kafka.NotificationMessage {
	var sb strings.Builder
	sb.WriteString("New booking confirmed\n")
	fmt.Fprintf(&sb, "Booking: %s\n", b.ID)
	if len(b.Pricing.Items) > 0 {
		fmt.Fprintf(&sb, "Itinerary: %s\n", strings.Join(b.Pricing.Items, " -> "))
	}
	fmt.Fprintf(&sb, "Travelers: %d\n", b.NumberOfTravelers)
	fmt.Fprintf(&sb, "Date: %s\n", b.TravelDate.Format(models.DateLayout))
	if len(b.Addons) > 0 {
		names := make([]string, len(b.Addons))
		for i, a := range b.Addons {
			names[i] = a.Name
		}
		fmt.Fprintf(&sb, "Services: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&sb, "Total: %.2f %s\n", b.FinalAmount, b.Currency)
	fmt.Fprintf(&sb, "Contact: %s, %s, %s", b.TravelerName, b.TravelerPhone, b.TravelerEmail)
	if b.InvoiceNumber != nil {
		fmt.Fprintf(&sb, "\nInvoice: %s", *b.InvoiceNumber)
	}
	text := sb.String()

	return kafka.NotificationMessage{
		BookingID:   b.ID,
		Destination: opsNumber,
		Text:        text,
		DeepLink:    buildDeepLink(deepLinkBase, opsNumber, text),
		CreatedAt:   time.Now(),
	}
}

// buildDeepLink returns base/<digits>?text=<escaped>
func buildDeepLink(base, number, text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	escaped := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return fmt.Sprintf("%s/%s?text=%s", strings.TrimRight(base, "/"), digits, escaped)
}

// NotifyAsync dispatches in the background. Failures are logged only and
// never affect the booking.
func (s *NotificationService) NotifyAsync(b *models.Booking) {
	msg := BuildBookingMessage(b, s.config.OpsWhatsAppNumber, s.config.DeepLinkBase)

	timeout := s.config.DispatchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			s.logger.WithError(err).WithField("booking_id", msg.BookingID).Error("Failed to dispatch booking notification")
			return
		}
		s.logger.WithField("booking_id", msg.BookingID).Info("Booking notification dispatched")
	}()
}

// Wait blocks until in-flight notifications finish
func (s *NotificationService) Wait() {
	s.wg.Wait()
}
