package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/travelcraft/booking-backend/internal/config"
	"github.com/travelcraft/booking-backend/internal/kafka"
	"github.com/travelcraft/booking-backend/internal/services"
	"github.com/travelcraft/booking-backend/pkg/sms"
)

// worker relays booking notifications from Kafka to the operations phones
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required for the notification worker")
	}

	var sender sms.Sender
	if cfg.SMS.Mode == "production" {
		sender = sms.NewDialogGateway(sms.DialogConfig{
			APIURL:   cfg.SMS.APIURL,
			Username: cfg.SMS.Username,
			Password: cfg.SMS.Password,
			Mask:     cfg.SMS.Mask,
		}, logger)
	} else {
		logger.Info("SMS in development mode (no actual SMS will be sent)")
		sender = sms.NewLogSender(logger)
	}

	relay := services.NewOpsAlertService(sender, cfg.SMS.OpsPhones, logger)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic":   cfg.Kafka.NotificationsTopic,
		"group":   cfg.Kafka.ConsumerGroup,
		"gateway": sender.GetName(),
		"phones":  len(cfg.SMS.OpsPhones),
	}).Info("Notification worker started")

	for {
		err := consumer.Consume(ctx, func(ctx context.Context, msg kafkago.Message) error {
			sendCtx, cancel := context.WithTimeout(ctx, cfg.Notification.DispatchTimeout)
			defer cancel()
			return relay.HandleMessage(sendCtx, msg.Value)
		})
		if err == nil || ctx.Err() != nil {
			break
		}
		logger.WithError(err).Error("Consumer stopped; restarting in 5s")
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("Notification worker exited")
}
