package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// PendingExpirer fails bookings whose payment window has closed
type PendingExpirer interface {
	ExpirePending(ctx context.Context, limit int) (int, error)
}

// BookingExpirationService handles background expiration of payment_pending bookings
type BookingExpirationService struct {
	expirer   PendingExpirer
	logger    *logrus.Logger
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

// NewBookingExpirationService creates a new booking expiration service
func NewBookingExpirationService(expirer PendingExpirer, interval time.Duration, logger *logrus.Logger) *BookingExpirationService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BookingExpirationService{
		expirer:   expirer,
		logger:    logger,
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: 100,
	}
}

// Start begins the background expiration job
func (s *BookingExpirationService) Start() {
	s.logger.WithField("interval", s.interval.String()).Info("Starting booking expiration service")
	go s.run()
}

// Stop stops the background expiration job
func (s *BookingExpirationService) Stop() {
	s.logger.Info("Stopping booking expiration service")
	close(s.stopCh)
}

func (s *BookingExpirationService) run() {
	// Run immediately on start
	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-s.stopCh:
			s.logger.Info("Booking expiration service stopped")
			return
		}
	}
}

// RunOnce expires one batch of overdue bookings
func (s *BookingExpirationService) RunOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.expirer.ExpirePending(ctx, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to expire pending bookings")
		return 0
	}
	if expired > 0 {
		s.logger.WithField("count", expired).Info("Expired unpaid bookings")
	}
	return expired
}
