package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// VerifyingReconciler re-verifies bookings stuck in verifying
type VerifyingReconciler interface {
	ReconcileVerifying(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// DocumentRetrier renders receipts that failed after confirmation
type DocumentRetrier interface {
	RetryMissingDocuments(ctx context.Context, limit int) (int, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	reconciler    VerifyingReconciler
	documents     DocumentRetrier
	reconcileSpec string
	documentSpec  string
	stuckAfter    time.Duration
	logger        *logrus.Logger
}

// NewCronService creates a new CronService.
// Specs use the six-field format: second minute hour day month weekday.
func NewCronService(reconciler VerifyingReconciler, documents DocumentRetrier, reconcileSpec, documentSpec string, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:          cron.New(cron.WithSeconds()),
		reconciler:    reconciler,
		documents:     documents,
		reconcileSpec: reconcileSpec,
		documentSpec:  documentSpec,
		stuckAfter:    10 * time.Minute,
		logger:        logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: verify bookings whose client never came back, or whose gateway check failed transiently
	if _, err := s.cron.AddFunc(s.reconcileSpec, s.reconcileVerifyingJob); err != nil {
		return fmt.Errorf("failed to schedule reconciliation job: %w", err)
	}
	s.logger.WithField("schedule", s.reconcileSpec).Info("Scheduled: reconcile verifying bookings")

	// Job 2: render receipts that failed after confirmation
	if _, err := s.cron.AddFunc(s.documentSpec, s.retryDocumentsJob); err != nil {
		return fmt.Errorf("failed to schedule document retry job: %w", err)
	}
	s.logger.WithField("schedule", s.documentSpec).Info("Scheduled: retry missing invoice documents")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) reconcileVerifyingJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	confirmed, err := s.reconciler.ReconcileVerifying(ctx, s.stuckAfter, 50)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Reconciliation failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"confirmed": confirmed,
		"duration":  time.Since(startTime).String(),
	}).Info("[CRON] Reconciliation finished")
}

func (s *CronService) retryDocumentsJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rendered, err := s.documents.RetryMissingDocuments(ctx, 50)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Document retry failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"rendered": rendered,
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Document retry finished")
}

// RunReconcileNow runs the reconciliation job immediately
func (s *CronService) RunReconcileNow() {
	s.logger.Info("[MANUAL] Running reconciliation now...")
	s.reconcileVerifyingJob()
}

// RunDocumentRetryNow runs the document retry job immediately
func (s *CronService) RunDocumentRetryNow() {
	s.logger.Info("[MANUAL] Running document retry now...")
	s.retryDocumentsJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
