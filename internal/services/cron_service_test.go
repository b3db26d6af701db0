package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJobs struct {
	reconciled int32
	retried    int32
	expired    int32
	err        error
}

func (c *countingJobs) ReconcileVerifying(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	atomic.AddInt32(&c.reconciled, 1)
	return 1, c.err
}

func (c *countingJobs) RetryMissingDocuments(ctx context.Context, limit int) (int, error) {
	atomic.AddInt32(&c.retried, 1)
	return 2, c.err
}

func (c *countingJobs) ExpirePending(ctx context.Context, limit int) (int, error) {
	atomic.AddInt32(&c.expired, 1)
	if c.err != nil {
		return 0, c.err
	}
	return 3, nil
}

func TestCronServiceSchedulesJobs(t *testing.T) {
	jobs := &countingJobs{}
	svc := NewCronService(jobs, jobs, "0 */2 * * * *", "0 */15 * * * *", quietLogger())
	require.NoError(t, svc.Start())
	defer svc.Stop()

	status := svc.GetJobStatus()
	assert.Equal(t, 2, status["job_count"])

	svc.RunReconcileNow()
	svc.RunDocumentRetryNow()
	assert.Equal(t, int32(1), atomic.LoadInt32(&jobs.reconciled))
	assert.Equal(t, int32(1), atomic.LoadInt32(&jobs.retried))
}

func TestCronServiceRejectsBadSchedule(t *testing.T) {
	jobs := &countingJobs{}
	svc := NewCronService(jobs, jobs, "every minute", "0 */15 * * * *", quietLogger())
	assert.Error(t, svc.Start())
}

func TestBookingExpirationRunOnce(t *testing.T) {
	jobs := &countingJobs{}
	svc := NewBookingExpirationService(jobs, 0, quietLogger())
	assert.Equal(t, time.Minute, svc.interval)
	assert.Equal(t, 3, svc.RunOnce())

	jobs.err = errors.New("database unavailable")
	assert.Equal(t, 0, svc.RunOnce())
}

func TestBookingExpirationStartStop(t *testing.T) {
	jobs := &countingJobs{}
	svc := NewBookingExpirationService(jobs, time.Hour, quietLogger())
	svc.Start()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&jobs.expired) >= 1
	}, time.Second, 10*time.Millisecond)
	svc.Stop()
}
