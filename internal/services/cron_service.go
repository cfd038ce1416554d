package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/config"
)

// BookingSweeper is the housekeeping surface the scheduler drives
type BookingSweeper interface {
	ExpireAbandoned(ctx context.Context, cutoff time.Time, limit int) (int, error)
	RedispatchStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron    *cron.Cron
	sweeper BookingSweeper
	cfg     config.CronConfig
	now     func() time.Time
	logger  *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(sweeper BookingSweeper, cfg config.CronConfig, logger *logrus.Logger) *CronService {
	// Seconds precision: schedules are 6-field
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:    c,
		sweeper: sweeper,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: cancel unpaid PENDING bookings
	if _, err := s.cron.AddFunc(s.cfg.AbandonedSchedule, s.expireAbandonedJob); err != nil {
		return fmt.Errorf("failed to schedule abandoned booking job: %w", err)
	}
	s.logger.WithField("schedule", s.cfg.AbandonedSchedule).Info("✓ Scheduled: Expire abandoned bookings")

	// Job 2: re-dispatch matching for bookings stuck searching
	if _, err := s.cron.AddFunc(s.cfg.StaleSearchSchedule, s.redispatchStaleJob); err != nil {
		return fmt.Errorf("failed to schedule stale search job: %w", err)
	}
	s.logger.WithField("schedule", s.cfg.StaleSearchSchedule).Info("✓ Scheduled: Re-dispatch stale searches")

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

// expireAbandonedJob cancels bookings left PENDING without payment
func (s *CronService) expireAbandonedJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.AbandonedAfter)
	count, err := s.sweeper.ExpireAbandoned(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to expire abandoned bookings")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"cancelled": count,
		"cutoff":    cutoff,
		"duration":  time.Since(startTime).String(),
	}).Info("[CRON] ✓ Abandoned bookings expired")
}

// redispatchStaleJob re-queues matching for old SEARCHING_PARTNER bookings
func (s *CronService) redispatchStaleJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.StaleSearchAfter)
	count, err := s.sweeper.RedispatchStale(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to re-dispatch stale searches")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"dispatched": count,
		"cutoff":     cutoff,
		"duration":   time.Since(startTime).String(),
	}).Info("[CRON] ✓ Stale searches re-dispatched")
}

// RunExpireAbandonedNow runs the abandoned booking job immediately
func (s *CronService) RunExpireAbandonedNow() {
	s.expireAbandonedJob()
}

// RunRedispatchStaleNow runs the stale search job immediately
func (s *CronService) RunRedispatchStaleNow() {
	s.redispatchStaleJob()
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
