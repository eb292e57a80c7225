package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron    *cron.Cron
	sweeper *SweeperService
	spec    string
	logger  *logrus.Logger
}

// NewCronService creates a new CronService. spec uses the seconds field,
// e.g. "0 * * * * *" for every minute.
func NewCronService(sweeper *SweeperService, spec string, logger *logrus.Logger) *CronService {
	if spec == "" {
		spec = "0 * * * * *"
	}
	return &CronService{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		spec:    spec,
		logger:  logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweepAbandonedJob); err != nil {
		return fmt.Errorf("failed to schedule abandonment sweep: %w", err)
	}
	s.logger.WithField("schedule", s.spec).Info("Scheduled: abandonment sweep")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// sweepAbandonedJob releases seats of timed out pending bookings
func (s *CronService) sweepAbandonedJob() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	count, err := s.sweeper.SweepAbandoned(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Abandonment sweep failed")
		return
	}
	if count > 0 {
		s.logger.WithFields(logrus.Fields{
			"count":    count,
			"duration": time.Since(start).String(),
		}).Info("[CRON] Abandoned timed out bookings")
	}
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
