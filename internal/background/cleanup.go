package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default intervals for the periodic jobs
const (
	DefaultLimiterCleanupInterval = 5 * time.Minute
	DefaultMonitorCleanupInterval = time.Hour
	DefaultEventRetentionInterval = time.Hour
)

// LimiterCleaner drops expired rate limit windows
type LimiterCleaner interface {
	CleanupAll() int
}

// MonitorCleaner purges the in-memory security event log
type MonitorCleaner interface {
	Cleanup() int
}

// EventStoreCleaner purges persisted security events older than retention
type EventStoreCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// Job is a named task run on its own ticker
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// CleanupManager runs the periodic cleanup jobs until stopped
type CleanupManager struct {
	jobs    []Job
	logger  *slog.Logger
	timeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCleanupManager creates a manager for the given jobs
func NewCleanupManager(logger *slog.Logger, jobs ...Job) *CleanupManager {
	return &CleanupManager{
		jobs:    jobs,
		logger:  logger,
		timeout: 30 * time.Second,
		stopCh:  make(chan struct{}),
	}
}

// LimiterCleanupJob returns the job that reclaims expired limiter records
func LimiterCleanupJob(limiters LimiterCleaner, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "rate_limiter_cleanup",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if removed := limiters.CleanupAll(); removed > 0 {
				logger.Debug("rate limiter records removed", slog.Int("removed", removed))
			}
			return nil
		},
	}
}

// MonitorCleanupJob returns the job that ages out the in-memory event log
// and resets suspicion counters
func MonitorCleanupJob(monitor MonitorCleaner, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "security_monitor_cleanup",
		Interval: interval,
		Run: func(ctx context.Context) error {
			purged := monitor.Cleanup()
			logger.Info("security monitor cleanup completed", slog.Int("events_purged", purged))
			return nil
		},
	}
}

// EventRetentionJob returns the job that deletes persisted events past retention
func EventRetentionJob(store EventStoreCleaner, retention, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "security_event_retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			rowsDeleted, err := store.Cleanup(ctx, retention)
			if err != nil {
				return err
			}
			if rowsDeleted > 0 {
				logger.Info("security event retention completed", slog.Int64("rows_deleted", rowsDeleted))
			}
			return nil
		},
	}
}

// Start launches one goroutine per job and returns immediately.
// Jobs first run one interval after Start.
func (cm *CleanupManager) Start(ctx context.Context) {
	for _, job := range cm.jobs {
		if job.Interval <= 0 || job.Run == nil {
			cm.logger.Warn("skipping invalid background job", slog.String("job", job.Name))
			continue
		}

		cm.wg.Add(1)
		go cm.loop(ctx, job)
	}

	cm.logger.Info("cleanup manager started", slog.Int("jobs", len(cm.jobs)))
}

func (cm *CleanupManager) loop(ctx context.Context, job Job) {
	defer cm.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.runJob(ctx, job)
		case <-cm.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) runJob(ctx context.Context, job Job) error {
	jobCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	err := job.Run(jobCtx)
	if err != nil {
		cm.logger.Error("background job failed",
			slog.String("job", job.Name),
			slog.Any("error", err))
	}
	return err
}

// RunOnce executes every job immediately, in order. A failing job does not
// stop the rest; their errors are joined.
func (cm *CleanupManager) RunOnce(ctx context.Context) error {
	var errs []error
	for _, job := range cm.jobs {
		if job.Run == nil {
			continue
		}
		if err := cm.runJob(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Stop signals every job loop to exit and waits for them
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopCh)
	})
	cm.wg.Wait()
	cm.logger.Info("cleanup manager stopped")
}
