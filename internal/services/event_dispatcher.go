package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
)

// SecurityEventSink receives a copy of every logged security event
type SecurityEventSink interface {
	RecordSecurityEvent(ctx context.Context, event models.SecurityEvent) error
}

// IPBlockNotifier is told when an IP crosses the block threshold
type IPBlockNotifier interface {
	NotifyIPBlocked(ctx context.Context, ip string, violations int) error
}

type dispatchJob struct {
	name string
	fn   func(ctx context.Context) error
}

// EventDispatcher runs sink deliveries on a background worker so that
// logging a security event never waits on the network.
type EventDispatcher struct {
	jobs    chan dispatchJob
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	dropped int64
	done    chan struct{}
}

// NewEventDispatcher creates a dispatcher with a bounded queue
func NewEventDispatcher(queueSize int, logger *slog.Logger) *EventDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &EventDispatcher{
		jobs:    make(chan dispatchJob, queueSize),
		logger:  logger,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

// Submit queues fn without blocking. When the queue is full the job is dropped.
func (d *EventDispatcher) Submit(name string, fn func(ctx context.Context) error) bool {
	select {
	case d.jobs <- dispatchJob{name: name, fn: fn}:
		return true
	default:
		d.mu.Lock()
		d.dropped++
		dropped := d.dropped
		d.mu.Unlock()
		d.logger.Warn("security event dispatch queue full, dropping job",
			slog.String("job", name),
			slog.Int64("dropped_total", dropped))
		return false
	}
}

// Dropped returns how many jobs were discarded because the queue was full
func (d *EventDispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Start processes queued jobs until ctx is cancelled, then drains what is left
func (d *EventDispatcher) Start(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case job := <-d.jobs:
			d.run(ctx, job)
		case <-ctx.Done():
			d.drain()
			d.logger.Info("event dispatcher stopped")
			return
		}
	}
}

// Wait blocks until Start has returned
func (d *EventDispatcher) Wait() {
	<-d.done
}

func (d *EventDispatcher) drain() {
	for {
		select {
		case job := <-d.jobs:
			d.run(context.Background(), job)
		default:
			return
		}
	}
}

func (d *EventDispatcher) run(ctx context.Context, job dispatchJob) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := job.fn(jobCtx); err != nil {
		d.logger.Error("security event dispatch failed",
			slog.String("job", job.name),
			slog.Any("error", err))
	}
}
