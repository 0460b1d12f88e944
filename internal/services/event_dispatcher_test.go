package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventDispatcher_RunsJobsAndDrainsOnCancel(t *testing.T) {
	d := NewEventDispatcher(16, slog.Default())
	var ran atomic.Int32

	for i := 0; i < 10; i++ {
		ok := d.Submit("count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		assert.True(t, ok)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)

	assert.Equal(t, int32(10), ran.Load())
}

func TestEventDispatcher_DropsWhenFull(t *testing.T) {
	d := NewEventDispatcher(2, slog.Default())
	noop := func(ctx context.Context) error { return nil }

	assert.True(t, d.Submit("a", noop))
	assert.True(t, d.Submit("b", noop))
	assert.False(t, d.Submit("c", noop))
	assert.Equal(t, int64(1), d.Dropped())
}

func TestEventDispatcher_JobErrorsDoNotStopWorker(t *testing.T) {
	d := NewEventDispatcher(8, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)

	done := make(chan struct{})
	d.Submit("fails", func(ctx context.Context) error { return errors.New("boom") })
	d.Submit("succeeds", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second job did not run")
	}

	cancel()
	d.Wait()
}

func TestEventDispatcher_JobContextHasDeadline(t *testing.T) {
	d := NewEventDispatcher(1, slog.Default())
	var hasDeadline bool
	d.Submit("deadline", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)

	// drained jobs run even though the dispatcher's context is already cancelled
	assert.True(t, hasDeadline)
}
