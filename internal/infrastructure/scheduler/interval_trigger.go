package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Schedule submits Kind every Interval
type Schedule struct {
	Kind       JobKind
	Interval   time.Duration
	RunOnStart bool
}

// IntervalTrigger feeds the scheduler on fixed intervals. A tick whose
// previous job is still queued is skipped by the full-queue check.
type IntervalTrigger struct {
	schedules []Schedule
	scheduler *Scheduler
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a trigger for the given schedules
func NewIntervalTrigger(scheduler *Scheduler, logger *zap.Logger, schedules ...Schedule) *IntervalTrigger {
	return &IntervalTrigger{
		schedules: schedules,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Start starts one ticker per schedule
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	for _, sch := range t.schedules {
		if sch.Interval <= 0 {
			t.logger.Warn("Skipping schedule with no interval", zap.String("kind", string(sch.Kind)))
			continue
		}
		t.wg.Add(1)
		go t.runLoop(ctx, sch)
		t.logger.Info("Job schedule registered",
			zap.String("kind", string(sch.Kind)),
			zap.Duration("interval", sch.Interval),
		)
	}
	return nil
}

// Stop stops the trigger
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.cancel()
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerNow submits kind immediately
func (t *IntervalTrigger) TriggerNow(kind JobKind) (*Job, error) {
	return t.scheduler.Submit(kind)
}

func (t *IntervalTrigger) runLoop(ctx context.Context, sch Schedule) {
	defer t.wg.Done()

	if sch.RunOnStart {
		t.fire(sch.Kind)
	}

	ticker := time.NewTicker(sch.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fire(sch.Kind)
		}
	}
}

func (t *IntervalTrigger) fire(kind JobKind) {
	if _, err := t.scheduler.Submit(kind); err != nil {
		if errors.Is(err, ErrJobQueueFull) {
			t.logger.Warn("Job queue full, skipping tick", zap.String("kind", string(kind)))
			return
		}
		t.logger.Error("Failed to submit job", zap.String("kind", string(kind)), zap.Error(err))
	}
}
