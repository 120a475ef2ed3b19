package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopfront/backend/internal/infrastructure/telemetry"
)

// JobFunc does the work of one job kind
type JobFunc func(ctx context.Context) error

// Dispatcher is a JobExecutor that routes jobs to the function registered
// for their kind
type Dispatcher struct {
	mu    sync.RWMutex
	funcs map[JobKind]JobFunc
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{funcs: make(map[JobKind]JobFunc)}
}

// Register sets the function for kind, replacing any earlier one
func (d *Dispatcher) Register(kind JobKind, fn JobFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[kind] = fn
}

// Kinds returns the registered job kinds
func (d *Dispatcher) Kinds() []JobKind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kinds := make([]JobKind, 0, len(d.funcs))
	for k := range d.funcs {
		kinds = append(kinds, k)
	}
	return kinds
}

// Execute implements JobExecutor
func (d *Dispatcher) Execute(ctx context.Context, job *Job) (err error) {
	d.mu.RLock()
	fn, ok := d.funcs[job.Kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Kind, r)
		}
	}()
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("job_"+string(job.Kind)), func(ctx context.Context) {
		err = fn(ctx)
	})
	return err
}

var _ JobExecutor = (*Dispatcher)(nil)
