package ai

import (
	"context"
	"sync"
	"time"

	"anonboard/pkg/logger"
)

// Runner executes fire-and-forget tasks detached from the request that
// triggered them. Each task gets its own bounded context, so a hung
// generation call can never outlive the configured maximum; failures are
// logged and never retried beyond what the task itself does.
type Runner struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Runner{timeout: timeout}
}

// Go schedules fn on a detached goroutine. The parent request's context is
// deliberately not inherited: the task must survive the handler returning.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("background_task_panic", "task", name, "panic", rec)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Warn("background_task_failed", "task", name, "error", err)
		}
	}()
}

// Wait blocks until all scheduled tasks finish; used during shutdown and
// by tests.
func (r *Runner) Wait() { r.wg.Wait() }
