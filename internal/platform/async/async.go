// Package async runs detached best-effort tasks: scan triggers, download
// counters and analytics events. Tasks outlive the request that started them,
// run with bounded parallelism and a per-task timeout, and report failure only
// through the log
package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mpak/internal/platform/config"
	"mpak/internal/platform/logger"

	"golang.org/x/sync/semaphore"
)

// Task is one unit of detached work
type Task func(ctx context.Context) error

// Spawner is what services depend on
type Spawner interface {
	Go(ctx context.Context, name string, fn Task)
}

// Runner is a bounded detached task runner
// zero value is not usable, build with New or NewRunner
type Runner struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	wg      sync.WaitGroup
}

// New builds a Runner from the ASYNC_ view (CONCURRENCY, TIMEOUT)
func New(cfg config.Conf) *Runner {
	return NewRunner(cfg.MayInt("CONCURRENCY", 16), cfg.MayDuration("TIMEOUT", 30*time.Second))
}

// NewRunner builds a Runner; non positive values fall back to 16 and 30s
func NewRunner(concurrency int, timeout time.Duration) *Runner {
	if concurrency <= 0 {
		concurrency = 16
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{sem: semaphore.NewWeighted(int64(concurrency)), timeout: timeout}
}

// Go starts fn detached from ctx cancellation but keeping its values
// the caller never waits; errors and panics are logged with the request fields
func (r *Runner) Go(ctx context.Context, name string, fn Task) {
	dctx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		tctx, cancel := context.WithTimeout(dctx, r.timeout)
		defer cancel()

		log := logger.C(dctx).With().Str("task", name).Logger()
		if err := r.sem.Acquire(tctx, 1); err != nil {
			log.Warn().Err(err).Msg("async task dropped, no slot")
			return
		}
		defer r.sem.Release(1)

		start := time.Now()
		if err := run(tctx, fn); err != nil {
			log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("async task failed")
			return
		}
		log.Debug().Dur("elapsed", time.Since(start)).Msg("async task done")
	}()
}

func run(ctx context.Context, fn Task) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task returns or ctx is done
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inline runs tasks synchronously on the caller goroutine, errors are logged
// used by tests and tools that must observe side effects before returning
type Inline struct{}

// Go runs fn immediately
func (Inline) Go(ctx context.Context, name string, fn Task) {
	if err := run(ctx, fn); err != nil {
		logger.C(ctx).Warn().Str("task", name).Err(err).Msg("inline task failed")
	}
}
