// Package executor implements the per-job execution pipeline: handler invocation
// with exponential-backoff retries, the gated post-execution store update, and
// re-arming the fired job's timer when its new next_run still falls inside the
// look-ahead window.
//
// A golang.org/x/sync/semaphore.Weighted caps concurrent firings across the whole
// engine, since firings arrive one at a time from independent timers rather than
// in batches.
package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/twlite/hypercron/errs"
	"github.com/twlite/hypercron/internal/clock"
	"github.com/twlite/hypercron/internal/cronparse"
	"github.com/twlite/hypercron/internal/registry"
	"github.com/twlite/hypercron/internal/store"
	"github.com/twlite/hypercron/internal/timerset"
	"github.com/twlite/hypercron/state"
)

// RetryConfig controls the exponential-backoff retry loop. MaxAttempts = 1
// disables retries entirely, rather than needing a separate "retries enabled" flag.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Executor drives a single job's firing from timer trigger through to the
// post-execution store update and re-arm decision.
type Executor struct {
	Store           store.Store
	Registry        *registry.Registry
	Cron            *cronparse.Adapter
	Clock           clock.Clock
	Timers          *timerset.Set
	Retry           RetryConfig
	LookAheadWindow time.Duration
	OnError         func(identifier string, err error)
	Log             zerolog.Logger

	sem    *semaphore.Weighted
	runCtx context.Context
}

// SetContext installs the context used for timers the executor re-arms itself
// (as opposed to arms driven by the facade or the chunk loader). Call it once
// after Start with a context cancelled on Stop/Destroy.
func (e *Executor) SetContext(ctx context.Context) {
	e.runCtx = ctx
}

func (e *Executor) context() context.Context {
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// NewExecutor builds an Executor that admits at most maxConcurrent firings at once.
func NewExecutor(maxConcurrent int64) *Executor {
	return &Executor{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Fire is invoked by the timer set when a job's timer expires. It never returns an
// error: every failure mode is logged or routed to OnError, per the engine's
// propagation policy that background execution must never abort the process.
func (e *Executor) Fire(ctx context.Context, identifier string) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.Log.Warn().Str("identifier", identifier).Err(err).Msg("executor: semaphore acquire failed")
		return
	}
	defer e.sem.Release(1)

	e.Timers.Remove(identifier)

	handler, ok := e.Registry.Get(identifier)
	if !ok {
		e.Log.Warn().Str("identifier", identifier).Msg("executor: no handler registered, skipping firing")
		return
	}

	lastErr := e.runWithRetry(ctx, identifier, handler)
	if lastErr != nil {
		e.reportError(identifier, lastErr)
	}

	// The post-execution update still runs if Stop cancelled ctx while the handler
	// was running.
	e.applyPostExecution(context.WithoutCancel(ctx), identifier)
}

// runWithRetry invokes handler up to Retry.MaxAttempts times, sleeping for an
// exponentially growing backoff between failed attempts. It returns the error from
// the final attempt, or nil if any attempt succeeded.
func (e *Executor) runWithRetry(ctx context.Context, identifier string, handler registry.Handler) error {
	maxAttempts := e.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := handler()
		if err == nil {
			return nil
		}
		lastErr = err
		e.Log.Warn().Str("identifier", identifier).Int("attempt", attempt).Err(err).Msg("executor: handler attempt failed")

		if attempt == maxAttempts {
			break
		}
		delay := backoffDelay(e.Retry.BaseDelay, e.Retry.MaxDelay, attempt)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return lastErr
}

// backoffDelay computes min(maxDelay, baseDelay * 2^(attempt-1)).
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (e *Executor) reportError(identifier string, err error) {
	if e.OnError != nil {
		e.OnError(identifier, err)
		return
	}
	e.Log.Error().Str("identifier", identifier).Err(err).Msg("executor: handler exhausted retries")
}

// applyPostExecution reads the job gated on status=active, computes its next state,
// and writes it back atomically. If the gate fails — the job was paused or
// cancelled while its handler ran — timings are left untouched and no timer is
// re-armed, preserving pause/cancel semantics under concurrent mutation.
func (e *Executor) applyPostExecution(ctx context.Context, identifier string) {
	job, err := e.Store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if err != errs.ErrNotFound {
			e.Log.Error().Str("identifier", identifier).Err(err).Msg("executor: read job before post-execution update failed")
		}
		return
	}
	if job.Status != state.Active {
		e.Log.Debug().Str("identifier", identifier).Str("status", job.Status.String()).Msg("executor: job no longer active, skipping advance")
		return
	}

	now := e.Clock.NowMillis()
	var nextRun int64
	var newStatus state.Status

	if job.IsRecurring() {
		next, err := e.Cron.Next(job.CronExpression, e.Clock.Now())
		if err != nil {
			e.Log.Error().Str("identifier", identifier).Err(err).Msg("executor: recompute next_run failed")
			return
		}
		nextRun = next.UnixMilli()
		newStatus = state.Active
	} else {
		nextRun = job.SpecificTime
		newStatus = state.Completed
	}

	ok, err := e.Store.ApplyPostExecution(ctx, identifier, now, nextRun, job.RunCount+1, newStatus, now)
	if err != nil {
		e.Log.Error().Str("identifier", identifier).Err(err).Msg("executor: apply post-execution failed")
		return
	}
	if !ok {
		// Status changed between the read above and the gated write; treat the
		// same as an already-observed pause/cancel.
		e.Log.Debug().Str("identifier", identifier).Msg("executor: post-execution gate missed, job mutated concurrently")
		return
	}

	if newStatus == state.Active && e.context().Err() == nil && time.Duration(nextRun-now)*time.Millisecond <= e.LookAheadWindow {
		delay := time.Duration(nextRun-now) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		e.Timers.Arm(identifier, delay, func() { e.Fire(e.context(), identifier) })
	}
}
