// Package hypercron is a persistent, single-process cron-style job scheduler.
// Callers register named jobs tied to either a recurring cron expression or a
// one-shot absolute timestamp; the Scheduler fires each job's in-process handler at
// the correct wall-clock moment, persists job state across restarts, retries
// transient handler failures with exponential backoff, and garbage-collects
// terminal jobs past their retention window.
//
// Handlers are in-process callables and are never persisted: after a restart, the
// caller must re-register a handler for every identifier it still cares about
// before jobs under that identifier can fire again. The durable schedule survives
// the restart regardless.
package hypercron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/twlite/hypercron/errs"
	"github.com/twlite/hypercron/internal/clock"
	"github.com/twlite/hypercron/internal/cronparse"
	"github.com/twlite/hypercron/internal/executor"
	"github.com/twlite/hypercron/internal/loader"
	"github.com/twlite/hypercron/internal/registry"
	"github.com/twlite/hypercron/internal/store"
	"github.com/twlite/hypercron/internal/store/sqlite"
	"github.com/twlite/hypercron/internal/timerset"
	"github.com/twlite/hypercron/state"
)

// Handler is the callable a scheduled job invokes when it fires.
type Handler func() error

// Scheduler is the public facade over the engine's store, timer set, handler
// registry, executor, and background loops.
type Scheduler struct {
	cfg      *Config
	store    store.Store
	registry *registry.Registry
	timers   *timerset.Set
	cron     *cronparse.Adapter
	clock    clock.Clock
	executor *executor.Executor
	loader   *loader.Loader
	log      zerolog.Logger

	mu            sync.Mutex
	running       bool
	initialised   bool
	cancel        context.CancelFunc
	currentRunCtx context.Context
	wg            sync.WaitGroup
}

// New constructs a Scheduler backed by an embedded SQLite store at cfg.Path. It
// does not start the background loops — call Start explicitly, or rely on the
// implicit start the first call to Schedule performs.
func New(cfg *Config) (*Scheduler, error) {
	st, err := sqlite.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	return newWithDeps(cfg, st, clock.System{})
}

// newWithDeps wires a Scheduler from injected dependencies. It is unexported
// because external callers cannot construct internal/store.Store or
// internal/clock.Clock values; the engine's own tests use it to inject an
// in-memory store and a Fake clock.
func newWithDeps(cfg *Config, st store.Store, clk clock.Clock) (*Scheduler, error) {
	reg := registry.New()
	timers := timerset.New()
	cronAdapter := cronparse.New()

	exec := executor.NewExecutor(cfg.MaxConcurrentExecutions)
	exec.Store = st
	exec.Registry = reg
	exec.Cron = cronAdapter
	exec.Clock = clk
	exec.Timers = timers
	exec.Retry = executor.RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
	exec.LookAheadWindow = cfg.LookAheadWindow
	exec.OnError = cfg.OnError
	exec.Log = cfg.Logger

	ld := &loader.Loader{
		Store:           st,
		Registry:        reg,
		Timers:          timers,
		Executor:        exec,
		Clock:           clk,
		ChunkSize:       cfg.ChunkSize,
		LookAheadWindow: cfg.LookAheadWindow,
		Log:             cfg.Logger,
	}

	return &Scheduler{
		cfg:      cfg,
		store:    st,
		registry: reg,
		timers:   timers,
		cron:     cronAdapter,
		clock:    clk,
		executor: exec,
		loader:   ld,
		log:      cfg.Logger,
	}, nil
}

// Schedule registers handler under identifier and persists a job driven by input.
// Re-scheduling an existing identifier replaces its prior handler and scheduling
// state (run_count resets to 0). If the engine is not yet running, Schedule starts
// it; otherwise, if the new job is due within the look-ahead window, its timer is
// armed immediately instead of waiting for the next refresh tick.
func (s *Scheduler) Schedule(ctx context.Context, input ScheduleInput, identifier string, handler Handler) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("%w: identifier must not be empty", errs.ErrInvalidConfig)
	}

	now := s.clock.NowMillis()
	parsedIn, err := s.parseInput(input, now)
	if err != nil {
		return "", errs.New(errs.KindConfig, "Schedule", err)
	}

	id := uuid.NewString()
	job := store.Job{
		ID:             id,
		Identifier:     identifier,
		CronExpression: parsedIn.cronExpression,
		SpecificTime:   parsedIn.specificTime,
		Status:         state.Active,
		NextRun:        parsedIn.nextRun,
		RunCount:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.withInit(ctx, func(ctx context.Context) error {
		return s.store.Upsert(ctx, job)
	}); err != nil {
		return "", errs.New(errs.KindStore, "Schedule", err)
	}

	s.registry.Register(identifier, registry.Handler(handler))

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		if err := s.Start(ctx); err != nil {
			return id, errs.New(errs.KindStore, "Schedule", err)
		}
		return id, nil
	}

	windowEnd := now + s.cfg.LookAheadWindow.Milliseconds()
	if job.NextRun > now && job.NextRun <= windowEnd {
		delay := time.Duration(job.NextRun-now) * time.Millisecond
		s.timers.Arm(identifier, delay, func() { s.executor.Fire(s.runContext(), identifier) })
	}

	return id, nil
}

// transitionTo moves identifier to target. An unknown identifier, a job already
// at target, or a job already in a terminal status all report affected=false,
// err=nil — that is what makes Cancel/Pause/Resume idempotent. Only a transition
// that state.IsValidTransition actually forbids (and that isn't covered by one of
// those no-op cases) is reported as an error.
func (s *Scheduler) transitionTo(ctx context.Context, identifier string, target state.Status) (bool, error) {
	var job store.Job
	err := s.withInit(ctx, func(ctx context.Context) error {
		j, err := s.store.GetByIdentifier(ctx, identifier)
		job = j
		return err
	})
	if err != nil {
		if err == errs.ErrNotFound {
			return false, nil
		}
		return false, errs.New(errs.KindStore, "transitionTo", err)
	}
	if job.Status == target || job.Status.Terminal() {
		return false, nil
	}
	if !state.IsValidTransition(job.Status, target) {
		return false, fmt.Errorf("%w: cannot move %q from %s to %s", errs.ErrInvalidConfig, identifier, job.Status, target)
	}

	now := s.clock.NowMillis()
	ok, err := s.store.UpdateStatus(ctx, identifier, target, now)
	if err != nil {
		return false, errs.New(errs.KindStore, "transitionTo", err)
	}
	return ok, nil
}

// Cancel transitions identifier to cancelled, drops its pending timer, and removes
// its handler from the registry. It is idempotent: calling it on an already
// cancelled or unknown identifier reports affected=false rather than an error.
func (s *Scheduler) Cancel(ctx context.Context, identifier string) (bool, error) {
	affected, err := s.transitionTo(ctx, identifier, state.Cancelled)
	if err != nil {
		return false, err
	}
	s.timers.Cancel(identifier)
	s.registry.Unregister(identifier)
	return affected, nil
}

// Pause transitions identifier to paused and drops its pending timer, but retains
// its handler in the registry so a later Resume can fire it again without the
// caller re-registering.
func (s *Scheduler) Pause(ctx context.Context, identifier string) (bool, error) {
	affected, err := s.transitionTo(ctx, identifier, state.Paused)
	if err != nil {
		return false, err
	}
	s.timers.Cancel(identifier)
	return affected, nil
}

// Resume transitions identifier back to active and triggers a chunk load so that,
// if it is now due within the look-ahead window, it gets armed without waiting for
// the next refresh tick.
func (s *Scheduler) Resume(ctx context.Context, identifier string) (bool, error) {
	affected, err := s.transitionTo(ctx, identifier, state.Active)
	if err != nil {
		return false, err
	}
	if affected {
		if err := s.loader.Load(s.runContext()); err != nil {
			s.log.Warn().Err(err).Msg("hypercron: chunk load after Resume failed")
		}
	}
	return affected, nil
}

// runContext returns the context background timers and loops should use to invoke
// the executor, valid for the lifetime of the current Start/Stop cycle.
func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return context.Background()
	}
	return s.currentRunCtx
}
