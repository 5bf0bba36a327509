package hypercron

import (
	"context"
	"time"

	"github.com/twlite/hypercron/errs"
)

// withInit runs fn against the store, transparently initialising the schema and
// retrying once if the store reports ErrNotInitialised. This lets facade methods
// be called before Start without callers ever seeing a NOT_INITIALISED error for
// what is, from their point of view, a first use.
func (s *Scheduler) withInit(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		if !isNotInitialised(err) {
			return err
		}
		if initErr := s.ensureInit(ctx); initErr != nil {
			return initErr
		}
		return fn(ctx)
	}
	return nil
}

func isNotInitialised(err error) bool {
	for e := err; e != nil; {
		if e == errs.ErrNotInitialised {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

func (s *Scheduler) ensureInit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialised {
		return nil
	}
	if err := s.store.Init(ctx); err != nil {
		return err
	}
	s.initialised = true
	return nil
}

// Start initialises the schema if needed, runs one chunk load to arm whatever is
// already due, and launches the refresh and (if enabled) cleanup background loops.
// It is idempotent: calling Start while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	if err := s.storeInitLocked(ctx); err != nil {
		s.mu.Unlock()
		return errs.New(errs.KindStore, "Start", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.currentRunCtx = runCtx
	s.executor.SetContext(runCtx)
	s.running = true
	s.mu.Unlock()

	if err := s.loader.Load(runCtx); err != nil {
		s.log.Warn().Err(err).Msg("hypercron: initial chunk load failed")
	}

	s.wg.Add(1)
	go s.refreshLoop(runCtx)

	if s.cfg.AutoCleanupEnabled {
		s.wg.Add(1)
		go s.cleanupLoop(runCtx)
	}

	return nil
}

func (s *Scheduler) storeInitLocked(ctx context.Context) error {
	if s.initialised {
		return nil
	}
	if err := s.store.Init(ctx); err != nil {
		return err
	}
	s.initialised = true
	return nil
}

// Stop cancels the background loops and waits for them to exit, then clears every
// pending in-memory timer. It is idempotent. The durable schedule is untouched;
// a later Start resumes from the store, not from a cold boot.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.timers.Clear()
	return nil
}

// Destroy stops the engine and closes the underlying store handle. The Scheduler
// must not be used again after Destroy returns.
func (s *Scheduler) Destroy() error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.store.Close()
}

// refreshLoop periodically re-runs the chunk-loading protocol so jobs that fall
// inside the look-ahead window between loads still get armed in time.
func (s *Scheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.loader.Load(ctx); err != nil {
				s.log.Warn().Err(err).Msg("hypercron: refresh loop chunk load failed")
			}
		}
	}
}

// cleanupLoop periodically deletes terminal jobs past their configured retention
// window.
func (s *Scheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.TriggerAutoCleanup(ctx); err != nil {
				s.log.Warn().Err(err).Msg("hypercron: auto cleanup failed")
			}
		}
	}
}
