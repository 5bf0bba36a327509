// Package loader implements the chunked look-ahead loader: it bridges a
// potentially huge on-disk job set to the bounded in-memory timer set by clearing
// and re-populating the timer set from a single windowed store query, ordered by
// next_run ascending with a fixed chunkSize limit, since the engine only ever
// needs to arm the earliest chunkSize entries before the next refresh tick picks
// up the rest.
package loader

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/twlite/hypercron/internal/clock"
	"github.com/twlite/hypercron/internal/executor"
	"github.com/twlite/hypercron/internal/registry"
	"github.com/twlite/hypercron/internal/store"
	"github.com/twlite/hypercron/internal/timerset"
)

// Loader runs the chunk-loading protocol: snapshot now, clear the timer set, query
// the store for the next chunkSize due jobs, and arm a fresh timer for each one
// that has a registered handler.
type Loader struct {
	Store           store.Store
	Registry        *registry.Registry
	Timers          *timerset.Set
	Executor        *executor.Executor
	Clock           clock.Clock
	ChunkSize       int
	LookAheadWindow time.Duration
	Log             zerolog.Logger
}

// Load runs one pass of the chunk-loading protocol.
func (l *Loader) Load(ctx context.Context) error {
	now := l.Clock.NowMillis()
	windowEnd := now + l.LookAheadWindow.Milliseconds()

	l.Timers.Clear()

	jobs, err := l.Store.WindowQuery(ctx, now, windowEnd, l.ChunkSize)
	if err != nil {
		return err
	}

	armed := 0
	skippedNoHandler := 0
	for _, job := range jobs {
		if _, ok := l.Registry.Get(job.Identifier); !ok {
			skippedNoHandler++
			continue
		}
		nowFresh := l.Clock.NowMillis()
		delay := time.Duration(job.NextRun-nowFresh) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		identifier := job.Identifier
		l.Timers.Arm(identifier, delay, func() { l.Executor.Fire(ctx, identifier) })
		armed++
	}

	l.Log.Debug().
		Int("due", len(jobs)).
		Int("armed", armed).
		Int("skipped_no_handler", skippedNoHandler).
		Int64("window_end", windowEnd).
		Msg("loader: chunk load complete")
	return nil
}
