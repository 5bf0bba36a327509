// Package store defines the durable job record and the persistence contract the
// scheduling engine drives — one method per operation the engine needs, nothing
// more.
package store

import (
	"context"

	"github.com/twlite/hypercron/state"
)

// Job is the durable representation of a scheduled job. Exactly one of
// CronExpression and SpecificTime is non-zero, enforced by the store's schema and
// by the facade's schedule-input parsing before it ever reaches here.
type Job struct {
	ID             string
	Identifier     string
	CronExpression string
	SpecificTime   int64 // ms since epoch; 0 means unset
	Status         state.Status
	NextRun        int64 // ms since epoch
	LastRun        int64 // ms since epoch; 0 means unset
	RunCount       int64
	CreatedAt      int64
	UpdatedAt      int64
}

// IsRecurring reports whether the job is driven by a cron expression rather than a
// one-shot instant.
func (j Job) IsRecurring() bool {
	return j.CronExpression != ""
}

// StatusCounts maps every status to the number of jobs currently in it.
type StatusCounts map[state.Status]int64

// Store is the durable job table the engine reads and writes. Implementations must
// make ApplyPostExecution atomic and gated on the row's current status so a
// concurrent Pause/Cancel cannot be silently overwritten by a finishing execution.
type Store interface {
	// Init creates the schema and indexes if they do not already exist. Idempotent.
	Init(ctx context.Context) error

	// Upsert inserts a new job or replaces the existing row for the same Identifier.
	Upsert(ctx context.Context, job Job) error

	// UpdateStatus sets status unconditionally and reports whether a row was affected.
	UpdateStatus(ctx context.Context, identifier string, status state.Status, updatedAt int64) (bool, error)

	// ApplyPostExecution performs the single-row update an executed firing writes,
	// gated on the row's status still being Active. ok is false if the gate failed
	// (the job was paused/cancelled mid-execution) or the row no longer exists.
	ApplyPostExecution(ctx context.Context, identifier string, lastRun, nextRun, runCount int64, status state.Status, updatedAt int64) (ok bool, err error)

	// GetByIdentifier returns the full record, or errs.ErrNotFound.
	GetByIdentifier(ctx context.Context, identifier string) (Job, error)

	// WindowQuery returns up to limit Active jobs with now < NextRun <= windowEnd,
	// ordered by NextRun ascending.
	WindowQuery(ctx context.Context, now, windowEnd int64, limit int) ([]Job, error)

	CountByStatus(ctx context.Context) (StatusCounts, error)
	CountActive(ctx context.Context) (int64, error)
	CountCompleted(ctx context.Context) (int64, error)
	SumRunCount(ctx context.Context) (int64, error)
	CountActiveDueBy(ctx context.Context, windowEnd int64) (int64, error)

	// DeleteTerminal deletes rows with the given status and UpdatedAt < cutoff,
	// returning the number of rows removed.
	DeleteTerminal(ctx context.Context, status state.Status, cutoff int64) (int64, error)

	Close() error
}
