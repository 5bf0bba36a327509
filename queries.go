package hypercron

import (
	"context"
	"time"

	"github.com/twlite/hypercron/errs"
	"github.com/twlite/hypercron/internal/store"
	"github.com/twlite/hypercron/state"
)

// JobInfo is the read-only snapshot of a job the facade's query methods return.
type JobInfo struct {
	ID             string
	Identifier     string
	CronExpression string
	SpecificTime   time.Time // zero if the job is recurring
	Status         state.Status
	NextRun        time.Time
	LastRun        time.Time // zero if the job has never fired
	RunCount       int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Stats is the aggregate snapshot returned by GetJobStats.
type Stats struct {
	ByStatus       map[state.Status]int64
	ActiveCount    int64
	CompletedCount int64
	TotalRuns      int64
}

// DeletedCounts reports how many rows a cleanup operation removed, broken down by
// the terminal status they were deleted from.
type DeletedCounts struct {
	Completed int64
	Cancelled int64
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func toJobInfo(j store.Job) JobInfo {
	return JobInfo{
		ID:             j.ID,
		Identifier:     j.Identifier,
		CronExpression: j.CronExpression,
		SpecificTime:   millisToTime(j.SpecificTime),
		Status:         j.Status,
		NextRun:        millisToTime(j.NextRun),
		LastRun:        millisToTime(j.LastRun),
		RunCount:       j.RunCount,
		CreatedAt:      millisToTime(j.CreatedAt),
		UpdatedAt:      millisToTime(j.UpdatedAt),
	}
}

// Get returns the current snapshot for identifier, or ErrNotFound.
func (s *Scheduler) Get(ctx context.Context, identifier string) (JobInfo, error) {
	var job store.Job
	err := s.withInit(ctx, func(ctx context.Context) error {
		j, err := s.store.GetByIdentifier(ctx, identifier)
		job = j
		return err
	})
	if err != nil {
		return JobInfo{}, err
	}
	return toJobInfo(job), nil
}

// GetJobStatus is a thin convenience wrapper over Get.
func (s *Scheduler) GetJobStatus(ctx context.Context, identifier string) (state.Status, error) {
	info, err := s.Get(ctx, identifier)
	if err != nil {
		return "", err
	}
	return info.Status, nil
}

// GetJobRunCount is a thin convenience wrapper over Get.
func (s *Scheduler) GetJobRunCount(ctx context.Context, identifier string) (int64, error) {
	info, err := s.Get(ctx, identifier)
	if err != nil {
		return 0, err
	}
	return info.RunCount, nil
}

// GetActiveJobsCount returns the number of jobs currently in the active status.
func (s *Scheduler) GetActiveJobsCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.withInit(ctx, func(ctx context.Context) error {
		v, err := s.store.CountActive(ctx)
		n = v
		return err
	})
	return n, err
}

// GetCompletedJobsCount returns the number of jobs currently in the completed status.
func (s *Scheduler) GetCompletedJobsCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.withInit(ctx, func(ctx context.Context) error {
		v, err := s.store.CountCompleted(ctx)
		n = v
		return err
	})
	return n, err
}

// GetTotalRunsCount returns the sum of run_count across every job currently in the
// store; jobs removed by cleanup no longer count.
func (s *Scheduler) GetTotalRunsCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.withInit(ctx, func(ctx context.Context) error {
		v, err := s.store.SumRunCount(ctx)
		n = v
		return err
	})
	return n, err
}

// GetJobsInWindow reports how many active jobs are due by now+window.
func (s *Scheduler) GetJobsInWindow(ctx context.Context, window time.Duration) (int64, error) {
	now := s.clock.NowMillis()
	windowEnd := now + window.Milliseconds()
	var n int64
	err := s.withInit(ctx, func(ctx context.Context) error {
		v, err := s.store.CountActiveDueBy(ctx, windowEnd)
		n = v
		return err
	})
	return n, err
}

// GetJobStats returns the full aggregate snapshot across every status.
func (s *Scheduler) GetJobStats(ctx context.Context) (Stats, error) {
	var counts store.StatusCounts
	err := s.withInit(ctx, func(ctx context.Context) error {
		c, err := s.store.CountByStatus(ctx)
		counts = c
		return err
	})
	if err != nil {
		return Stats{}, err
	}

	totalRuns, err := s.store.SumRunCount(ctx)
	if err != nil {
		return Stats{}, errs.New(errs.KindStore, "GetJobStats", err)
	}

	byStatus := make(map[state.Status]int64, len(counts))
	for st, n := range counts {
		byStatus[st] = n
	}

	return Stats{
		ByStatus:       byStatus,
		ActiveCount:    byStatus[state.Active],
		CompletedCount: byStatus[state.Completed],
		TotalRuns:      totalRuns,
	}, nil
}

// CleanupCompletedJobs deletes completed jobs whose last update is older than
// olderThanDays and reports how many rows were removed.
func (s *Scheduler) CleanupCompletedJobs(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := s.clock.NowMillis() - int64(olderThanDays)*int64(24*time.Hour/time.Millisecond)
	var n int64
	err := s.withInit(ctx, func(ctx context.Context) error {
		v, err := s.store.DeleteTerminal(ctx, state.Completed, cutoff)
		n = v
		return err
	})
	return n, err
}

// CleanupOldJobs deletes cancelled jobs whose last update is older than
// olderThanDays and reports how many rows were removed.
func (s *Scheduler) CleanupOldJobs(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := s.clock.NowMillis() - int64(olderThanDays)*int64(24*time.Hour/time.Millisecond)
	var n int64
	err := s.withInit(ctx, func(ctx context.Context) error {
		v, err := s.store.DeleteTerminal(ctx, state.Cancelled, cutoff)
		n = v
		return err
	})
	return n, err
}

// CleanupAllOldJobs deletes both completed and cancelled jobs, each against its own
// retention threshold.
func (s *Scheduler) CleanupAllOldJobs(ctx context.Context, completedRetentionDays, cancelledRetentionDays int) (DeletedCounts, error) {
	completed, err := s.CleanupCompletedJobs(ctx, completedRetentionDays)
	if err != nil {
		return DeletedCounts{}, err
	}
	cancelled, err := s.CleanupOldJobs(ctx, cancelledRetentionDays)
	if err != nil {
		return DeletedCounts{Completed: completed}, err
	}
	return DeletedCounts{Completed: completed, Cancelled: cancelled}, nil
}

// TriggerAutoCleanup runs CleanupAllOldJobs against the engine's configured
// retention days. The cleanup loop calls this on every tick; callers can also
// invoke it directly to force an off-cycle pass.
func (s *Scheduler) TriggerAutoCleanup(ctx context.Context) (DeletedCounts, error) {
	return s.CleanupAllOldJobs(ctx, s.cfg.CompletedRetentionDays, s.cfg.CancelledRetentionDays)
}
