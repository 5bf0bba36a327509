package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twlite/hypercron/internal/clock"
	"github.com/twlite/hypercron/internal/cronparse"
	"github.com/twlite/hypercron/internal/registry"
	"github.com/twlite/hypercron/internal/store"
	"github.com/twlite/hypercron/internal/store/sqlite"
	"github.com/twlite/hypercron/internal/timerset"
	"github.com/twlite/hypercron/state"
)

func newTestExecutor(t *testing.T) (*Executor, store.Store, *registry.Registry, *clock.Fake) {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg := registry.New()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	e := NewExecutor(10)
	e.Store = st
	e.Registry = reg
	e.Cron = cronparse.New()
	e.Clock = fake
	e.Timers = timerset.New()
	e.Retry = RetryConfig{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond}
	e.LookAheadWindow = time.Hour
	e.Log = zerolog.Nop()

	return e, st, reg, fake
}

func TestExecutor_Fire_OneShotSucceedsAndCompletes(t *testing.T) {
	e, st, reg, fake := newTestExecutor(t)
	ctx := context.Background()

	var invocations atomic.Int32
	reg.Register("job-1", func() error {
		invocations.Add(1)
		return nil
	})

	require.NoError(t, st.Upsert(ctx, store.Job{
		ID: "id-1", Identifier: "job-1", SpecificTime: fake.NowMillis() + 1000,
		Status: state.Active, NextRun: fake.NowMillis() + 1000,
		CreatedAt: fake.NowMillis(), UpdatedAt: fake.NowMillis(),
	}))

	e.Fire(ctx, "job-1")

	assert.Equal(t, int32(1), invocations.Load())
	job, err := st.GetByIdentifier(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, state.Completed, job.Status)
	assert.Equal(t, int64(1), job.RunCount)
}

func TestExecutor_Fire_RecurringReArmsWithinWindow(t *testing.T) {
	e, st, reg, fake := newTestExecutor(t)
	ctx := context.Background()

	reg.Register("job-1", func() error { return nil })
	require.NoError(t, st.Upsert(ctx, store.Job{
		ID: "id-1", Identifier: "job-1", CronExpression: "* * * * * *",
		Status: state.Active, NextRun: fake.NowMillis() + 1000,
		CreatedAt: fake.NowMillis(), UpdatedAt: fake.NowMillis(),
	}))

	e.Fire(ctx, "job-1")

	job, err := st.GetByIdentifier(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, state.Active, job.Status)
	assert.Equal(t, int64(1), job.RunCount)
	assert.True(t, e.Timers.Has("job-1"))
}

func TestExecutor_Fire_RetriesThenSucceeds(t *testing.T) {
	e, st, reg, fake := newTestExecutor(t)
	ctx := context.Background()

	var attempts atomic.Int32
	reg.Register("job-1", func() error {
		n := attempts.Add(1)
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, st.Upsert(ctx, store.Job{
		ID: "id-1", Identifier: "job-1", CronExpression: "* * * * * *",
		Status: state.Active, NextRun: fake.NowMillis() + 1000,
		CreatedAt: fake.NowMillis(), UpdatedAt: fake.NowMillis(),
	}))

	var onErrorCalls atomic.Int32
	e.OnError = func(identifier string, err error) { onErrorCalls.Add(1) }

	e.Fire(ctx, "job-1")

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int32(0), onErrorCalls.Load())

	job, err := st.GetByIdentifier(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.RunCount)
}

func TestExecutor_Fire_RetriesExhausted(t *testing.T) {
	e, st, reg, fake := newTestExecutor(t)
	ctx := context.Background()

	var attempts atomic.Int32
	reg.Register("job-1", func() error {
		attempts.Add(1)
		return errors.New("permanent")
	})
	require.NoError(t, st.Upsert(ctx, store.Job{
		ID: "id-1", Identifier: "job-1", CronExpression: "* * * * * *",
		Status: state.Active, NextRun: fake.NowMillis() + 1000,
		CreatedAt: fake.NowMillis(), UpdatedAt: fake.NowMillis(),
	}))

	var onErrorCalls atomic.Int32
	var lastErr error
	e.OnError = func(identifier string, err error) {
		onErrorCalls.Add(1)
		lastErr = err
	}

	e.Fire(ctx, "job-1")

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int32(1), onErrorCalls.Load())
	require.Error(t, lastErr)

	job, err := st.GetByIdentifier(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.RunCount, "run_count advances even after retry exhaustion")
	assert.Equal(t, state.Active, job.Status)
}

func TestExecutor_Fire_NoHandlerRegistered(t *testing.T) {
	e, st, _, fake := newTestExecutor(t)
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, store.Job{
		ID: "id-1", Identifier: "job-1", CronExpression: "* * * * * *",
		Status: state.Active, NextRun: fake.NowMillis() + 1000,
		CreatedAt: fake.NowMillis(), UpdatedAt: fake.NowMillis(),
	}))

	e.Fire(ctx, "job-1")

	job, err := st.GetByIdentifier(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), job.RunCount, "a missing handler must not mutate the record")
}

func TestExecutor_Fire_GatedUpdateSkipsWhenPaused(t *testing.T) {
	e, st, reg, fake := newTestExecutor(t)
	ctx := context.Background()

	reg.Register("job-1", func() error {
		_, err := st.UpdateStatus(ctx, "job-1", state.Paused, fake.NowMillis())
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, st.Upsert(ctx, store.Job{
		ID: "id-1", Identifier: "job-1", CronExpression: "* * * * * *",
		Status: state.Active, NextRun: fake.NowMillis() + 1000,
		CreatedAt: fake.NowMillis(), UpdatedAt: fake.NowMillis(),
	}))

	e.Fire(ctx, "job-1")

	job, err := st.GetByIdentifier(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, state.Paused, job.Status)
	assert.Equal(t, int64(0), job.RunCount, "gate must suppress the post-execution update")
}

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	assert.Equal(t, base, backoffDelay(base, max, 1))
	assert.Equal(t, 2*base, backoffDelay(base, max, 2))
	assert.Equal(t, 4*base, backoffDelay(base, max, 3))
	assert.Equal(t, max, backoffDelay(base, max, 20))
}
