// Package sqlite is the embedded store.Store implementation. It is grounded on two
// patterns from the retrieval pack: inipew-pewbot's internal/storage/sqlite.go sets
// journal_mode=WAL and synchronous=NORMAL pragmas on open and embeds its schema with
// go:embed, and udaykr117-QueueCTL's storage.go favours putting the WAL pragma
// straight into the DSN. We do both: the DSN carries _pragma params for the driver
// to apply atomically at connection time, and Open re-asserts journal_mode and
// synchronous with explicit PRAGMA statements.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/twlite/hypercron/errs"
	"github.com/twlite/hypercron/internal/store"
	"github.com/twlite/hypercron/state"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is a modernc.org/sqlite-backed store.Store.
type Store struct {
	db          *sql.DB
	initialised bool
}

// Open opens (creating if necessary) a SQLite database at path. Use ":memory:" for
// an ephemeral store, the convention the engine's own tests rely on.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("hypercron: create db dir: %w", err)
			}
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("hypercron: open sqlite: %w", err)
	}
	// SQLite tolerates a single writer; a connection pool wider than one just
	// serialises at the driver level while hiding contention from Go's pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("hypercron: set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("hypercron: set synchronous: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Init(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("hypercron: read migrations: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("hypercron: apply migrations: %w", err)
	}
	s.initialised = true
	return nil
}

func (s *Store) requireInit() error {
	if !s.initialised {
		return errs.ErrNotInitialised
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, job store.Job) error {
	if err := s.requireInit(); err != nil {
		return err
	}

	var cronExpr, specificTime any
	if job.IsRecurring() {
		cronExpr = job.CronExpression
	} else {
		specificTime = job.SpecificTime
	}
	var lastRun any
	if job.LastRun != 0 {
		lastRun = job.LastRun
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_jobs (id, identifier, cron_expression, specific_time, status, next_run, last_run, run_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET
			id              = excluded.id,
			cron_expression = excluded.cron_expression,
			specific_time   = excluded.specific_time,
			status          = excluded.status,
			next_run        = excluded.next_run,
			last_run        = excluded.last_run,
			run_count       = excluded.run_count,
			created_at      = excluded.created_at,
			updated_at      = excluded.updated_at
	`, job.ID, job.Identifier, cronExpr, specificTime, string(job.Status), job.NextRun, lastRun, job.RunCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("hypercron: upsert job %q: %w", job.Identifier, err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, identifier string, status state.Status, updatedAt int64) (bool, error) {
	if err := s.requireInit(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cron_jobs SET status = ?, updated_at = ? WHERE identifier = ?
	`, string(status), updatedAt, identifier)
	if err != nil {
		return false, fmt.Errorf("hypercron: update status %q: %w", identifier, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *Store) ApplyPostExecution(ctx context.Context, identifier string, lastRun, nextRun, runCount int64, status state.Status, updatedAt int64) (bool, error) {
	if err := s.requireInit(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cron_jobs
		SET last_run = ?, next_run = ?, run_count = ?, status = ?, updated_at = ?
		WHERE identifier = ? AND status = ?
	`, lastRun, nextRun, runCount, string(status), updatedAt, identifier, string(state.Active))
	if err != nil {
		return false, fmt.Errorf("hypercron: apply post-execution %q: %w", identifier, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (store.Job, error) {
	if err := s.requireInit(); err != nil {
		return store.Job{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, identifier, cron_expression, specific_time, status, next_run, last_run, run_count, created_at, updated_at
		FROM cron_jobs WHERE identifier = ?
	`, identifier)

	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return store.Job{}, errs.ErrNotFound
		}
		return store.Job{}, fmt.Errorf("hypercron: get job %q: %w", identifier, err)
	}
	return job, nil
}

func (s *Store) WindowQuery(ctx context.Context, now, windowEnd int64, limit int) ([]store.Job, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identifier, cron_expression, specific_time, status, next_run, last_run, run_count, created_at, updated_at
		FROM cron_jobs
		WHERE status = ? AND next_run > ? AND next_run <= ?
		ORDER BY next_run ASC
		LIMIT ?
	`, string(state.Active), now, windowEnd, limit)
	if err != nil {
		return nil, fmt.Errorf("hypercron: window query: %w", err)
	}
	defer rows.Close()

	var jobs []store.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("hypercron: scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context) (store.StatusCounts, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM cron_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("hypercron: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(store.StatusCounts)
	for rows.Next() {
		var statusStr string
		var n int64
		if err := rows.Scan(&statusStr, &n); err != nil {
			return nil, err
		}
		counts[state.Status(statusStr)] = n
	}
	for _, st := range state.All {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts, rows.Err()
}

func (s *Store) CountActive(ctx context.Context) (int64, error) {
	return s.countWhere(ctx, `status = ?`, string(state.Active))
}

func (s *Store) CountCompleted(ctx context.Context) (int64, error) {
	return s.countWhere(ctx, `status = ?`, string(state.Completed))
}

func (s *Store) CountActiveDueBy(ctx context.Context, windowEnd int64) (int64, error) {
	return s.countWhere(ctx, `status = ? AND next_run <= ?`, string(state.Active), windowEnd)
}

func (s *Store) countWhere(ctx context.Context, where string, args ...any) (int64, error) {
	if err := s.requireInit(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cron_jobs WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("hypercron: count: %w", err)
	}
	return n, nil
}

func (s *Store) SumRunCount(ctx context.Context) (int64, error) {
	if err := s.requireInit(); err != nil {
		return 0, err
	}
	var n sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(run_count) FROM cron_jobs`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("hypercron: sum run_count: %w", err)
	}
	return n.Int64, nil
}

func (s *Store) DeleteTerminal(ctx context.Context, status state.Status, cutoff int64) (int64, error) {
	if err := s.requireInit(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cron_jobs WHERE status = ? AND updated_at < ?
	`, string(status), cutoff)
	if err != nil {
		return 0, fmt.Errorf("hypercron: delete terminal %s: %w", status, err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (store.Job, error) {
	var job store.Job
	var cronExpr sql.NullString
	var specificTime sql.NullInt64
	var lastRun sql.NullInt64
	var statusStr string

	err := row.Scan(
		&job.ID, &job.Identifier, &cronExpr, &specificTime, &statusStr,
		&job.NextRun, &lastRun, &job.RunCount, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return store.Job{}, err
	}

	job.CronExpression = cronExpr.String
	job.SpecificTime = specificTime.Int64
	job.LastRun = lastRun.Int64
	job.Status = state.Status(statusStr)
	return job, nil
}
