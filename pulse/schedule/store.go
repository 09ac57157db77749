package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/metagnosis/db"
	"github.com/teranos/metagnosis/errors"
)

// Schema holds the schedule and execution history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS job (
    name TEXT PRIMARY KEY,
    next_run_time INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_next_run_time ON job(next_run_time);

CREATE TABLE IF NOT EXISTS job_execution (
    id TEXT PRIMARY KEY,
    job_name TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    completed_at INTEGER,
    duration_ms INTEGER,
    error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_job_execution_job ON job_execution(job_name, started_at);
`

// Entry is one schedule row.
type Entry struct {
	Name        string    `json:"name"`
	NextRunTime time.Time `json:"next_run_time"` // whole seconds
}

// Store handles persistence of the job schedule.
// Writes take the shared write lock; reads do not.
type Store struct {
	db   *sql.DB
	lock *db.WriteLock
}

// NewStore creates a new schedule store
func NewStore(database *sql.DB, lock *db.WriteLock) *Store {
	return &Store{db: database, lock: lock}
}

// Initialize creates the schedule tables if absent.
func (s *Store) Initialize(ctx context.Context) error {
	return s.write(ctx, func(ctx context.Context) error {
		return db.ApplySchema(ctx, s.db, Schema, nil)
	})
}

func (s *Store) write(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.lock.Acquire(ctx); err != nil {
		return errors.Wrap(err, "acquire write lock")
	}
	defer s.lock.Release()
	return fn(ctx)
}

// EnsureJob inserts a schedule row for name unless one exists, so a restart
// keeps the timing persisted by the previous process. Reports whether a row
// was inserted.
func (s *Store) EnsureJob(ctx context.Context, name string, next time.Time) (bool, error) {
	var inserted bool
	err := s.write(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO job (name, next_run_time) VALUES (?, ?)",
			name, next.Unix())
		if err != nil {
			return errors.Wrapf(err, "ensure job %s", name)
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	return inserted, err
}

// Upsert stores next as the job's next run time, but only if it is strictly
// later than the stored value. Reports whether the row changed.
func (s *Store) Upsert(ctx context.Context, name string, next time.Time) (bool, error) {
	var applied bool
	err := s.write(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO job (name, next_run_time) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET next_run_time = excluded.next_run_time
			WHERE job.next_run_time < excluded.next_run_time`,
			name, next.Unix())
		if err != nil {
			return errors.Wrapf(err, "upsert job %s", name)
		}
		n, err := res.RowsAffected()
		applied = n > 0
		return err
	})
	return applied, err
}

// ListDue returns the rows with next_run_time <= now.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]Entry, error) {
	return s.query(ctx,
		"SELECT name, next_run_time FROM job WHERE next_run_time <= ? ORDER BY next_run_time, name",
		now.Unix())
}

// List returns every schedule row, soonest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, "SELECT name, next_run_time FROM job ORDER BY next_run_time, name")
}

// Get returns the row for name.
func (s *Store) Get(ctx context.Context, name string) (Entry, error) {
	var e Entry
	var next int64
	err := s.db.QueryRowContext(ctx, "SELECT name, next_run_time FROM job WHERE name = ?", name).Scan(&e.Name, &next)
	if errors.Is(err, sql.ErrNoRows) {
		return e, errors.NewNotFoundError("job %q", name)
	}
	if err != nil {
		return e, errors.Wrapf(err, "get job %s", name)
	}
	e.NextRunTime = time.Unix(next, 0)
	return e, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var next int64
		if err := rows.Scan(&e.Name, &next); err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		e.NextRunTime = time.Unix(next, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
