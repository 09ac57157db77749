package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/metagnosis/db"
	"github.com/teranos/metagnosis/errors"
)

// ExecutionStore handles persistence of job execution history
type ExecutionStore struct {
	db   *sql.DB
	lock *db.WriteLock
}

// NewExecutionStore creates a new execution store. Its tables come from Schema.
func NewExecutionStore(database *sql.DB, lock *db.WriteLock) *ExecutionStore {
	return &ExecutionStore{db: database, lock: lock}
}

func (s *ExecutionStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.lock.Acquire(ctx); err != nil {
		return nil, errors.Wrap(err, "acquire write lock")
	}
	defer s.lock.Release()
	return s.db.ExecContext(ctx, query, args...)
}

// Start records a running execution of job and returns it.
func (s *ExecutionStore) Start(ctx context.Context, job string, startedAt time.Time) (*Execution, error) {
	e := &Execution{
		ID:        uuid.NewString(),
		JobName:   job,
		Status:    ExecutionStatusRunning,
		StartedAt: startedAt,
	}
	_, err := s.exec(ctx,
		"INSERT INTO job_execution (id, job_name, status, started_at) VALUES (?, ?, ?, ?)",
		e.ID, e.JobName, e.Status, startedAt.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create execution")
	}
	return e, nil
}

// Finish marks e completed or failed depending on runErr.
func (s *ExecutionStore) Finish(ctx context.Context, e *Execution, completedAt time.Time, runErr error) error {
	e.CompletedAt = &completedAt
	e.Duration = completedAt.Sub(e.StartedAt)
	e.Status = ExecutionStatusCompleted
	var message any
	if runErr != nil {
		e.Status = ExecutionStatusFailed
		e.ErrorMessage = runErr.Error()
		message = e.ErrorMessage
	}

	res, err := s.exec(ctx,
		"UPDATE job_execution SET status = ?, completed_at = ?, duration_ms = ?, error_message = ? WHERE id = ?",
		e.Status, completedAt.UnixMilli(), e.Duration.Milliseconds(), message, e.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update execution")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("execution %s", e.ID)
	}
	return nil
}

// ListRecent returns the newest executions, optionally for one job.
func (s *ExecutionStore) ListRecent(ctx context.Context, job string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, status, started_at, completed_at, duration_ms, error_message
		FROM job_execution
		WHERE (? = '' OR job_name = ?)
		ORDER BY started_at DESC, id
		LIMIT ?`, job, job, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list executions")
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		var e Execution
		var started int64
		var completed, duration sql.NullInt64
		var message sql.NullString
		if err := rows.Scan(&e.ID, &e.JobName, &e.Status, &started, &completed, &duration, &message); err != nil {
			return nil, errors.Wrap(err, "scan execution")
		}
		e.StartedAt = time.UnixMilli(started)
		if completed.Valid {
			t := time.UnixMilli(completed.Int64)
			e.CompletedAt = &t
		}
		e.Duration = time.Duration(duration.Int64) * time.Millisecond
		e.ErrorMessage = message.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep executions of job and deletes the rest.
func (s *ExecutionStore) Prune(ctx context.Context, job string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.exec(ctx, `
		DELETE FROM job_execution
		WHERE job_name = ? AND id NOT IN (
			SELECT id FROM job_execution WHERE job_name = ?
			ORDER BY started_at DESC, id LIMIT ?
		)`, job, job, keep)
	if err != nil {
		return 0, errors.Wrapf(err, "prune executions of %s", job)
	}
	return res.RowsAffected()
}
