package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/logger"
)

// Item is a queued row handed to consumers.
type Item interface {
	ItemID() string
	// PayloadPath is the backing file removed after the row is finished,
	// or "" when the row owns no file.
	PayloadPath() string
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// FinishPolicy decides what happens to a row after its consumer succeeds.
type FinishPolicy int

const (
	// FinishMarkProcessed keeps the row as history with processed = 1.
	FinishMarkProcessed FinishPolicy = iota
	// FinishDelete removes the row.
	FinishDelete
)

func (p FinishPolicy) String() string {
	if p == FinishDelete {
		return "delete"
	}
	return "mark-processed"
}

// Order is the dequeue ordering.
type Order int

const (
	// OrderCreatedDesc returns the newest rows first.
	OrderCreatedDesc Order = iota
	// OrderScoreDesc returns the highest scores first.
	OrderScoreDesc
)

// Criteria selects unprocessed rows. Zero fields do not filter.
type Criteria struct {
	Origin   string
	MinScore *int
	Since    time.Time // created >= Since
	Until    time.Time // created < Until
	Limit    int       // 0 = no limit
	Order    Order
}

func (c Criteria) sql(table, columns string) (string, []any) {
	var b strings.Builder
	args := []any{}

	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE processed = 0")

	if c.Origin != "" {
		b.WriteString(" AND origin = ?")
		args = append(args, c.Origin)
	}
	if c.MinScore != nil {
		b.WriteString(" AND score >= ?")
		args = append(args, *c.MinScore)
	}
	if !c.Since.IsZero() {
		b.WriteString(" AND created >= ?")
		args = append(args, toMillis(c.Since))
	}
	if !c.Until.IsZero() {
		b.WriteString(" AND created < ?")
		args = append(args, toMillis(c.Until))
	}

	switch c.Order {
	case OrderScoreDesc:
		b.WriteString(" ORDER BY score DESC, id")
	default:
		b.WriteString(" ORDER BY created DESC, id")
	}

	if c.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, c.Limit)
	}
	return b.String(), args
}

// QueueDef describes the table behind a Queue.
type QueueDef[T Item] struct {
	Table     string
	Columns   string // select list, in the order Scan expects
	Scan      func(Scanner) (T, error)
	Finish    FinishPolicy
	OwnsFiles bool
}

// Queue implements dequeue-for-processing over one table.
type Queue[T Item] struct {
	store *Store
	def   QueueDef[T]
}

// NewQueue binds def to store.
func NewQueue[T Item](store *Store, def QueueDef[T]) *Queue[T] {
	return &Queue[T]{store: store, def: def}
}

// Name returns the queue's table name.
func (q *Queue[T]) Name() string { return q.def.Table }

// Dequeue hands the unprocessed rows matching c to consume inside one
// transaction. consume is called even when nothing matches.
//
// If consume returns nil every returned row is finished and its payload file
// removed after commit. If consume fails the transaction rolls back, the
// rows stay queued, and the error comes back marked as a ProcessingError
// with its original chain intact.
func (q *Queue[T]) Dequeue(ctx context.Context, c Criteria, consume func(ctx context.Context, items []T) error) error {
	return q.DequeueMulti(ctx, []Criteria{c}, func(ctx context.Context, batches [][]T) error {
		return consume(ctx, batches[0])
	})
}

// DequeueMulti runs several selections inside one shared transaction.
// batches[i] holds the rows for criteria[i]. Commit is all-or-nothing: if
// consume fails, no batch is finished.
func (q *Queue[T]) DequeueMulti(ctx context.Context, criteria []Criteria, consume func(ctx context.Context, batches [][]T) error) error {
	if len(criteria) == 0 {
		return errors.NewInvalidRequestError("dequeue %s: no criteria", q.def.Table)
	}

	log := logger.FromContext(ctx, q.store.log)
	start := time.Now()

	return q.store.Transaction(ctx, func(ctx context.Context) error {
		batches := make([][]T, len(criteria))
		total := 0
		for i, c := range criteria {
			items, err := q.selectItems(ctx, c)
			if err != nil {
				return errors.Wrapf(err, "select %s batch %d", q.def.Table, i)
			}
			batches[i] = items
			total += len(items)
		}

		if err := consume(ctx, batches); err != nil {
			log.Infow("Consumer failed, batch stays queued",
				logger.FieldQueue, q.def.Table,
				logger.FieldCount, total,
				logger.FieldError, err,
			)
			return errors.NewProcessingError(err, q.def.Table)
		}

		files, err := q.finish(ctx, batches)
		if err != nil {
			return err
		}

		afterCommit(ctx, func() {
			q.store.removeFiles(q.def.Table, files)
		})

		if total > 0 {
			log.Debugw("Batch finished",
				logger.FieldQueue, q.def.Table,
				logger.FieldCount, total,
				"policy", q.def.Finish.String(),
				logger.FieldDurationMS, time.Since(start).Milliseconds(),
			)
		}
		return nil
	})
}

func (q *Queue[T]) selectItems(ctx context.Context, c Criteria) ([]T, error) {
	query, args := c.sql(q.def.Table, q.def.Columns)
	rows, err := q.store.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := q.def.Scan(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s row", q.def.Table)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// finish applies the finish policy to every row and returns the payload
// files to remove. A row selected by more than one criteria is finished once.
func (q *Queue[T]) finish(ctx context.Context, batches [][]T) ([]string, error) {
	var stmt string
	var args func(id string) []any

	switch q.def.Finish {
	case FinishDelete:
		stmt = "DELETE FROM " + q.def.Table + " WHERE id = ?"
		args = func(id string) []any { return []any{id} }
	default:
		now := toMillis(q.store.now())
		stmt = "UPDATE " + q.def.Table + " SET processed = 1, updated = ? WHERE id = ?"
		args = func(id string) []any { return []any{now, id} }
	}

	seen := make(map[string]bool)
	var files []string
	qr := q.store.querier(ctx)

	for _, batch := range batches {
		for _, item := range batch {
			id := item.ItemID()
			if seen[id] {
				continue
			}
			seen[id] = true

			if _, err := qr.ExecContext(ctx, stmt, args(id)...); err != nil {
				return nil, errors.Wrapf(err, "finish %s %s", q.def.Table, id)
			}
			if q.def.OwnsFiles && item.PayloadPath() != "" {
				files = append(files, item.PayloadPath())
			}
		}
	}
	return files, nil
}

// QueueStats counts rows by state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// Stats counts pending and processed rows.
func (q *Queue[T]) Stats(ctx context.Context) (QueueStats, error) {
	st := QueueStats{Queue: q.def.Table}
	err := q.store.querier(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(processed), 0) FROM "+q.def.Table,
	).Scan(&st.Total, &st.Processed)
	if err != nil {
		return st, errors.Wrapf(err, "stats %s", q.def.Table)
	}
	st.Pending = st.Total - st.Processed
	return st, nil
}
