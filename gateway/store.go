// Package gateway implements the transactional work queues that every
// pipeline stage reads from and writes to.
//
// A Store owns the database handle and the process-wide write lock. Queue
// gateways (artifacts, pages, documents) are built on top of one shared
// Store, so every write in the process serializes on the same lock.
//
// The central operation is Queue.Dequeue: unprocessed rows are selected and
// handed to a consumer inside one transaction, and they are finished
// (marked processed or deleted) only if the consumer returns nil.
package gateway

import (
	"context"
	"database/sql"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/db"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/logger"
)

// Store is the shared storage gateway: schema bootstrap, storage directory
// and scoped transactions.
type Store struct {
	db          *sql.DB
	lock        *db.WriteLock
	storagePath string
	log         *zap.SugaredLogger
	now         func() time.Time
}

// NewStore creates a Store. lock must be the single write lock shared by
// every writer of database.
func NewStore(database *sql.DB, lock *db.WriteLock, storagePath string, log *zap.SugaredLogger) *Store {
	return &Store{
		db:          database,
		lock:        lock,
		storagePath: storagePath,
		log:         logger.AddDBSymbol(log).Named("gateway"),
		now:         time.Now,
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// StoragePath returns the directory holding payload files.
func (s *Store) StoragePath() string { return s.storagePath }

// Initialize creates the storage directory and applies schema. Both steps
// are idempotent, so Initialize runs on every startup.
func (s *Store) Initialize(ctx context.Context, schema string) error {
	if s.storagePath != "" {
		if err := os.MkdirAll(s.storagePath, am.DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "create storage directory %s", s.storagePath)
		}
	}

	if err := s.lock.Acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Release()

	return db.ApplySchema(ctx, s.db, schema, s.log)
}

type scopeKey struct{}

// scope tracks work deferred until the outermost transaction commits.
type scope struct {
	afterCommit []func()
}

// Transaction runs fn inside a scoped transaction.
//
// The write lock is held from BEGIN to COMMIT/ROLLBACK and released on every
// exit path. fn receives a context carrying the transaction; gateway calls
// made with that context join it instead of opening their own.
//
// If fn returns an error the transaction rolls back and that same error is
// returned. A failed commit is a TransactionError. A panic in fn rolls back
// and re-panics.
//
// When ctx already carries a transaction, fn joins it: no second lock, no
// commit. The outermost scope decides the outcome.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := db.TxFrom(ctx); ok {
		return fn(ctx)
	}

	if err := s.lock.Acquire(ctx); err != nil {
		return errors.Wrap(err, "acquire write lock")
	}
	defer s.lock.Release()

	// The transaction outlives ctx cancellation so that it always ends in an
	// explicit commit or rollback decided here.
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return transactionError(err, "begin")
	}

	sc := &scope{}
	txCtx := context.WithValue(db.WithTx(ctx, tx), scopeKey{}, sc)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warnw("Rollback failed", logger.FieldError, rbErr)
			return errors.WithSecondaryError(err, errors.NewTransactionError(rbErr, "rollback"))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return transactionError(err, "commit")
	}

	for _, hook := range sc.afterCommit {
		hook()
	}
	return nil
}

// transactionError classifies a begin or commit failure. A lock held by
// another connection past the busy timeout gets a hint, since within one
// process every writer already shares the write lock.
func transactionError(err error, op string) error {
	err = errors.NewTransactionError(err, op)
	if db.IsBusy(err) {
		err = errors.WithHint(err, "another process is writing to this database; run one metagnosis per database file")
	}
	return err
}

// afterCommit schedules fn to run once the transaction carried by ctx has
// committed. Outside a transaction fn runs immediately.
func afterCommit(ctx context.Context, fn func()) {
	if sc, ok := ctx.Value(scopeKey{}).(*scope); ok {
		sc.afterCommit = append(sc.afterCommit, fn)
		return
	}
	fn()
}

// querier resolves the executor for ctx: the carried transaction or the pool.
func (s *Store) querier(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, s.db)
}

// removeFiles deletes payload files best-effort. A missing file is fine;
// any other failure is logged and counted, never returned.
func (s *Store) removeFiles(queue string, paths []string) (failed int) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			failed++
			s.log.Warnw("Failed to remove payload file",
				logger.FieldQueue, queue,
				logger.FieldPath, p,
				logger.FieldError, err,
			)
		}
	}
	return failed
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
