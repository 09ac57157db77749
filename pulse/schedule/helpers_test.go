package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	mgtest "github.com/teranos/metagnosis/internal/testing"
)

type testJob struct {
	RunWindow
	name     string
	interval time.Duration
	runs     atomic.Int32
	perform  func(ctx context.Context) error
}

func (j *testJob) Name() string            { return j.name }
func (j *testJob) Interval() time.Duration { return j.interval }

func (j *testJob) Perform(ctx context.Context) error {
	j.runs.Add(1)
	if j.perform != nil {
		return j.perform(ctx)
	}
	return nil
}

func newTestStores(t *testing.T) (*Store, *ExecutionStore) {
	t.Helper()
	database := mgtest.CreateTestDB(t)
	lock := mgtest.NewTestLock()
	store := NewStore(database, lock)
	require.NoError(t, store.Initialize(t.Context()))
	return store, NewExecutionStore(database, lock)
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *Store, *ExecutionStore) {
	t.Helper()
	store, history := newTestStores(t)
	s := NewScheduler(store, history, cfg, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { s.Wait(5 * time.Second) })
	return s, store, history
}

// blocker is a Perform func that holds until released.
type blocker struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlocker() *blocker {
	return &blocker{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blocker) perform(ctx context.Context) error {
	b.started <- struct{}{}
	<-b.release
	return nil
}

func (b *blocker) Release() { b.once.Do(func() { close(b.release) }) }
