package crawl

import (
	"context"
		"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
	"github.com/teranos/metagnosis/internal/httpclient"
	mgtest "github.com/teranos/metagnosis/internal/testing"
)

type testGateways struct {
	store     *gateway.Store
	artifacts *gateway.ArtifactGateway
	pages     *gateway.PageGateway
}

func newTestGateways(t *testing.T) *testGateways {
	t.Helper()
	store := gateway.NewStore(mgtest.CreateTestDB(t), mgtest.NewTestLock(), filepath.Join(t.TempDir(), "storage"), testLog(t))
	g := &testGateways{
		store:     store,
		artifacts: gateway.NewArtifactGateway(store, 4, false),
		pages:     gateway.NewPageGateway(store),
	}
	require.NoError(t, g.artifacts.Initialize(t.Context()))
	require.NoError(t, g.pages.Initialize(t.Context()))
	return g
}

func testLog(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

func testCrawlerConfig() am.CrawlerConfig {
	return am.CrawlerConfig{
		UserAgent:             "metagnosis-test/1.0",
		FetchRetries:          3,
		RequestTimeoutSeconds: 5,
		ItemTimeoutSeconds:    5,
		AllowPrivate:          true,
	}
}

func newTestFetcher(t *testing.T, cfg am.CrawlerConfig) *Fetcher {
	t.Helper()
	client, err := httpclient.New(httpclient.Options{
		Timeout:      cfg.RequestTimeout(),
		UserAgent:    cfg.UserAgent,
		AllowPrivate: true,
	})
	require.NoError(t, err)
	f := NewFetcherWithClient(cfg, client, testLog(t))
	f.backoff = time.Millisecond
	return f
}

// peek reads queued items and rolls the dequeue back so they stay queued.
func peek[T gateway.Item](t *testing.T, q *gateway.Queue[T]) []T {
	t.Helper()
	var out []T
	err := q.Dequeue(t.Context(), gateway.Criteria{Limit: 100}, func(_ context.Context, items []T) error {
		out = items
		return errPeek
	})
	require.True(t, errors.Is(err, errPeek), "unexpected dequeue error: %v", err)
	return out
}

var errPeek = errors.New("peek")
