package publish

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
	mgtest "github.com/teranos/metagnosis/internal/testing"
)

type recordingUploader struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (u *recordingUploader) Upload(_ context.Context, f File) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.names = append(u.names, f.Name)
	return nil
}

type publisherFixture struct {
	documents *gateway.DocumentGateway
	uploader  *recordingUploader
	job       *PublisherJob
	outDir    string
}

func newPublisherFixture(t *testing.T) *publisherFixture {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	store := gateway.NewStore(mgtest.CreateTestDB(t), mgtest.NewTestLock(), filepath.Join(t.TempDir(), "storage"), log)
	documents := gateway.NewDocumentGateway(store, 2)
	require.NoError(t, documents.Initialize(t.Context()))

	f := &publisherFixture{documents: documents, uploader: &recordingUploader{}, outDir: filepath.Join(t.TempDir(), "digests")}
	cfg := am.PublishConfig{
		IntervalSeconds:    86400,
		OutputDir:          f.outDir,
		HackerNewsMinScore: 10,
		HackerNewsLimit:    5,
		ArxivLimit:         10,
		ArxivPick:          2,
	}
	f.job = NewPublisherJob(cfg, documents, f.uploader, log)
	f.job.now = func() time.Time { return time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC) }
	return f
}

func (f *publisherFixture) seed(t *testing.T) {
	t.Helper()
	docs := []*gateway.Document{
		{ID: "h1", Title: "Popular", Origin: gateway.OriginHackerNews, Score: 50, Vector: []float32{1, 1}},
		{ID: "h2", Title: "Quiet", Origin: gateway.OriginHackerNews, Score: 5, Vector: []float32{1, 1}},
		{ID: "h3", Title: "Busy", Origin: gateway.OriginHackerNews, Score: 30, Vector: []float32{1, 1}},
		{ID: "a1", Title: "Baseline", Origin: gateway.OriginArxiv, Vector: []float32{1, 0}},
		{ID: "a2", Title: "Near baseline", Origin: gateway.OriginArxiv, Vector: []float32{1, 0.05}},
		{ID: "a3", Title: "Outlier", Origin: gateway.OriginArxiv, Vector: []float32{0, 1}},
		{ID: "a4", Title: "Also near", Origin: gateway.OriginArxiv, Vector: []float32{1, 0.1}},
	}
	saved, err := f.documents.Save(t.Context(), docs)
	require.NoError(t, err)
	require.Equal(t, len(docs), saved)
}

var errPeek = errors.New("peek")

func (f *publisherFixture) pending(t *testing.T) []string {
	t.Helper()
	var out []string
	err := f.documents.Dequeue(t.Context(), gateway.Criteria{Order: gateway.OrderScoreDesc}, func(_ context.Context, docs []*gateway.Document) error {
		for _, d := range docs {
			out = append(out, d.ID)
		}
		return errPeek
	})
	require.True(t, errors.Is(err, errPeek), "unexpected dequeue error: %v", err)
	return out
}

func TestPublisherJob_PublishesDigest(t *testing.T) {
	f := newPublisherFixture(t)
	f.seed(t)

	assert.Equal(t, "publisher", f.job.Name())
	assert.Equal(t, 24*time.Hour, f.job.Interval())
	require.NoError(t, f.job.Perform(t.Context()))

	body, err := os.ReadFile(filepath.Join(f.outDir, "digest-2026-10-19.json"))
	require.NoError(t, err)
	var d Digest
	require.NoError(t, json.Unmarshal(body, &d))

	var hn, arxiv []string
	for _, e := range d.HackerNews {
		hn = append(hn, e.ID)
	}
	for _, e := range d.Arxiv {
		arxiv = append(arxiv, e.ID)
	}
	assert.Equal(t, []string{"h1", "h3"}, hn, "score order above the minimum")
	assert.Equal(t, []string{"a3", "a1"}, arxiv, "most novel papers")

	assert.FileExists(t, filepath.Join(f.outDir, "digest-2026-10-19.md"))
	assert.ElementsMatch(t, []string{"digest-2026-10-19.json", "digest-2026-10-19.md"}, f.uploader.names)

	assert.Equal(t, []string{"h2"}, f.pending(t), "unselected candidates are consumed with the batch")
}

func TestPublisherJob_UploadFailureKeepsDocumentsQueued(t *testing.T) {
	f := newPublisherFixture(t)
	f.seed(t)
	f.uploader.err = errors.New("bucket unreachable")

	err := f.job.Perform(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsProcessingError(err))

	assert.Len(t, f.pending(t), 7)
}

func TestPublisherJob_NothingToPublish(t *testing.T) {
	f := newPublisherFixture(t)
	require.NoError(t, f.job.Perform(t.Context()))

	_, err := os.Stat(f.outDir)
	assert.True(t, os.IsNotExist(err), "no digest written")
	assert.Empty(t, f.uploader.names)
}

func TestPublisherJob_WithoutUploader(t *testing.T) {
	f := newPublisherFixture(t)
	f.seed(t)
	f.job.uploader = nil

	require.NoError(t, f.job.Perform(t.Context()))
	assert.FileExists(t, filepath.Join(f.outDir, "digest-2026-10-19.json"))
}
