package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	mgtest "github.com/teranos/metagnosis/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database := mgtest.CreateTestDB(t)
	store := NewStore(database, mgtest.NewTestLock(), filepath.Join(t.TempDir(), "storage"), zaptest.NewLogger(t).Sugar())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick time.Duration
	store.now = func() time.Time {
		tick += time.Millisecond
		return base.Add(tick)
	}
	return store
}

func newTestArtifacts(t *testing.T, deleteProcessed bool) *ArtifactGateway {
	t.Helper()
	g := NewArtifactGateway(newTestStore(t), 2, deleteProcessed)
	require.NoError(t, g.Initialize(context.Background()))
	return g
}

// seedArtifact inserts an artifact with a real payload file.
func seedArtifact(t *testing.T, g *ArtifactGateway, id, origin string, score int, created time.Time) *Artifact {
	t.Helper()
	path := filepath.Join(g.store.StoragePath(), id)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 "+id), 0644))

	a := &Artifact{
		ID:      id,
		Path:    path,
		URL:     "https://example.org/" + id + ".pdf",
		Origin:  origin,
		Title:   "title " + id,
		Score:   score,
		Created: created,
	}
	inserted, err := g.Add(context.Background(), a)
	require.NoError(t, err)
	require.True(t, inserted)
	return a
}

func artifactState(t *testing.T, g *ArtifactGateway, id string) (exists, processed bool) {
	t.Helper()
	var p int
	err := g.store.DB().QueryRow("SELECT processed FROM artifact WHERE id = ?", id).Scan(&p)
	if err != nil {
		return false, false
	}
	return true, p != 0
}

func ids[T Item](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ItemID()
	}
	return out
}

func scores(items []*Artifact) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.Score
	}
	return out
}
