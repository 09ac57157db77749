package gateway

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPages(t *testing.T) *PageGateway {
	t.Helper()
	g := NewPageGateway(newTestStore(t))
	require.NoError(t, g.Initialize(context.Background()))
	return g
}

func TestPageUpsert_RefreshesOnlyUnprocessed(t *testing.T) {
	ctx := context.Background()
	g := newTestPages(t)

	require.NoError(t, g.Upsert(ctx, []*Page{
		{ID: "p1", Origin: "hackernews", Title: "One", URL: "https://one.test", Score: 10},
		{ID: "p2", Origin: "hackernews", Title: "Two", URL: "https://two.test", Score: 20},
	}))

	// process p1
	require.NoError(t, g.Dequeue(ctx, Criteria{Origin: "hackernews", Order: OrderScoreDesc, Limit: 1}, func(ctx context.Context, items []*Page) error {
		require.Len(t, items, 1)
		assert.Equal(t, "p2", items[0].ID)
		return nil
	}))

	require.NoError(t, g.Upsert(ctx, []*Page{
		{ID: "p1", Origin: "hackernews", Title: "One v2", URL: "https://one.test", Score: 99},
		{ID: "p2", Origin: "hackernews", Title: "Two v2", URL: "https://two.test", Score: 99},
	}))

	read := func(id string) (string, int) {
		var title string
		var score int
		require.NoError(t, g.store.DB().QueryRow("SELECT title, score FROM page WHERE id = ?", id).Scan(&title, &score))
		return title, score
	}
	title, score := read("p1")
	assert.Equal(t, "One v2", title)
	assert.Equal(t, 99, score)

	title, score = read("p2")
	assert.Equal(t, "Two", title, "processed page is history")
	assert.Equal(t, 20, score)
}

func TestPageProcessingStatus(t *testing.T) {
	ctx := context.Background()
	g := newTestPages(t)

	require.NoError(t, g.Upsert(ctx, []*Page{
		{ID: "known", Origin: "hackernews", Title: "K", URL: "https://k.test", Score: 1},
		{ID: "done", Origin: "hackernews", Title: "D", URL: "https://d.test", Score: 100},
	}))
	require.NoError(t, g.Dequeue(ctx, Criteria{Order: OrderScoreDesc, Limit: 1}, func(ctx context.Context, items []*Page) error {
		return nil
	}))

	status, err := g.ProcessingStatus(ctx, []string{"known", "done", "new"})
	require.NoError(t, err)
	assert.Equal(t, PageStatus{Known: true}, status["known"])
	assert.Equal(t, PageStatus{Known: true, Processed: true}, status["done"])
	_, ok := status["new"]
	assert.False(t, ok)

	empty, err := g.ProcessingStatus(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPageWritePayloadRemovedAfterProcessing(t *testing.T) {
	ctx := context.Background()
	g := newTestPages(t)

	path, err := g.WritePayload("abc", []byte("<html><title>x</title></html>"))
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, g.Upsert(ctx, []*Page{{ID: "abc", Origin: "hackernews", Title: "x", URL: "https://x.test", Path: path}}))
	require.NoError(t, g.Dequeue(ctx, Criteria{}, func(ctx context.Context, items []*Page) error {
		require.Len(t, items, 1)
		data, err := os.ReadFile(items[0].Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "<title>x</title>")
		return nil
	}))
	assert.NoFileExists(t, path)
}
