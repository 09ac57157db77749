package publish

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/metagnosis/gateway"
)

func TestNewDigest(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC
	now := time.Date(2026, 10, 18, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	hn := []*gateway.Document{{ID: "h1", Title: "Show HN: [beta] *fast* queue", URL: "https://example.com/q", Origin: gateway.OriginHackerNews, Score: 120, Categories: []string{"databases"}}}
	arxiv := []Ranked{{Document: &gateway.Document{ID: "a1", Title: "Sparse attention", URL: "https://arxiv.org/pdf/1", Origin: gateway.OriginArxiv}, Novelty: 0.25}}

	d := NewDigest(now, hn, arxiv)
	assert.Equal(t, "2026-10-19", d.Date)
	assert.Equal(t, "digest-2026-10-19", d.Name())
	assert.Equal(t, 2, d.Len())

	js, err := d.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js, &decoded))
	assert.Equal(t, "2026-10-19", decoded["date"])
	hnEntry := decoded["hackernews"].([]any)[0].(map[string]any)
	assert.NotContains(t, hnEntry, "novelty")
	arxivEntry := decoded["arxiv"].([]any)[0].(map[string]any)
	assert.InDelta(t, 0.25, arxivEntry["novelty"], 1e-9)
	assert.Equal(t, []any{}, arxivEntry["categories"])

	md := string(d.Markdown())
	assert.Contains(t, md, "# Digest 2026-10-19")
	assert.Contains(t, md, `- [Show HN: \[beta\] \*fast\* queue](https://example.com/q) (120 comments) `+"`databases`")
	assert.Contains(t, md, "## arXiv\n\n- [Sparse attention](https://arxiv.org/pdf/1)\n")
}

func TestDigest_MarkdownOmitsEmptySections(t *testing.T) {
	d := NewDigest(time.Now(), nil, []Ranked{{Document: doc("a1", 1)}})
	md := string(d.Markdown())
	assert.NotContains(t, md, "HackerNews")
	assert.Contains(t, md, "arXiv")
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "digests")
	d := NewDigest(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), nil, nil)
	files, err := d.Files()
	require.NoError(t, err)

	paths, err := WriteFiles(dir, files)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "digest-2026-01-02.json"),
		filepath.Join(dir, "digest-2026-01-02.md"),
	}, paths)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")

	body, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "# Digest 2026-01-02\n", string(body))
}
