package crawl

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/gateway"
)

func rssFeed(base string, ids ...string) string {
	var items strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&items, `<item><title>Paper %s</title><link>%s/abs/%s</link><guid>oai:arXiv.org:%s</guid></item>`, id, base, id, id)
	}
	return `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>cs updates</title>` + items.String() + `</channel></rss>`
}

func TestParseArxivFeed(t *testing.T) {
	entries, err := ParseArxivFeed(rssFeed("https://arxiv.org", "2501.00001", "2501.00002"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, FeedEntry{Title: "Paper 2501.00001", PDFURL: "https://arxiv.org/pdf/2501.00001"}, entries[0])

	_, err = ParseArxivFeed("not a feed")
	assert.Error(t, err)
}

func newArxivServer(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rss/cs.AI":
			w.Write([]byte(rssFeed(server.URL, "1", "2")))
		case r.URL.Path == "/rss/cs.LG":
			w.Write([]byte(rssFeed(server.URL, "2", "3")))
		case strings.HasPrefix(r.URL.Path, "/pdf/"):
			w.Write([]byte("%PDF-1.4 " + r.URL.Path))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestArxivJob_QueuesPDFs(t *testing.T) {
	server := newArxivServer(t)
	gw := newTestGateways(t)
	job := NewArxivJob(am.ArxivConfig{
		IntervalSeconds: 180,
		FeedURLTemplate: server.URL + "/rss/%s",
		Topics:          []string{"cs.AI", "cs.LG", "cs.BROKEN"},
	}, 5*time.Second, newTestFetcher(t, testCrawlerConfig()), gw.artifacts, testLog(t))

	assert.Equal(t, "arxiv", job.Name())
	assert.Equal(t, 180*time.Second, job.Interval())

	require.NoError(t, job.Perform(t.Context()), "one broken topic does not fail the cycle")

	items := peek(t, gw.artifacts.Queue)
	require.Len(t, items, 3, "paper 2 appears in two topics but is stored once")
	urls := map[string]bool{}
	for _, a := range items {
		urls[a.URL] = true
		assert.Equal(t, gateway.OriginArxiv, a.Origin)
		assert.FileExists(t, a.Path)
	}
	for _, id := range []string{"1", "2", "3"} {
		assert.True(t, urls[server.URL+"/pdf/"+id], id)
	}
}

func TestArxivJob_AllTopicsFailing(t *testing.T) {
	server := newArxivServer(t)
	gw := newTestGateways(t)
	cfg := testCrawlerConfig()
	cfg.FetchRetries = 1
	job := NewArxivJob(am.ArxivConfig{
		FeedURLTemplate: server.URL + "/rss/%s",
		Topics:          []string{"cs.X", "cs.Y"},
	}, time.Second, newTestFetcher(t, cfg), gw.artifacts, testLog(t))

	err := job.Perform(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 arxiv topics failed")
}
