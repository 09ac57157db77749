package crawl

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
)

type story struct {
	href     string
	title    string
	comments string
}

func frontPage(stories ...story) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for _, s := range stories {
		fmt.Fprintf(&b, `<tr class="athing"><td class="title"><span class="titleline"><a href="%s">%s</a><span class="sitebit comhead"> (<a href="from?site=x"><span class="sitestr">x</span></a>)</span></span></td></tr>`, s.href, s.title)
		fmt.Fprintf(&b, `<tr><td class="subtext"><span class="subline"><span class="score">10 points</span> by <a class="hnuser">u</a> | <a href="item?id=1">%s</a></span></td></tr>`, s.comments)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func TestParseFrontPage(t *testing.T) {
	html := frontPage(
		story{href: "https://example.com/post", title: "A post", comments: "42&nbsp;comments"},
		story{href: "item?id=7", title: "Ask HN: anything", comments: "discuss"},
	)

	stories, err := ParseFrontPage([]byte(html), "https://news.ycombinator.com/")
	require.NoError(t, err)
	require.Len(t, stories, 2)

	assert.Equal(t, Story{ID: StoryID("https://example.com/post"), Title: "A post", URL: "https://example.com/post", Score: 42}, stories[0])
	assert.Equal(t, "https://news.ycombinator.com/item?id=7", stories[1].URL)
	assert.Zero(t, stories[1].Score)
	assert.Len(t, stories[0].ID, 64)
}

func TestParseFrontPage_MismatchIsProcessingError(t *testing.T) {
	html := frontPage(story{href: "https://example.com", title: "x", comments: "1 comment"}) +
		`<p><span class="titleline"><a href="https://example.com/stray">stray</a></span></p>`
	_, err := ParseFrontPage([]byte(html), "https://news.ycombinator.com/")
	require.Error(t, err)
	assert.True(t, errors.IsProcessingError(err))
}

func TestHackerNewsJob_Perform(t *testing.T) {
	var articleHits atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte(frontPage(
				story{href: server.URL + "/paper.pdf", title: "A paper", comments: "12 comments"},
				story{href: server.URL + "/article", title: "An article", comments: "30 comments"},
				story{href: server.URL + "/gone", title: "Dead link", comments: "5 comments"},
			)))
		case "/paper.pdf":
			w.Write([]byte("%PDF-1.4"))
		case "/article":
			articleHits.Add(1)
			w.Write([]byte("<html><body><article>Body text</article></body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	gw := newTestGateways(t)
	cfg := testCrawlerConfig()
	job := NewHackerNewsJob(am.HackerNewsConfig{IntervalSeconds: 300, URL: server.URL + "/"},
		5*time.Second, newTestFetcher(t, cfg), gw.pages, gw.artifacts, testLog(t))
	assert.Equal(t, 300*time.Second, job.Interval())

	require.NoError(t, job.Perform(t.Context()))

	artifacts := peek(t, gw.artifacts.Queue)
	require.Len(t, artifacts, 1)
	assert.Equal(t, gateway.OriginHackerNews, artifacts[0].Origin)
	assert.Equal(t, 12, artifacts[0].Score)
	assert.Equal(t, "A paper", artifacts[0].Title)

	pages := peek(t, gw.pages.Queue)
	require.Len(t, pages, 2)
	byURL := map[string]*gateway.Page{}
	for _, p := range pages {
		byURL[p.URL] = p
	}

	article := byURL[server.URL+"/article"]
	require.NotNil(t, article)
	assert.Equal(t, 30, article.Score)
	assert.Empty(t, article.Error)
	content, err := os.ReadFile(article.Path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Body text")

	dead := byURL[server.URL+"/gone"]
	require.NotNil(t, dead)
	assert.Contains(t, dead.Error, "status 404")
	assert.Empty(t, dead.Path)

	// Second cycle: known pages are refreshed, not refetched.
	require.NoError(t, job.Perform(t.Context()))
	assert.EqualValues(t, 1, articleHits.Load())
	assert.Len(t, peek(t, gw.pages.Queue), 2)
}
