package crawl

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/metagnosis/errors"
)

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "metagnosis-test/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("feed"))
	}))
	defer server.Close()

	f := newTestFetcher(t, testCrawlerConfig())
	body, err := f.Get(t.Context(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "feed", string(body))
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetcher_GivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newTestFetcher(t, testCrawlerConfig())
	_, err := f.Get(t.Context(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.IsTransientIOError(err))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetcher_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := newTestFetcher(t, testCrawlerConfig())
	_, err := f.Open(t.Context(), server.URL+"/missing.pdf")
	require.Error(t, err)
	assert.True(t, errors.IsTransientIOError(err))
	assert.Contains(t, err.Error(), "status 404")
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetcher_RespectsRobots(t *testing.T) {
	var robotsHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			robotsHits.Add(1)
			io.WriteString(w, "User-agent: *\nDisallow: /private/\n")
		default:
			io.WriteString(w, "ok")
		}
	}))
	defer server.Close()

	cfg := testCrawlerConfig()
	cfg.RespectRobots = true
	f := newTestFetcher(t, cfg)

	_, err := f.Get(t.Context(), server.URL+"/private/paper.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisallowed))
	assert.True(t, errors.IsTransientIOError(err))

	body, err := f.Get(t.Context(), server.URL+"/public/paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.EqualValues(t, 1, robotsHits.Load(), "robots.txt is cached per host")
}

func TestRobotsChecker_MissingRobotsAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	f := newTestFetcher(t, testCrawlerConfig())
	rc := NewRobotsChecker(f.client, "metagnosis", 0)
	ok, err := rc.Allowed(t.Context(), server.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = rc.Allowed(t.Context(), "/relative/only")
	assert.Error(t, err)
}
