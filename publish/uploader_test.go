package publish

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
)

// fakeS3 answers the handful of path-style S3 calls the uploader makes.
type fakeS3 struct {
	bucket string
	mu     sync.Mutex
	puts   map[string]string // key -> raw request body
	types  map[string]string
}

func newFakeS3(t *testing.T, bucket string) (*fakeS3, string) {
	f := &fakeS3{bucket: bucket, puts: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, strings.TrimPrefix(srv.URL, "http://")
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	if r.Method == http.MethodGet && r.URL.Query().Has("location") {
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"+`<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></LocationConstraint>`)
		return
	}
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case r.Method == http.MethodHead && key == "":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key != "":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.puts[key] = string(body)
		f.types[key] = r.Header.Get("Content-Type")
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestS3Uploader_Upload(t *testing.T) {
	s3, endpoint := newFakeS3(t, "digests")
	u, err := NewS3Uploader(am.S3Config{Enabled: true, Endpoint: endpoint, Bucket: "digests", AccessKey: "key", SecretKey: "secret", Prefix: "/daily/"}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	assert.Equal(t, "daily/digest-2026-10-19.md", u.Key("digest-2026-10-19.md"))

	require.NoError(t, u.Upload(t.Context(), File{Name: "digest-2026-10-19.md", ContentType: "text/markdown; charset=utf-8", Body: []byte("# Digest 2026-10-19\n")}))

	s3.mu.Lock()
	defer s3.mu.Unlock()
	require.Contains(t, s3.puts, "daily/digest-2026-10-19.md")
	assert.Contains(t, s3.puts["daily/digest-2026-10-19.md"], "# Digest 2026-10-19")
	assert.Equal(t, "text/markdown; charset=utf-8", s3.types["daily/digest-2026-10-19.md"])
}

func TestS3Uploader_HealthCheck(t *testing.T) {
	_, endpoint := newFakeS3(t, "digests")
	log := zaptest.NewLogger(t).Sugar()

	ok, err := NewS3Uploader(am.S3Config{Endpoint: endpoint, Bucket: "digests", AccessKey: "k", SecretKey: "s"}, log)
	require.NoError(t, err)
	assert.NoError(t, ok.HealthCheck(t.Context()))

	missing, err := NewS3Uploader(am.S3Config{Endpoint: endpoint, Bucket: "missing", AccessKey: "k", SecretKey: "s"}, log)
	require.NoError(t, err)
	assert.Error(t, missing.HealthCheck(t.Context()))
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(am.S3Config{Endpoint: "s3.example.com"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatalConfigError(err))
}
