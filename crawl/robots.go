package crawl

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/internal/httpclient"
)

const (
	defaultRobotsCacheTTL = 24 * time.Hour
	maxRobotsBodyBytes    = 512 * 1024
)

// RobotsChecker answers robots.txt questions with a per-host cache.
// A missing, unreachable or unparsable robots.txt allows everything.
type RobotsChecker struct {
	client    *httpclient.SaferClient
	userAgent string
	ttl       time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData // nil allows all
	fetchedAt time.Time
}

// NewRobotsChecker creates a checker. ttl 0 uses one day.
func NewRobotsChecker(client *httpclient.SaferClient, userAgent string, ttl time.Duration) *RobotsChecker {
	if ttl <= 0 {
		ttl = defaultRobotsCacheTTL
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether rawURL may be fetched.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, errors.Wrap(err, "robots: parse url")
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return false, errors.Newf("robots: empty host in url %q", rawURL)
	}

	entry := r.entry(ctx, u.Scheme, host)
	if entry.data == nil {
		return true, nil
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return entry.data.TestAgent(path, r.userAgent), nil
}

func (r *RobotsChecker) entry(ctx context.Context, scheme, host string) robotsEntry {
	r.mu.RLock()
	e, ok := r.cache[host]
	r.mu.RUnlock()
	if ok && r.now().Sub(e.fetchedAt) <= r.ttl {
		return e
	}

	e = robotsEntry{data: r.fetch(ctx, scheme, host), fetchedAt: r.now()}
	r.mu.Lock()
	r.cache[host] = e
	r.mu.Unlock()
	return e
}

func (r *RobotsChecker) fetch(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	if scheme == "" {
		scheme = "https"
	}
	resp, err := r.client.Get(ctx, scheme+"://"+host+"/robots.txt")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
