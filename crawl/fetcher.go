// Package crawl holds the ingestion jobs and the HTTP fetch layer they
// share. Every fetch is paced by one rate limiter, retried on transport
// errors and 5xx/429 responses, and gated by robots.txt when enabled.
package crawl

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/internal/httpclient"
	"github.com/teranos/metagnosis/logger"
)

// MaxPageBytes caps bodies read fully into memory (feeds, HTML pages).
const MaxPageBytes = 10 << 20

// ErrDisallowed is returned for URLs excluded by robots.txt.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Fetcher is the crawler's HTTP layer. It satisfies gateway.Opener.
type Fetcher struct {
	client  *httpclient.SaferClient
	limiter *rate.Limiter
	robots  *RobotsChecker // nil when robots.txt is ignored
	retries int
	backoff time.Duration
	log     *zap.SugaredLogger
}

// NewFetcher builds a fetcher from the crawler configuration.
func NewFetcher(cfg am.CrawlerConfig, log *zap.SugaredLogger) (*Fetcher, error) {
	client, err := httpclient.New(httpclient.Options{
		Timeout:      cfg.RequestTimeout(),
		UserAgent:    cfg.UserAgent,
		Proxy:        cfg.Proxy,
		AllowPrivate: cfg.AllowPrivate,
	})
	if err != nil {
		return nil, errors.NewFatalConfigError(err)
	}
	return NewFetcherWithClient(cfg, client, log), nil
}

// NewFetcherWithClient builds a fetcher around an existing client.
func NewFetcherWithClient(cfg am.CrawlerConfig, client *httpclient.SaferClient, log *zap.SugaredLogger) *Fetcher {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	f := &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		retries: max(cfg.FetchRetries, 1),
		backoff: 500 * time.Millisecond,
		log:     logger.OrGlobal(log).Named("fetcher"),
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsChecker(client, cfg.UserAgent, 0)
	}
	return f
}

// Open returns the body of a successful GET. The caller closes it.
// Failures are TransientIOError.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.do(ctx, rawURL)
	if err != nil {
		return nil, errors.NewTransientIOError(err, rawURL)
	}
	return resp.Body, nil
}

// Get reads a whole response body, up to MaxPageBytes.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := f.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, MaxPageBytes))
	if err != nil {
		return nil, errors.NewTransientIOError(errors.Wrap(err, "read body"), rawURL)
	}
	return data, nil
}

func (f *Fetcher) do(ctx context.Context, rawURL string) (*http.Response, error) {
	if f.robots != nil {
		ok, err := f.robots.Allowed(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDisallowed
		}
	}

	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, errors.WithSecondaryError(ctx.Err(), lastErr)
			case <-time.After(f.backoff * time.Duration(attempt-1)):
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limit wait")
		}

		resp, err := f.client.Get(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			f.log.Debugw("Fetch attempt failed", logger.FieldURL, rawURL, "attempt", attempt, logger.FieldError, err)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = errors.Newf("status %d", resp.StatusCode)
			f.log.Debugw("Fetch attempt failed", logger.FieldURL, rawURL, "attempt", attempt, logger.FieldStatus, resp.StatusCode)
		default:
			resp.Body.Close()
			return nil, errors.Newf("status %d", resp.StatusCode)
		}
	}
	return nil, errors.Wrapf(lastErr, "after %d attempts", f.retries)
}
