package am

import (
	"net/url"
	"strings"

	"github.com/teranos/metagnosis/errors"
)

// Providers accepted in enrichment.provider
const (
	ProviderLocal  = "local"  // OpenAI-compatible HTTP server (Ollama, LocalAI, llama.cpp)
	ProviderOllama = "ollama" // langchaingo ollama client
	ProviderOpenAI = "openai" // langchaingo openai client
)

// Validate checks that the configuration is valid.
// Every failure is a FatalConfigError; callers abort startup on it.
func (c *Config) Validate() error {
	return errors.NewFatalConfigError(c.validate())
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path cannot be empty")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path cannot be empty")
	}

	// Pulse: tick must be positive, counts may be zero (disabled)
	if c.Pulse.TickIntervalMS <= 0 {
		return errors.Newf("pulse.tick_interval_ms must be > 0, got %d", c.Pulse.TickIntervalMS)
	}
	if c.Pulse.ShutdownGraceSeconds < 0 {
		return errors.Newf("pulse.shutdown_grace_seconds must be >= 0, got %d", c.Pulse.ShutdownGraceSeconds)
	}
	if c.Pulse.HistoryKeep < 0 {
		return errors.Newf("pulse.history_keep must be >= 0, got %d", c.Pulse.HistoryKeep)
	}
	if c.Pulse.MetricsEvery < 0 {
		return errors.Newf("pulse.metrics_every must be >= 0, got %d", c.Pulse.MetricsEvery)
	}

	if err := c.validateCrawler(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	return c.validatePublish()
}

func (c *Config) validateCrawler() error {
	cr := c.Crawler
	if cr.FetchRetries < 1 {
		return errors.Newf("crawler.fetch_retries must be >= 1, got %d", cr.FetchRetries)
	}
	if cr.RequestTimeoutSeconds <= 0 {
		return errors.Newf("crawler.request_timeout_seconds must be > 0, got %d", cr.RequestTimeoutSeconds)
	}
	if cr.ItemTimeoutSeconds <= 0 {
		return errors.Newf("crawler.item_timeout_seconds must be > 0, got %d", cr.ItemTimeoutSeconds)
	}
	if cr.RequestsPerSecond < 0 {
		return errors.Newf("crawler.requests_per_second must be >= 0, got %f", cr.RequestsPerSecond)
	}
	if cr.DownloadLimit < 1 {
		return errors.Newf("crawler.download_limit must be >= 1, got %d", cr.DownloadLimit)
	}
	if cr.Proxy != "" {
		if _, err := url.Parse(cr.Proxy); err != nil {
			return errors.Wrap(err, "crawler.proxy is not a valid URL")
		}
	}

	if cr.Arxiv.Enabled {
		if cr.Arxiv.IntervalSeconds <= 0 {
			return errors.Newf("crawler.arxiv.interval_seconds must be > 0, got %d", cr.Arxiv.IntervalSeconds)
		}
		if !strings.Contains(cr.Arxiv.FeedURLTemplate, "%s") {
			return errors.New("crawler.arxiv.feed_url_template must contain %s")
		}
		if len(cr.Arxiv.Topics) == 0 {
			return errors.New("crawler.arxiv.topics cannot be empty when enabled")
		}
	}

	if cr.HackerNews.Enabled {
		if cr.HackerNews.IntervalSeconds <= 0 {
			return errors.Newf("crawler.hackernews.interval_seconds must be > 0, got %d", cr.HackerNews.IntervalSeconds)
		}
		if _, err := url.ParseRequestURI(cr.HackerNews.URL); err != nil {
			return errors.Wrap(err, "crawler.hackernews.url is not a valid URL")
		}
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	e := c.Enrichment
	if !e.Enabled {
		return nil
	}
	if e.IntervalSeconds <= 0 {
		return errors.Newf("enrichment.interval_seconds must be > 0, got %d", e.IntervalSeconds)
	}
	switch e.Provider {
	case ProviderLocal, ProviderOllama:
		if e.BaseURL == "" {
			return errors.Newf("enrichment.base_url cannot be empty for provider %q", e.Provider)
		}
	case ProviderOpenAI:
		if e.APIKey == "" {
			return errors.New("enrichment.api_key is required for provider \"openai\"")
		}
	default:
		return errors.Newf("enrichment.provider must be one of local, ollama, openai, got %q", e.Provider)
	}
	if e.EmbedModel == "" {
		return errors.New("enrichment.embed_model cannot be empty")
	}
	if e.ChatModel == "" {
		return errors.New("enrichment.chat_model cannot be empty")
	}
	if e.Dimension <= 0 {
		return errors.Newf("enrichment.dimension must be > 0, got %d", e.Dimension)
	}
	if e.BatchLimit < 0 {
		return errors.Newf("enrichment.batch_limit must be >= 0, got %d", e.BatchLimit)
	}
	if e.Workers < 0 {
		return errors.Newf("enrichment.workers must be >= 0, got %d", e.Workers)
	}
	if e.ItemTimeoutSeconds <= 0 {
		return errors.Newf("enrichment.item_timeout_seconds must be > 0, got %d", e.ItemTimeoutSeconds)
	}
	return nil
}

func (c *Config) validatePublish() error {
	p := c.Publish
	if !p.Enabled {
		return nil
	}
	if p.IntervalSeconds <= 0 {
		return errors.Newf("publish.interval_seconds must be > 0, got %d", p.IntervalSeconds)
	}
	if p.OutputDir == "" {
		return errors.New("publish.output_dir cannot be empty")
	}
	if p.HackerNewsLimit < 0 || p.ArxivLimit < 0 || p.ArxivPick < 0 {
		return errors.New("publish limits must be >= 0")
	}
	if p.S3.Enabled {
		if p.S3.Endpoint == "" {
			return errors.New("publish.s3.endpoint is required when s3 is enabled")
		}
		if p.S3.Bucket == "" {
			return errors.New("publish.s3.bucket is required when s3 is enabled")
		}
		if p.S3.AccessKey == "" || p.S3.SecretKey == "" {
			return errors.WithHint(
				errors.New("publish.s3 credentials are missing"),
				"set METAGNOSIS_S3_ACCESS_KEY and METAGNOSIS_S3_SECRET_KEY",
			)
		}
	}
	return nil
}
