package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// DefaultArxivTopics are the arXiv computer science listings crawled by default.
var DefaultArxivTopics = []string{
	"cs.AI", "cs.CL", "cs.CV", "cs.CY", "cs.CR",
	"cs.DS", "cs.DB", "cs.DL", "cs.DC", "cs.ET",
	"cs.HC", "cs.IR", "cs.IT", "cs.LG", "cs.MA",
	"cs.MM", "cs.NI", "cs.NE", "cs.OS", "cs.PF",
	"cs.PL", "cs.RO", "cs.SI", "cs.SE", "cs.SD",
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "metagnosis.db")

	// Storage defaults
	v.SetDefault("storage.path", "storage")
	v.SetDefault("storage.delete_processed", true) // processed artifacts have been turned into documents

	// Pulse (scheduler) defaults
	v.SetDefault("pulse.tick_interval_ms", 1000)
	v.SetDefault("pulse.shutdown_grace_seconds", 30)
	v.SetDefault("pulse.history_keep", 200)
	v.SetDefault("pulse.metrics_every", 300) // every five minutes at the default tick

	// Crawler defaults
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; metagnosis/1.0)")
	v.SetDefault("crawler.proxy", "")
	v.SetDefault("crawler.fetch_retries", 3)
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.item_timeout_seconds", 10)
	v.SetDefault("crawler.requests_per_second", 4.0)
	v.SetDefault("crawler.download_limit", 10)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.allow_private", false)

	v.SetDefault("crawler.arxiv.enabled", true)
	v.SetDefault("crawler.arxiv.interval_seconds", 180)
	v.SetDefault("crawler.arxiv.feed_url_template", "https://rss.arxiv.org/rss/%s")
	v.SetDefault("crawler.arxiv.topics", DefaultArxivTopics)

	v.SetDefault("crawler.hackernews.enabled", true)
	v.SetDefault("crawler.hackernews.interval_seconds", 300)
	v.SetDefault("crawler.hackernews.url", "https://news.ycombinator.com/")

	// Enrichment defaults (Ollama serves an OpenAI-compatible API on 11434)
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.interval_seconds", 1)
	v.SetDefault("enrichment.provider", "local")
	v.SetDefault("enrichment.base_url", "http://localhost:11434")
	v.SetDefault("enrichment.embed_model", "mxbai-embed-large")
	v.SetDefault("enrichment.chat_model", "llama3.2:3b")
	v.SetDefault("enrichment.api_key", "")
	v.SetDefault("enrichment.dimension", 1024)
	v.SetDefault("enrichment.batch_limit", 0)
	v.SetDefault("enrichment.workers", 0)
	v.SetDefault("enrichment.item_timeout_seconds", 60)
	v.SetDefault("enrichment.pdftotext_path", "pdftotext")

	// Publisher defaults
	v.SetDefault("publish.enabled", true)
	v.SetDefault("publish.interval_seconds", 86400)
	v.SetDefault("publish.output_dir", "digests")
	v.SetDefault("publish.hackernews_min_score", 30)
	v.SetDefault("publish.hackernews_limit", 10)
	v.SetDefault("publish.arxiv_limit", 200)
	v.SetDefault("publish.arxiv_pick", 10)
	v.SetDefault("publish.s3.enabled", false)
	v.SetDefault("publish.s3.endpoint", "")
	v.SetDefault("publish.s3.bucket", "")
	v.SetDefault("publish.s3.access_key", "")
	v.SetDefault("publish.s3.secret_key", "")
	v.SetDefault("publish.s3.use_ssl", true)
	v.SetDefault("publish.s3.prefix", "digests/")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Credentials
	v.BindEnv("enrichment.api_key", "METAGNOSIS_ENRICHMENT_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("publish.s3.access_key", "METAGNOSIS_S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	v.BindEnv("publish.s3.secret_key", "METAGNOSIS_S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")

	// Database path
	v.BindEnv("database.path", "METAGNOSIS_DATABASE_PATH")
}

// String returns a string representation of the config with credentials elided
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Storage: %s, Enrichment: {Provider: %s, Dimension: %d}, Publish: {S3: %t}}",
		c.Database.Path, c.Storage.Path, c.Enrichment.Provider, c.Enrichment.Dimension, c.Publish.S3.Enabled)
}
