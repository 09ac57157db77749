package am

import "time"

// Config represents the metagnosis configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Pulse      PulseConfig      `mapstructure:"pulse"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Publish    PublishConfig    `mapstructure:"publish"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig configures where downloaded payloads live
type StorageConfig struct {
	Path            string `mapstructure:"path"`
	DeleteProcessed bool   `mapstructure:"delete_processed"` // delete artifact rows on success instead of marking them processed
}

// PulseConfig configures the recurring job scheduler
type PulseConfig struct {
	TickIntervalMS       int `mapstructure:"tick_interval_ms"`       // How often due jobs are checked (default: 1000)
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"` // Wait for in-flight jobs on shutdown (default: 30)
	HistoryKeep          int `mapstructure:"history_keep"`           // Execution rows kept per job, 0 = keep all
	MetricsEvery         int `mapstructure:"metrics_every"`          // Heartbeat every N ticks, 0 = disabled
}

// CrawlerConfig configures the ingestion jobs and their shared fetcher
type CrawlerConfig struct {
	UserAgent             string           `mapstructure:"user_agent"`
	Proxy                 string           `mapstructure:"proxy"`
	FetchRetries          int              `mapstructure:"fetch_retries"`
	RequestTimeoutSeconds int              `mapstructure:"request_timeout_seconds"`
	ItemTimeoutSeconds    int              `mapstructure:"item_timeout_seconds"`
	RequestsPerSecond     float64          `mapstructure:"requests_per_second"` // 0 = unlimited
	DownloadLimit         int              `mapstructure:"download_limit"`      // concurrent artifact downloads
	RespectRobots         bool             `mapstructure:"respect_robots"`
	AllowPrivate          bool             `mapstructure:"allow_private"` // permit loopback/private targets (local mirrors, tests)
	Arxiv                 ArxivConfig      `mapstructure:"arxiv"`
	HackerNews            HackerNewsConfig `mapstructure:"hackernews"`
}

// ArxivConfig configures the arXiv RSS job
type ArxivConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	IntervalSeconds int      `mapstructure:"interval_seconds"`
	FeedURLTemplate string   `mapstructure:"feed_url_template"` // %s is replaced by the topic
	Topics          []string `mapstructure:"topics"`
}

// HackerNewsConfig configures the HackerNews front page job
type HackerNewsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	URL             string `mapstructure:"url"`
}

// EnrichmentConfig configures text hydration, encoding and tagging
type EnrichmentConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	IntervalSeconds    int    `mapstructure:"interval_seconds"`
	Provider           string `mapstructure:"provider"` // local, ollama, openai
	BaseURL            string `mapstructure:"base_url"`
	EmbedModel         string `mapstructure:"embed_model"`
	ChatModel          string `mapstructure:"chat_model"`
	APIKey             string `mapstructure:"api_key"`
	Dimension          int    `mapstructure:"dimension"`
	BatchLimit         int    `mapstructure:"batch_limit"` // 0 = runtime.NumCPU()*2
	Workers            int    `mapstructure:"workers"`     // 0 = runtime.NumCPU()
	ItemTimeoutSeconds int    `mapstructure:"item_timeout_seconds"`
	PdftotextPath      string `mapstructure:"pdftotext_path"`
}

// PublishConfig configures the digest publisher
type PublishConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	IntervalSeconds    int      `mapstructure:"interval_seconds"`
	OutputDir          string   `mapstructure:"output_dir"`
	HackerNewsMinScore int      `mapstructure:"hackernews_min_score"`
	HackerNewsLimit    int      `mapstructure:"hackernews_limit"`
	ArxivLimit         int      `mapstructure:"arxiv_limit"`
	ArxivPick          int      `mapstructure:"arxiv_pick"`
	S3                 S3Config `mapstructure:"s3"`
}

// S3Config configures the optional S3-compatible digest upload
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// TickInterval returns the scheduler tick period.
func (c PulseConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// ShutdownGrace returns how long shutdown waits for in-flight jobs.
func (c PulseConfig) ShutdownGrace() time.Duration { return seconds(c.ShutdownGraceSeconds) }

// RequestTimeout returns the per-request HTTP timeout.
func (c CrawlerConfig) RequestTimeout() time.Duration { return seconds(c.RequestTimeoutSeconds) }

// ItemTimeout returns the per-item deadline inside a crawl cycle.
func (c CrawlerConfig) ItemTimeout() time.Duration { return seconds(c.ItemTimeoutSeconds) }

// Interval returns the arXiv job interval.
func (c ArxivConfig) Interval() time.Duration { return seconds(c.IntervalSeconds) }

// Interval returns the HackerNews job interval.
func (c HackerNewsConfig) Interval() time.Duration { return seconds(c.IntervalSeconds) }

// Interval returns the document processor interval.
func (c EnrichmentConfig) Interval() time.Duration { return seconds(c.IntervalSeconds) }

// ItemTimeout returns the per-document hydration deadline.
func (c EnrichmentConfig) ItemTimeout() time.Duration { return seconds(c.ItemTimeoutSeconds) }

// Interval returns the publisher interval.
func (c PublishConfig) Interval() time.Duration { return seconds(c.IntervalSeconds) }
