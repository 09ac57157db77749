package commands

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/metagnosis/ai/provider"
	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/crawl"
	"github.com/teranos/metagnosis/db"
	"github.com/teranos/metagnosis/enrich"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
	"github.com/teranos/metagnosis/publish"
	"github.com/teranos/metagnosis/pulse/schedule"
)

// s3CheckTimeout bounds the startup bucket check.
const s3CheckTimeout = 15 * time.Second

// Pipeline is a scheduler with every enabled job registered and initialised.
type Pipeline struct {
	Gateways  *gateway.Gateways
	Scheduler *schedule.Scheduler
}

// NewPipeline builds the queues, the scheduler and the enabled jobs on one
// database and write lock, and bootstraps their schemas.
func NewPipeline(ctx context.Context, cfg *am.Config, database *sql.DB, log *zap.SugaredLogger) (*Pipeline, error) {
	lock := db.NewWriteLock()

	store := gateway.NewStore(database, lock, cfg.Storage.Path, log)
	gw := gateway.New(store, cfg)
	if err := gw.Initialize(ctx); err != nil {
		return nil, err
	}

	jobStore := schedule.NewStore(database, lock)
	if err := jobStore.Initialize(ctx); err != nil {
		return nil, err
	}
	scheduler := schedule.NewScheduler(jobStore, schedule.NewExecutionStore(database, lock), schedule.ConfigFrom(cfg.Pulse), log)

	jobs, err := buildJobs(ctx, cfg, gw, log)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := scheduler.Register(job); err != nil {
			return nil, err
		}
	}
	if err := scheduler.Initialize(ctx); err != nil {
		return nil, err
	}
	return &Pipeline{Gateways: gw, Scheduler: scheduler}, nil
}

func buildJobs(ctx context.Context, cfg *am.Config, gw *gateway.Gateways, log *zap.SugaredLogger) ([]schedule.Job, error) {
	var jobs []schedule.Job

	if cfg.Crawler.Arxiv.Enabled || cfg.Crawler.HackerNews.Enabled {
		fetcher, err := crawl.NewFetcher(cfg.Crawler, log)
		if err != nil {
			return nil, err
		}
		itemTimeout := cfg.Crawler.ItemTimeout()
		if cfg.Crawler.Arxiv.Enabled {
			jobs = append(jobs, crawl.NewArxivJob(cfg.Crawler.Arxiv, itemTimeout, fetcher, gw.Artifacts, log))
		}
		if cfg.Crawler.HackerNews.Enabled {
			jobs = append(jobs, crawl.NewHackerNewsJob(cfg.Crawler.HackerNews, itemTimeout, fetcher, gw.Pages, gw.Artifacts, log))
		}
	}

	if cfg.Enrichment.Enabled {
		p, err := provider.New(cfg.Enrichment)
		if err != nil {
			return nil, err
		}
		extractor := enrich.NewTextExtractor(cfg.Enrichment.PdftotextPath)
		jobs = append(jobs, enrich.NewDocumentProcessorJob(cfg.Enrichment, gw, p, p, extractor, log))
	}

	if cfg.Publish.Enabled {
		var uploader publish.Uploader
		if cfg.Publish.S3.Enabled {
			s3, err := publish.NewS3Uploader(cfg.Publish.S3, log)
			if err != nil {
				return nil, err
			}
			cctx, cancel := context.WithTimeout(ctx, s3CheckTimeout)
			err = s3.HealthCheck(cctx)
			cancel()
			if err != nil {
				return nil, errors.NewFatalConfigError(err)
			}
			uploader = s3
		}
		jobs = append(jobs, publish.NewPublisherJob(cfg.Publish, gw.Documents, uploader, log))
	}

	return jobs, nil
}
