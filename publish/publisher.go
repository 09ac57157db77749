package publish

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/gateway"
	"github.com/teranos/metagnosis/internal/util"
	"github.com/teranos/metagnosis/logger"
	"github.com/teranos/metagnosis/pulse/schedule"
)

// PublisherJobName is the schedule key of the digest job.
const PublisherJobName = "publisher"

// PublisherJob selects documents into a digest and marks them processed.
type PublisherJob struct {
	schedule.RunWindow
	cfg       am.PublishConfig
	documents *gateway.DocumentGateway
	uploader  Uploader
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewPublisherJob creates the job. A nil uploader only writes local files.
func NewPublisherJob(cfg am.PublishConfig, documents *gateway.DocumentGateway, uploader Uploader, log *zap.SugaredLogger) *PublisherJob {
	return &PublisherJob{
		cfg:       cfg,
		documents: documents,
		uploader:  uploader,
		now:       time.Now,
		log:       logger.AddStageSymbol(log, "publish").Named(PublisherJobName),
	}
}

func (j *PublisherJob) Name() string            { return PublisherJobName }
func (j *PublisherJob) Interval() time.Duration { return j.cfg.Interval() }

// criteria selects [0] HackerNews by score and [1] arXiv candidates.
func (j *PublisherJob) criteria() []gateway.Criteria {
	return []gateway.Criteria{
		{Origin: gateway.OriginHackerNews, MinScore: util.Ptr(j.cfg.HackerNewsMinScore), Order: gateway.OrderScoreDesc, Limit: j.cfg.HackerNewsLimit},
		{Origin: gateway.OriginArxiv, Limit: j.cfg.ArxivLimit},
	}
}

// Perform builds and publishes one digest. Both batches are marked
// processed only when the files are written and uploaded; any failure
// leaves them queued for the next run.
func (j *PublisherJob) Perform(ctx context.Context) error {
	return j.documents.DequeueMulti(ctx, j.criteria(), func(ctx context.Context, batches [][]*gateway.Document) error {
		hn, candidates := batches[0], batches[1]
		if len(hn) == 0 && len(candidates) == 0 {
			j.log.Debugw("Nothing to publish")
			return nil
		}

		picked, err := RankByNovelty(ctx, j.documents, candidates, j.cfg.ArxivPick)
		if err != nil {
			return err
		}
		digest := NewDigest(j.now(), hn, picked)
		files, err := digest.Files()
		if err != nil {
			return err
		}

		paths, err := WriteFiles(j.cfg.OutputDir, files)
		if err != nil {
			return err
		}

		if j.uploader != nil {
			for _, f := range files {
				if err := j.uploader.Upload(ctx, f); err != nil {
					return err
				}
			}
		}

		j.log.Infow("Digest published",
			logger.FieldPath, paths[0],
			logger.FieldCount, digest.Len(),
			logger.FieldSkipped, len(candidates)-len(picked),
			"uploaded", j.uploader != nil,
		)
		return nil
	})
}
