package enrich

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/metagnosis/ai/provider"
	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
	"github.com/teranos/metagnosis/logger"
	"github.com/teranos/metagnosis/pulse/schedule"
)

// DocumentProcessorJobName is the schedule key of the enrichment job.
const DocumentProcessorJobName = "document-processor"

type sourceKind int

const (
	sourcePDF sourceKind = iota
	sourceHTML
)

// source is a dequeued artifact or page on its way to becoming a document.
type source struct {
	kind   sourceKind
	id     string
	path   string
	url    string
	origin string
	title  string
	score  int
	failed string // fetch error recorded by the crawler

	text string
	meta provider.Metadata
}

// DocumentProcessorJob drains the artifact and page queues into documents.
type DocumentProcessorJob struct {
	schedule.RunWindow
	interval    time.Duration
	limit       int
	workers     int
	itemTimeout time.Duration

	artifacts *gateway.ArtifactGateway
	pages     *gateway.PageGateway
	documents *gateway.DocumentGateway
	encoder   provider.Encoder
	metadata  provider.MetadataExtractor
	hydrator  Hydrator
	log       *zap.SugaredLogger
}

// NewDocumentProcessorJob wires the job. Zero batch_limit and workers fall
// back to 2×NumCPU and NumCPU.
func NewDocumentProcessorJob(cfg am.EnrichmentConfig, gw *gateway.Gateways, encoder provider.Encoder, metadata provider.MetadataExtractor, hydrator Hydrator, log *zap.SugaredLogger) *DocumentProcessorJob {
	limit := cfg.BatchLimit
	if limit <= 0 {
		limit = runtime.NumCPU() * 2
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &DocumentProcessorJob{
		interval:    cfg.Interval(),
		limit:       limit,
		workers:     workers,
		itemTimeout: cfg.ItemTimeout(),
		artifacts:   gw.Artifacts,
		pages:       gw.Pages,
		documents:   gw.Documents,
		encoder:     encoder,
		metadata:    metadata,
		hydrator:    hydrator,
		log:         logger.AddStageSymbol(log, "enrich").Named(DocumentProcessorJobName),
	}
}

func (j *DocumentProcessorJob) Name() string            { return DocumentProcessorJobName }
func (j *DocumentProcessorJob) Interval() time.Duration { return j.interval }

// Perform processes one batch of artifacts, then one batch of pages. A
// failed batch stays queued; the other batch still runs.
func (j *DocumentProcessorJob) Perform(ctx context.Context) error {
	artErr := j.artifacts.Dequeue(ctx, gateway.Criteria{Limit: j.limit}, func(ctx context.Context, items []*gateway.Artifact) error {
		sources := make([]*source, len(items))
		for i, a := range items {
			sources[i] = &source{kind: sourcePDF, id: a.ID, path: a.Path, url: a.URL, origin: a.Origin, title: a.Title, score: a.Score, failed: a.Error}
		}
		return j.process(ctx, "artifact", sources)
	})

	pageErr := j.pages.Dequeue(ctx, gateway.Criteria{Limit: j.limit}, func(ctx context.Context, items []*gateway.Page) error {
		sources := make([]*source, len(items))
		for i, p := range items {
			sources[i] = &source{kind: sourceHTML, id: p.ID, path: p.Path, url: p.URL, origin: p.Origin, title: p.Title, score: p.Score, failed: p.Error}
		}
		return j.process(ctx, "page", sources)
	})

	switch {
	case artErr != nil && pageErr != nil:
		return errors.WithSecondaryError(artErr, pageErr)
	case artErr != nil:
		return artErr
	default:
		return pageErr
	}
}

// process runs inside the dequeue transaction; an error rolls the batch back.
func (j *DocumentProcessorJob) process(ctx context.Context, queue string, sources []*source) error {
	if len(sources) == 0 {
		return nil
	}
	log := j.log.With(logger.FieldQueue, queue)
	start := time.Now()

	hydrated := j.hydrate(ctx, log, sources)
	if len(hydrated) == 0 {
		log.Infow("No text extracted from batch", logger.FieldBatchSize, len(sources))
		return nil
	}

	texts := make([]string, len(hydrated))
	for i, s := range hydrated {
		texts[i] = s.text
	}
	vectors, err := j.encoder.Encode(ctx, texts)
	if err != nil {
		return errors.Wrapf(err, "encode %d %s texts", len(texts), queue)
	}
	if len(vectors) != len(hydrated) {
		return errors.Newf("encoder returned %d vectors for %d texts", len(vectors), len(hydrated))
	}

	j.extractMetadata(ctx, log, hydrated)

	docs := make([]*gateway.Document, len(hydrated))
	for i, s := range hydrated {
		docs[i] = &gateway.Document{
			ID:         s.id,
			Path:       s.path,
			URL:        s.url,
			Origin:     s.origin,
			Title:      s.meta.Title,
			Score:      s.score,
			Categories: s.meta.Tags,
			Vector:     vectors[i],
			Text:       s.text,
		}
	}
	saved, err := j.documents.Save(ctx, docs)
	if err != nil {
		return err
	}

	log.Infow("Batch enriched",
		logger.FieldBatchSize, len(sources),
		logger.FieldCount, saved,
		logger.FieldSkipped, len(sources)-saved,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// hydrate extracts text concurrently. Sources that fail or yield nothing
// are logged and left out; they are still consumed with the batch.
func (j *DocumentProcessorJob) hydrate(ctx context.Context, log *zap.SugaredLogger, sources []*source) []*source {
	var g errgroup.Group
	g.SetLimit(j.workers)
	for _, s := range sources {
		if s.failed != "" || s.path == "" {
			log.Debugw("Source has no payload", logger.FieldItemID, s.id, logger.FieldError, s.failed)
			continue
		}
		g.Go(func() error {
			ictx, cancel := context.WithTimeout(ctx, j.itemTimeout)
			defer cancel()

			var text string
			var err error
			if s.kind == sourcePDF {
				text, err = j.hydrator.PDFText(ictx, s.path)
			} else {
				text, err = j.hydrator.HTMLText(ictx, s.path, s.url)
			}
			if err != nil {
				log.Warnw("Text extraction failed", logger.FieldItemID, s.id, logger.FieldPath, s.path, logger.FieldError, err)
				return nil
			}
			s.text = strings.TrimSpace(text)
			return nil
		})
	}
	g.Wait()

	out := make([]*source, 0, len(sources))
	for _, s := range sources {
		if s.text != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractMetadata fills s.meta. A failed extraction or a reply without a
// title leaves the title empty and the document is dropped on save.
func (j *DocumentProcessorJob) extractMetadata(ctx context.Context, log *zap.SugaredLogger, sources []*source) {
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(j.workers)
	for _, s := range sources {
		g.Go(func() error {
			ictx, cancel := context.WithTimeout(ctx, j.itemTimeout)
			defer cancel()

			meta, err := j.metadata.ExtractMetadata(ictx, s.text)
			if err != nil {
				failed.Add(1)
				log.Warnw("Metadata extraction failed", logger.FieldItemID, s.id, logger.FieldError, err)
				return nil
			}
			if meta.Title == "" {
				failed.Add(1)
				log.Debugw("Model returned no title", logger.FieldItemID, s.id, logger.FieldTitle, s.title)
			}
			s.meta = meta
			return nil
		})
	}
	g.Wait()

	if n := failed.Load(); n > 0 {
		log.Infow("Documents without metadata will be dropped", logger.FieldSkipped, n)
	}
}
