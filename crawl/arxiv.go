package crawl

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
	"github.com/teranos/metagnosis/logger"
	"github.com/teranos/metagnosis/pulse/schedule"
)

// ArxivJobName is the schedule key of the arXiv job.
const ArxivJobName = "arxiv"

// FeedEntry is one usable item of a topic feed.
type FeedEntry struct {
	Title  string
	PDFURL string
}

// ArxivJob downloads the PDFs announced by arXiv topic feeds.
type ArxivJob struct {
	schedule.RunWindow
	cfg         am.ArxivConfig
	fetcher     *Fetcher
	artifacts   *gateway.ArtifactGateway
	itemTimeout time.Duration
	log         *zap.SugaredLogger
}

// NewArxivJob creates the job.
func NewArxivJob(cfg am.ArxivConfig, itemTimeout time.Duration, fetcher *Fetcher, artifacts *gateway.ArtifactGateway, log *zap.SugaredLogger) *ArxivJob {
	return &ArxivJob{
		cfg:         cfg,
		fetcher:     fetcher,
		artifacts:   artifacts,
		itemTimeout: itemTimeout,
		log:         logger.AddStageSymbol(log, "crawl").Named(ArxivJobName),
	}
}

func (j *ArxivJob) Name() string            { return ArxivJobName }
func (j *ArxivJob) Interval() time.Duration { return j.cfg.Interval() }

// Perform processes every topic concurrently. A failing topic is logged and
// skipped; the cycle fails only when every topic failed.
func (j *ArxivJob) Perform(ctx context.Context) error {
	var failed atomic.Int32
	var g errgroup.Group
	for _, topic := range j.cfg.Topics {
		g.Go(func() error {
			if err := j.processTopic(ctx, topic); err != nil {
				failed.Add(1)
				j.log.Warnw("Topic failed", logger.FieldTopic, topic, logger.FieldError, err)
			}
			return nil
		})
	}
	g.Wait()

	if n := int(failed.Load()); n > 0 && n == len(j.cfg.Topics) {
		return errors.Newf("all %d arxiv topics failed", n)
	}
	return nil
}

func (j *ArxivJob) processTopic(ctx context.Context, topic string) error {
	feedURL := fmt.Sprintf(j.cfg.FeedURLTemplate, topic)
	body, err := j.fetcher.Get(ctx, feedURL)
	if err != nil {
		return err
	}

	entries, err := ParseArxivFeed(string(body))
	if err != nil {
		return errors.Wrapf(err, "topic %s", topic)
	}

	// The artifact gateway's download semaphore bounds concurrency.
	var queued atomic.Int32
	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			ictx, cancel := context.WithTimeout(ctx, j.itemTimeout)
			defer cancel()
			err := j.artifacts.Download(ictx, j.fetcher, gateway.DownloadRequest{
				URL:    e.PDFURL,
				Origin: gateway.OriginArxiv,
				Title:  e.Title,
			})
			if err != nil {
				j.log.Debugw("Download skipped", logger.FieldURL, e.PDFURL, logger.FieldError, err)
				return nil
			}
			queued.Add(1)
			return nil
		})
	}
	g.Wait()

	j.log.Infow("Topic processed", logger.FieldTopic, topic, logger.FieldCount, len(entries), "ok", queued.Load())
	return nil
}

// ParseArxivFeed extracts entries from an arXiv RSS document, rewriting
// abstract links to their PDF form. Entries without a link are dropped.
func ParseArxivFeed(body string) ([]FeedEntry, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, errors.Wrap(err, "parse feed")
	}

	entries := make([]FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := item.Link
		if link == "" && strings.HasPrefix(item.GUID, "http") {
			link = item.GUID
		}
		if link == "" {
			continue
		}
		entries = append(entries, FeedEntry{
			Title:  strings.TrimSpace(item.Title),
			PDFURL: strings.Replace(link, "/abs/", "/pdf/", 1),
		})
	}
	return entries, nil
}
