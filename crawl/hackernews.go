package crawl

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
	"github.com/teranos/metagnosis/logger"
	"github.com/teranos/metagnosis/pulse/schedule"
)

// HackerNewsJobName is the schedule key of the HackerNews job.
const HackerNewsJobName = "hackernews"

// pageFetchLimit bounds concurrent linked-page fetches in one cycle.
const pageFetchLimit = 8

// Story is one front-page entry. Score is the comment count.
type Story struct {
	ID    string
	Title string
	URL   string
	Score int
}

// StoryID is the hex sha256 of a story URL.
func StoryID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// HackerNewsJob scrapes the front page into the page and artifact queues.
type HackerNewsJob struct {
	schedule.RunWindow
	cfg         am.HackerNewsConfig
	fetcher     *Fetcher
	pages       *gateway.PageGateway
	artifacts   *gateway.ArtifactGateway
	itemTimeout time.Duration
	log         *zap.SugaredLogger
}

// NewHackerNewsJob creates the job.
func NewHackerNewsJob(cfg am.HackerNewsConfig, itemTimeout time.Duration, fetcher *Fetcher, pages *gateway.PageGateway, artifacts *gateway.ArtifactGateway, log *zap.SugaredLogger) *HackerNewsJob {
	return &HackerNewsJob{
		cfg:         cfg,
		fetcher:     fetcher,
		pages:       pages,
		artifacts:   artifacts,
		itemTimeout: itemTimeout,
		log:         logger.AddStageSymbol(log, "crawl").Named(HackerNewsJobName),
	}
}

func (j *HackerNewsJob) Name() string            { return HackerNewsJobName }
func (j *HackerNewsJob) Interval() time.Duration { return j.cfg.Interval() }

// Perform fetches the front page and routes each unprocessed story: PDFs
// to the artifact queue, known pages to a score refresh, new pages to a
// fetch. All pages are upserted in one call.
func (j *HackerNewsJob) Perform(ctx context.Context) error {
	body, err := j.fetcher.Get(ctx, j.cfg.URL)
	if err != nil {
		return err
	}
	stories, err := ParseFrontPage(body, j.cfg.URL)
	if err != nil {
		return err
	}

	ids := make([]string, len(stories))
	for i, s := range stories {
		ids[i] = s.ID
	}
	status, err := j.pages.ProcessingStatus(ctx, ids)
	if err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		pages []*gateway.Page
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageFetchLimit)
	for _, s := range stories {
		st := status[s.ID]
		if st.Processed {
			continue
		}
		g.Go(func() error {
			page := j.processStory(gctx, s, st.Known)
			if page != nil {
				mu.Lock()
				pages = append(pages, page)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if err := j.pages.Upsert(ctx, pages); err != nil {
		return err
	}
	j.log.Infow("Front page processed", logger.FieldCount, len(stories), "pages", len(pages))
	return nil
}

func (j *HackerNewsJob) processStory(ctx context.Context, s Story, known bool) *gateway.Page {
	if strings.HasSuffix(strings.ToLower(s.URL), ".pdf") {
		ictx, cancel := context.WithTimeout(ctx, j.itemTimeout)
		defer cancel()
		err := j.artifacts.Download(ictx, j.fetcher, gateway.DownloadRequest{
			URL:    s.URL,
			Origin: gateway.OriginHackerNews,
			Title:  s.Title,
			Score:  s.Score,
		})
		if err != nil {
			j.log.Debugw("Download skipped", logger.FieldURL, s.URL, logger.FieldError, err)
		}
		return nil
	}

	page := &gateway.Page{
		ID:     s.ID,
		Origin: gateway.OriginHackerNews,
		Title:  s.Title,
		URL:    s.URL,
		Score:  s.Score,
	}
	if known {
		return page
	}

	ictx, cancel := context.WithTimeout(ctx, j.itemTimeout)
	defer cancel()
	content, err := j.fetcher.Get(ictx, s.URL)
	if err != nil {
		page.Error = err.Error()
		j.log.Debugw("Page fetch failed", logger.FieldURL, s.URL, logger.FieldError, err)
		return page
	}
	path, err := j.pages.WritePayload(s.ID, content)
	if err != nil {
		page.Error = err.Error()
		return page
	}
	page.Path = path
	return page
}

// ParseFrontPage extracts stories from front-page HTML. Relative links are
// resolved against base. Title and subtext rows must pair up.
func ParseFrontPage(html []byte, base string) ([]Story, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parse front page")
	}

	var stories []Story
	doc.Find("span.titleline").Each(func(_ int, s *goquery.Selection) {
		a := s.Find("a").First()
		href, _ := a.Attr("href")
		link := href
		if ref, err := url.Parse(href); err == nil {
			link = baseURL.ResolveReference(ref).String()
		}
		stories = append(stories, Story{
			ID:    StoryID(link),
			Title: strings.TrimSpace(a.Text()),
			URL:   link,
		})
	})

	var scores []int
	doc.Find("td.subtext").Each(func(_ int, s *goquery.Selection) {
		scores = append(scores, commentCount(s.Find("*").Last().Text()))
	})

	if len(stories) != len(scores) {
		return nil, errors.NewProcessingError(
			errors.Newf("front page has %d titles but %d subtext rows", len(stories), len(scores)),
			HackerNewsJobName)
	}
	for i := range stories {
		stories[i].Score = scores[i]
	}
	return stories, nil
}

// commentCount reads "123 comments" style text; anything else is 0.
func commentCount(text string) int {
	fields := strings.Fields(text) // Fields splits on &nbsp; too
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}
