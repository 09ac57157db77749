package gateway

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/logger"
)

// ArtifactSchema is the raw download queue.
const ArtifactSchema = `
CREATE TABLE IF NOT EXISTS artifact (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    url TEXT NOT NULL,
    origin TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    score INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created INTEGER NOT NULL,
    updated INTEGER NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_artifact_processed ON artifact(processed);
CREATE INDEX IF NOT EXISTS idx_artifact_created ON artifact(created);
CREATE UNIQUE INDEX IF NOT EXISTS idx_artifact_url ON artifact(url);
`

const artifactColumns = "id, path, url, origin, title, score, error, created, updated, processed"

// Artifact is a downloaded file (usually a PDF) waiting for enrichment.
type Artifact struct {
	ID        string
	Path      string
	URL       string
	Origin    string
	Title     string
	Score     int
	Error     string
	Created   time.Time
	Updated   time.Time
	Processed bool
}

func (a *Artifact) ItemID() string      { return a.ID }
func (a *Artifact) PayloadPath() string { return a.Path }

func scanArtifact(sc Scanner) (*Artifact, error) {
	var a Artifact
	var created, updated int64
	var processed int
	if err := sc.Scan(&a.ID, &a.Path, &a.URL, &a.Origin, &a.Title, &a.Score, &a.Error, &created, &updated, &processed); err != nil {
		return nil, err
	}
	a.Created = fromMillis(created)
	a.Updated = fromMillis(updated)
	a.Processed = processed != 0
	return &a, nil
}

// Opener opens a remote URL for streaming.
type Opener interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// DownloadRequest describes one artifact to fetch.
type DownloadRequest struct {
	URL    string
	Origin string
	Title  string
	Score  int
}

// ArtifactGateway is the queue of downloaded artifacts.
type ArtifactGateway struct {
	*Queue[*Artifact]
	store *Store
	sem   *semaphore.Weighted
	log   *zap.SugaredLogger
}

// NewArtifactGateway creates the artifact queue. downloadLimit bounds
// concurrent downloads; deleteProcessed selects FinishDelete over
// FinishMarkProcessed.
func NewArtifactGateway(store *Store, downloadLimit int, deleteProcessed bool) *ArtifactGateway {
	if downloadLimit < 1 {
		downloadLimit = 1
	}
	finish := FinishMarkProcessed
	if deleteProcessed {
		finish = FinishDelete
	}
	return &ArtifactGateway{
		Queue: NewQueue(store, QueueDef[*Artifact]{
			Table:     "artifact",
			Columns:   artifactColumns,
			Scan:      scanArtifact,
			Finish:    finish,
			OwnsFiles: true,
		}),
		store: store,
		sem:   semaphore.NewWeighted(int64(downloadLimit)),
		log:   store.log.Named("artifact"),
	}
}

// Schema returns the artifact DDL.
func (g *ArtifactGateway) Schema() string { return ArtifactSchema }

// Initialize creates the table and the storage directory.
func (g *ArtifactGateway) Initialize(ctx context.Context) error {
	return g.store.Initialize(ctx, ArtifactSchema)
}

// Exists reports whether an artifact with url is already queued or processed.
func (g *ArtifactGateway) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := g.store.querier(ctx).QueryRowContext(ctx, "SELECT 1 FROM artifact WHERE url = ?", url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "artifact exists")
	}
	return true, nil
}

// Add inserts a. An artifact with the same id or url is left untouched and
// Add reports false.
func (g *ArtifactGateway) Add(ctx context.Context, a *Artifact) (bool, error) {
	now := g.store.now()
	if a.Created.IsZero() {
		a.Created = now
	}
	if a.Updated.IsZero() {
		a.Updated = now
	}

	var inserted bool
	err := g.store.Transaction(ctx, func(ctx context.Context) error {
		res, err := g.store.querier(ctx).ExecContext(ctx,
			`INSERT OR IGNORE INTO artifact (`+artifactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Path, a.URL, a.Origin, a.Title, a.Score, a.Error,
			toMillis(a.Created), toMillis(a.Updated), boolInt(a.Processed),
		)
		if err != nil {
			return errors.Wrap(err, "insert artifact")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// UpdateByURL refreshes title and score of an unprocessed artifact.
func (g *ArtifactGateway) UpdateByURL(ctx context.Context, url, title string, score int) error {
	return g.store.Transaction(ctx, func(ctx context.Context) error {
		_, err := g.store.querier(ctx).ExecContext(ctx,
			"UPDATE artifact SET title = ?, score = ?, updated = ? WHERE url = ? AND processed = 0",
			title, score, toMillis(g.store.now()), url,
		)
		return errors.Wrap(err, "update artifact")
	})
}

// Download fetches req.URL into the storage directory and queues it.
//
// A URL that is already known only gets its title and score refreshed.
// Otherwise the download waits for a slot (at most downloadLimit run at
// once), streams the body to a new file and inserts the row. Failures
// remove the partial file and come back as TransientIOError.
func (g *ArtifactGateway) Download(ctx context.Context, src Opener, req DownloadRequest) error {
	exists, err := g.Exists(ctx, req.URL)
	if err != nil {
		return err
	}
	if exists {
		return g.UpdateByURL(ctx, req.URL, req.Title, req.Score)
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return errors.NewTransientIOError(err, req.URL)
	}
	defer g.sem.Release(1)

	id := uuid.NewString()
	path := filepath.Join(g.store.StoragePath(), id)

	if err := g.fetchTo(ctx, src, req.URL, path); err != nil {
		os.Remove(path)
		return errors.NewTransientIOError(err, req.URL)
	}

	inserted, err := g.Add(ctx, &Artifact{
		ID:     id,
		Path:   path,
		URL:    req.URL,
		Origin: req.Origin,
		Title:  req.Title,
		Score:  req.Score,
	})
	if err != nil || !inserted {
		// lost a race with a concurrent download of the same URL
		os.Remove(path)
		return err
	}

	g.log.Infow("Artifact queued",
		logger.FieldURL, req.URL,
		logger.FieldOrigin, req.Origin,
		logger.FieldPath, path,
	)
	return nil
}

func (g *ArtifactGateway) fetchTo(ctx context.Context, src Opener, url, path string) error {
	body, err := src.Open(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, am.DefaultFilePermissions)
	if err != nil {
		return errors.Wrap(err, "create payload file")
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return errors.Wrap(err, "write payload file")
	}
	return errors.Wrap(f.Close(), "close payload file")
}
