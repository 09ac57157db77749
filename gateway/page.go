package gateway

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
)

// PageSchema is the fetched web page queue.
const PageSchema = `
CREATE TABLE IF NOT EXISTS page (
    id TEXT PRIMARY KEY,
    origin TEXT NOT NULL,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    score INTEGER NOT NULL DEFAULT 0,
    path TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    processed INTEGER NOT NULL DEFAULT 0,
    created INTEGER NOT NULL,
    updated INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_page_processed ON page(processed);
CREATE INDEX IF NOT EXISTS idx_page_created ON page(created);
`

const pageColumns = "id, origin, title, url, score, path, error, processed, created, updated"

// Page is a linked web page; its HTML lives at Path once fetched.
type Page struct {
	ID        string
	Origin    string
	Title     string
	URL       string
	Score     int
	Path      string
	Error     string
	Processed bool
	Created   time.Time
	Updated   time.Time
}

func (p *Page) ItemID() string      { return p.ID }
func (p *Page) PayloadPath() string { return p.Path }

func scanPage(sc Scanner) (*Page, error) {
	var p Page
	var created, updated int64
	var processed int
	if err := sc.Scan(&p.ID, &p.Origin, &p.Title, &p.URL, &p.Score, &p.Path, &p.Error, &processed, &created, &updated); err != nil {
		return nil, err
	}
	p.Processed = processed != 0
	p.Created = fromMillis(created)
	p.Updated = fromMillis(updated)
	return &p, nil
}

// PageStatus is what the queue knows about a page id.
type PageStatus struct {
	Known     bool
	Processed bool
}

// PageGateway is the queue of fetched pages.
type PageGateway struct {
	*Queue[*Page]
	store *Store
}

// NewPageGateway creates the page queue.
func NewPageGateway(store *Store) *PageGateway {
	return &PageGateway{
		Queue: NewQueue(store, QueueDef[*Page]{
			Table:     "page",
			Columns:   pageColumns,
			Scan:      scanPage,
			Finish:    FinishMarkProcessed,
			OwnsFiles: true,
		}),
		store: store,
	}
}

// Schema returns the page DDL.
func (g *PageGateway) Schema() string { return PageSchema }

// Initialize creates the table and the storage directory.
func (g *PageGateway) Initialize(ctx context.Context) error {
	return g.store.Initialize(ctx, PageSchema)
}

// Upsert inserts new pages and refreshes title and score of pages that are
// still unprocessed. Processed pages are never modified.
func (g *PageGateway) Upsert(ctx context.Context, pages []*Page) error {
	if len(pages) == 0 {
		return nil
	}
	now := g.store.now()

	return g.store.Transaction(ctx, func(ctx context.Context) error {
		qr := g.store.querier(ctx)
		for _, p := range pages {
			if p.Created.IsZero() {
				p.Created = now
			}
			p.Updated = now
			_, err := qr.ExecContext(ctx, `
				INSERT INTO page (`+pageColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					title = excluded.title,
					score = excluded.score,
					updated = excluded.updated
				WHERE page.processed = 0`,
				p.ID, p.Origin, p.Title, p.URL, p.Score, p.Path, p.Error,
				toMillis(p.Created), toMillis(p.Updated),
			)
			if err != nil {
				return errors.Wrapf(err, "upsert page %s", p.ID)
			}
		}
		return nil
	})
}

// ProcessingStatus reports, per id, whether the page is known and whether
// it has been processed. Unknown ids are absent from the map.
func (g *PageGateway) ProcessingStatus(ctx context.Context, ids []string) (map[string]PageStatus, error) {
	out := make(map[string]PageStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := g.store.querier(ctx).QueryContext(ctx,
		"SELECT id, processed FROM page WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, errors.Wrap(err, "page status")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var processed int
		if err := rows.Scan(&id, &processed); err != nil {
			return nil, errors.Wrap(err, "scan page status")
		}
		out[id] = PageStatus{Known: true, Processed: processed != 0}
	}
	return out, rows.Err()
}

// WritePayload stores fetched page content under the storage directory and
// returns its path.
func (g *PageGateway) WritePayload(id string, content []byte) (string, error) {
	path := filepath.Join(g.store.StoragePath(), "page-"+id+".html")
	if err := os.WriteFile(path, content, am.DefaultFilePermissions); err != nil {
		return "", errors.Wrapf(err, "write page %s", id)
	}
	return path, nil
}
