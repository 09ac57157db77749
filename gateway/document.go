package gateway

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"go.uber.org/zap"

	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/logger"
)

// DocumentSchema is the enriched document queue.
const DocumentSchema = `
CREATE TABLE IF NOT EXISTS document (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    origin TEXT NOT NULL,
    title TEXT NOT NULL,
    score INTEGER NOT NULL DEFAULT 0,
    categories TEXT NOT NULL DEFAULT '[]',
    vector BLOB NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    processed INTEGER NOT NULL DEFAULT 0,
    created INTEGER NOT NULL,
    updated INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_processed ON document(processed);
CREATE INDEX IF NOT EXISTS idx_document_origin_score ON document(origin, score);
CREATE INDEX IF NOT EXISTS idx_document_created ON document(created);
`

const documentColumns = "id, path, url, origin, title, score, categories, vector, text, processed, created, updated"

// Document is an enriched queue item ready for publishing.
type Document struct {
	ID         string
	Path       string // source payload path, informational
	URL        string
	Origin     string
	Title      string
	Score      int
	Categories []string
	Vector     []float32
	Text       string
	Processed  bool
	Created    time.Time
	Updated    time.Time
}

func (d *Document) ItemID() string { return d.ID }

// PayloadPath is empty: the source file belongs to the artifact or page row.
func (d *Document) PayloadPath() string { return "" }

func scanDocument(sc Scanner) (*Document, error) {
	var d Document
	var categories string
	var vector []byte
	var created, updated int64
	var processed int
	if err := sc.Scan(&d.ID, &d.Path, &d.URL, &d.Origin, &d.Title, &d.Score, &categories, &vector, &d.Text, &processed, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categories), &d.Categories); err != nil {
		return nil, errors.Wrapf(err, "document %s categories", d.ID)
	}
	v, err := DecodeVector(vector)
	if err != nil {
		return nil, errors.Wrapf(err, "document %s vector", d.ID)
	}
	d.Vector = v
	d.Processed = processed != 0
	d.Created = fromMillis(created)
	d.Updated = fromMillis(updated)
	return &d, nil
}

// DecodeVector reverses sqlite_vec.SerializeFloat32 (little-endian float32).
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Newf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// DocumentGateway is the queue of enriched documents.
type DocumentGateway struct {
	*Queue[*Document]
	store     *Store
	dimension int
	log       *zap.SugaredLogger
}

// NewDocumentGateway creates the document queue. Saved vectors must have
// exactly dimension components.
func NewDocumentGateway(store *Store, dimension int) *DocumentGateway {
	return &DocumentGateway{
		Queue: NewQueue(store, QueueDef[*Document]{
			Table:   "document",
			Columns: documentColumns,
			Scan:    scanDocument,
			Finish:  FinishMarkProcessed,
		}),
		store:     store,
		dimension: dimension,
		log:       store.log.Named("document"),
	}
}

// Schema returns the document DDL.
func (g *DocumentGateway) Schema() string { return DocumentSchema }

// Initialize creates the table.
func (g *DocumentGateway) Initialize(ctx context.Context) error {
	return g.store.Initialize(ctx, DocumentSchema)
}

// Dimension returns the required vector length.
func (g *DocumentGateway) Dimension() int { return g.dimension }

// Save persists docs, joining the caller's transaction when ctx carries one.
//
// Every document must carry a vector of the configured dimension, otherwise
// nothing is written and an invalid-request error is returned. Documents
// without a title are dropped, not stored. Returns the number saved.
func (g *DocumentGateway) Save(ctx context.Context, docs []*Document) (int, error) {
	for _, d := range docs {
		if len(d.Vector) == 0 {
			return 0, errors.NewInvalidRequestError("document %s has no vector", d.ID)
		}
		if len(d.Vector) != g.dimension {
			return 0, errors.NewInvalidRequestError("document %s vector has %d dimensions, want %d", d.ID, len(d.Vector), g.dimension)
		}
	}

	now := g.store.now()
	saved := 0

	err := g.store.Transaction(ctx, func(ctx context.Context) error {
		qr := g.store.querier(ctx)
		for _, d := range docs {
			if strings.TrimSpace(d.Title) == "" {
				g.log.Infow("Dropping document without title",
					logger.FieldItemID, d.ID,
					logger.FieldOrigin, d.Origin,
				)
				continue
			}

			vector, err := sqlite_vec.SerializeFloat32(d.Vector)
			if err != nil {
				return errors.Wrapf(err, "serialize vector %s", d.ID)
			}
			categories, err := json.Marshal(nonNil(d.Categories))
			if err != nil {
				return errors.Wrapf(err, "encode categories %s", d.ID)
			}
			if d.Created.IsZero() {
				d.Created = now
			}
			d.Updated = now

			_, err = qr.ExecContext(ctx,
				`INSERT OR REPLACE INTO document (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				d.ID, d.Path, d.URL, d.Origin, d.Title, d.Score, string(categories), vector, d.Text,
				boolInt(d.Processed), toMillis(d.Created), toMillis(d.Updated),
			)
			if err != nil {
				return errors.Wrapf(err, "save document %s", d.ID)
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

// CosineDistances returns the cosine distance between vector and each of
// docs, computed by sqlite-vec over the stored rows. It joins the caller's
// transaction when ctx carries one. Documents with a zero or mismatched
// vector are at distance 1, as is everything when vector is zero.
func (g *DocumentGateway) CosineDistances(ctx context.Context, vector []float32, docs []*Document) (map[string]float64, error) {
	out := make(map[string]float64, len(docs))
	var ids []any
	for _, d := range docs {
		out[d.ID] = 1
		if len(d.Vector) == len(vector) && !isZero(d.Vector) {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 || isZero(vector) {
		return out, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, errors.Wrap(err, "serialize query vector")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := g.store.querier(ctx).QueryContext(ctx,
		`SELECT id, vec_distance_cosine(vector, ?) FROM document WHERE id IN (`+placeholders+`)`,
		append([]any{blob}, ids...)...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "cosine distances")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var d sql.NullFloat64
		if err := rows.Scan(&id, &d); err != nil {
			return nil, errors.Wrap(err, "scan distance")
		}
		if d.Valid && !math.IsNaN(d.Float64) {
			out[id] = d.Float64
		}
	}
	return out, rows.Err()
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
