// Package sym defines the glyphs metagnosis attaches to log lines and CLI
// output so each pipeline stage is recognisable at a glance.
package sym

// Pipeline stages.
const (
	AM      = "≡" // configuration
	Crawl   = "⨳" // ingest from external sources
	Enrich  = "⊨" // text hydration, encoding, tagging
	Publish = "⟶" // digest curation and upload
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // scheduler ticks and job runs
	PulseOpen  = "✿" // startup
	PulseClose = "❀" // graceful shutdown
	DB         = "⊔" // database/storage layer
	Doc        = "▤" // document/file content (PDF, HTML)
)

// stageNames maps stage names used in config and job ids to their glyph.
var stageNames = map[string]string{
	"am":        AM,
	"crawl":     Crawl,
	"enrich":    Enrich,
	"publish":   Publish,
	"pulse":     Pulse,
	"db":        DB,
	"documents": Doc,
}

// ForStage returns the glyph for a stage name, or Pulse when unknown.
func ForStage(name string) string {
	if g, ok := stageNames[name]; ok {
		return g
	}
	return Pulse
}
