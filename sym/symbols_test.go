package sym

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForStage(t *testing.T) {
	assert.Equal(t, Crawl, ForStage("crawl"))
	assert.Equal(t, Enrich, ForStage("enrich"))
	assert.Equal(t, Publish, ForStage("publish"))
	assert.Equal(t, DB, ForStage("db"))
	assert.Equal(t, Pulse, ForStage("unknown"))
}

func TestGlyphsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, g := range []string{AM, Crawl, Enrich, Publish, Pulse, PulseOpen, PulseClose, DB, Doc} {
		assert.False(t, seen[g], "duplicate glyph %q", g)
		seen[g] = true
	}
}
