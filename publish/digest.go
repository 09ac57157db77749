package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
)

// Entry is one digest line.
type Entry struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Origin     string   `json:"origin"`
	Score      int      `json:"score"`
	Categories []string `json:"categories"`
	Novelty    *float64 `json:"novelty,omitempty"`
}

// Digest is the published selection of one publisher run.
type Digest struct {
	Date       string    `json:"date"`
	Generated  time.Time `json:"generated"`
	HackerNews []Entry   `json:"hackernews"`
	Arxiv      []Entry   `json:"arxiv"`
}

// NewDigest builds a digest dated by the UTC day of now.
func NewDigest(now time.Time, hn []*gateway.Document, arxiv []Ranked) *Digest {
	d := &Digest{
		Date:       now.UTC().Format(time.DateOnly),
		Generated:  now.UTC(),
		HackerNews: make([]Entry, 0, len(hn)),
		Arxiv:      make([]Entry, 0, len(arxiv)),
	}
	for _, doc := range hn {
		d.HackerNews = append(d.HackerNews, entry(doc))
	}
	for _, r := range arxiv {
		e := entry(r.Document)
		novelty := r.Novelty
		e.Novelty = &novelty
		d.Arxiv = append(d.Arxiv, e)
	}
	return d
}

func entry(doc *gateway.Document) Entry {
	categories := doc.Categories
	if categories == nil {
		categories = []string{}
	}
	return Entry{ID: doc.ID, Title: doc.Title, URL: doc.URL, Origin: doc.Origin, Score: doc.Score, Categories: categories}
}

// Name is the file stem shared by every rendering: digest-YYYY-MM-DD.
func (d *Digest) Name() string { return "digest-" + d.Date }

// Len returns the number of entries.
func (d *Digest) Len() int { return len(d.HackerNews) + len(d.Arxiv) }

// JSON renders the digest as indented JSON.
func (d *Digest) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal digest")
	}
	return append(b, '\n'), nil
}

// Markdown renders the digest for reading.
func (d *Digest) Markdown() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Digest %s\n", d.Date)

	if len(d.HackerNews) > 0 {
		b.WriteString("\n## HackerNews\n\n")
		for _, e := range d.HackerNews {
			fmt.Fprintf(&b, "- [%s](%s) (%d comments)%s\n", escapeMarkdown(e.Title), e.URL, e.Score, tags(e.Categories))
		}
	}
	if len(d.Arxiv) > 0 {
		b.WriteString("\n## arXiv\n\n")
		for _, e := range d.Arxiv {
			fmt.Fprintf(&b, "- [%s](%s)%s\n", escapeMarkdown(e.Title), e.URL, tags(e.Categories))
		}
	}
	return []byte(b.String())
}

func tags(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	return " `" + strings.Join(categories, "` `") + "`"
}

var markdownEscaper = strings.NewReplacer(`[`, `\[`, `]`, `\]`, `*`, `\*`, `_`, `\_`, "`", "\\`")

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

// File is a rendered digest file.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Files renders the JSON and markdown variants.
func (d *Digest) Files() ([]File, error) {
	js, err := d.JSON()
	if err != nil {
		return nil, err
	}
	return []File{
		{Name: d.Name() + ".json", ContentType: "application/json", Body: js},
		{Name: d.Name() + ".md", ContentType: "text/markdown; charset=utf-8", Body: d.Markdown()},
	}, nil
}

// WriteFiles writes files into dir through a temp file and rename, so a
// reader never sees a partial digest. It returns the written paths.
func WriteFiles(dir string, files []File) ([]string, error) {
	if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, f.Body, am.DefaultFilePermissions); err != nil {
			return paths, errors.Wrapf(err, "write %s", tmp)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return paths, errors.Wrapf(err, "rename %s", tmp)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
