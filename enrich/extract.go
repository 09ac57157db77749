// Package enrich turns queued artifacts and pages into documents: it
// extracts their text, encodes it, asks a chat model for a title and tags,
// and saves the result to the document queue in the same transaction that
// consumes the sources.
package enrich

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"os/exec"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/teranos/metagnosis/errors"
)

// Hydrator reads the text out of stored payloads.
type Hydrator interface {
	PDFText(ctx context.Context, path string) (string, error)
	HTMLText(ctx context.Context, path, pageURL string) (string, error)
}

// TextExtractor is the production Hydrator: poppler's pdftotext for PDFs
// and readability for HTML.
type TextExtractor struct {
	pdftotext string
}

// NewTextExtractor creates an extractor using the given pdftotext binary.
func NewTextExtractor(pdftotextPath string) *TextExtractor {
	if pdftotextPath == "" {
		pdftotextPath = "pdftotext"
	}
	return &TextExtractor{pdftotext: pdftotextPath}
}

// PDFText runs pdftotext on path and returns its UTF-8 output.
func (e *TextExtractor) PDFText(ctx context.Context, path string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.pdftotext, "-enc", "UTF-8", "-nopgbrk", path, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.WithDetail(err, msg)
		}
		return "", errors.Wrapf(err, "pdftotext %s", path)
	}
	return normalizeText(stdout.String()), nil
}

// HTMLText extracts the readable article text of a stored page.
func (e *TextExtractor) HTMLText(ctx context.Context, path, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open page payload")
	}
	defer f.Close()

	u, err := url.Parse(pageURL)
	if err != nil {
		return "", errors.Wrapf(err, "parse page url %q", pageURL)
	}
	article, err := readability.FromReader(f, u)
	if err != nil {
		return "", errors.Wrapf(err, "readability %s", pageURL)
	}

	text := normalizeText(article.TextContent)
	if title := strings.TrimSpace(article.Title); title != "" && !strings.HasPrefix(text, title) {
		text = title + "\n\n" + text
	}
	return text, nil
}

// normalizeText trims trailing whitespace per line and collapses runs of
// blank lines.
func normalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
