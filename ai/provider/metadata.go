package provider

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/teranos/metagnosis/errors"
)

// MetadataPrompt is the system prompt for metadata extraction.
const MetadataPrompt = `Given a body of text, extract the title and tags related to it. Try to keep tag
values down to a single word. Use high level categories as much as possible and
limit the tag list to a maximum of 5 tags.

Return the data in json in the following format:
{
    "title": "title",
    "tags": ["tag1", "tag2"]
}`

// MaxTags caps the tag list kept from a model response.
const MaxTags = 5

// maxPromptChars bounds the document text sent for extraction. The title
// and abstract live at the start of the text.
const maxPromptChars = 8000

// truncateForPrompt cuts text to maxPromptChars bytes on a rune boundary.
func truncateForPrompt(text string) string {
	if len(text) <= maxPromptChars {
		return text
	}
	cut := maxPromptChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// ParseMetadata decodes a model reply, tolerating markdown code fences and
// prose around the JSON object.
func ParseMetadata(reply string) (Metadata, error) {
	content := strings.ReplaceAll(reply, "```json", "")
	content = strings.ReplaceAll(content, "```", "")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Metadata{}, errors.Newf("no JSON object in model reply %q", abbreviate(reply))
	}

	var m Metadata
	if err := json.Unmarshal([]byte(content[start:end+1]), &m); err != nil {
		return Metadata{}, errors.Wrapf(err, "decode metadata from %q", abbreviate(reply))
	}

	m.Title = strings.TrimSpace(m.Title)
	tags := make([]string, 0, len(m.Tags))
	for _, tag := range m.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
		if len(tags) == MaxTags {
			break
		}
	}
	m.Tags = tags
	return m, nil
}

func abbreviate(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

// checkVectors verifies one vector per text, each of the expected dimension.
func checkVectors(vectors [][]float32, texts, dimension int) error {
	if len(vectors) != texts {
		return errors.Newf("count mismatch: got %d vectors, want %d", len(vectors), texts)
	}
	for i, v := range vectors {
		if dimension > 0 && len(v) != dimension {
			return errors.Newf("embedding %d dimension mismatch: got %d, want %d", i, len(v), dimension)
		}
	}
	return nil
}
