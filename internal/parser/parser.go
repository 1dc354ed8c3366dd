// Package parser turns Markdown documents into notes. A document may open
// with YAML frontmatter; its title comes from the frontmatter, the first
// heading, or the first line, in that order.
package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/onyx/internal/models"
)

// maxTitle bounds a title taken from the first line of the body.
const maxTitle = 60

// Document is a parsed Markdown document.
type Document struct {
	Frontmatter map[string]any
	Title       string
	Body        string
}

// Parse splits data into frontmatter and body and derives a title. Invalid
// frontmatter is kept as body.
func Parse(data []byte) *Document {
	fm, body := splitFrontmatter(data)
	return &Document{Frontmatter: fm, Title: deriveTitle(fm, body), Body: body}
}

// Note returns the document as a note draft. The title is left empty when
// none could be derived so the default applies.
func (d *Document) Note() models.Note {
	return models.Note{Title: d.Title, Content: d.Body}
}

// Title derives a title from note content alone.
func Title(content string) string {
	return Parse([]byte(content)).Title
}

func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil, string(data)
	}
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return fm, body
}

func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	first := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if h := strings.TrimLeft(trimmed, "#"); h != trimmed && strings.HasPrefix(h, " ") {
			return strings.TrimSpace(h)
		}
		if first == "" {
			first = trimmed
		}
	}
	return truncate(first, maxTitle)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
