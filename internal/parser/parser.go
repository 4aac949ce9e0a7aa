// Package parser derives tags, word count, title and excerpt from note content.
package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// DefaultExcerptLength is the excerpt budget in runes.
const DefaultExcerptLength = 150

const (
	ellipsis       = "…"
	maxTitleLength = 80
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_][^\s#]*)`)

// Metadata holds everything derived from a content string.
type Metadata struct {
	Title     string
	Excerpt   string
	Tags      []string
	WordCount int
}

// Extract derives metadata from text using the default excerpt budget.
func Extract(text string) Metadata {
	return ExtractWithLimit(text, DefaultExcerptLength)
}

// ExtractWithLimit derives metadata from text with an excerpt budget of
// limit runes. It never fails: malformed or empty input yields empty fields.
func ExtractWithLimit(text string, limit int) Metadata {
	if limit <= 0 {
		limit = DefaultExcerptLength
	}
	fm, body := splitFrontmatter(text)
	return Metadata{
		Title:     deriveTitle(fm, body),
		Excerpt:   excerpt(body, limit),
		Tags:      extractTags(body, fm),
		WordCount: len(strings.Fields(text)),
	}
}

// NormalizeTag case-folds a tag and strips a leading sigil and trailing
// punctuation. It returns "" when nothing usable remains.
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimLeft(tag, "#")
	tag = strings.TrimRightFunc(tag, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if tag == "" {
		return ""
	}
	return cases.Fold().String(tag)
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Without valid frontmatter the entire content is body.
func splitFrontmatter(text string) (map[string]any, string) {
	const delim = "---"
	trimmed := strings.TrimLeft(text, "\n\r")

	if !strings.HasPrefix(trimmed, delim) {
		return nil, text
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil, text
	}

	yamlBlock := rest[:idx]
	body := strings.TrimLeft(rest[idx+1+len(delim):], "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return nil, text
	}
	return fm, body
}

// extractTags collects frontmatter tags first, then inline #tags from body,
// normalised and de-duplicated in first-seen order.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		t := NormalizeTag(raw)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if list, ok := fm["tags"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise the first non-blank line.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	first := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
		if first == "" && trimmed != "" {
			first = trimmed
		}
	}
	return truncate(strings.TrimLeft(first, "# "), maxTitleLength)
}

// excerpt returns the first paragraph of non-heading content, cut to limit
// runes at a word boundary.
func excerpt(body string, limit int) string {
	var para []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isHeading(trimmed) {
			if len(para) > 0 {
				break
			}
			continue
		}
		para = append(para, trimmed)
	}
	if len(para) == 0 {
		return ""
	}
	return truncate(strings.Join(strings.Fields(strings.Join(para, " ")), " "), limit)
}

func isHeading(line string) bool {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return false
	}
	return n == len(line) || line[n] == ' ' || line[n] == '\t'
}

// truncate shortens s to at most limit runes, preferring the last word
// boundary, and appends an ellipsis when anything was cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	cut := string(r[:limit])
	// A cut that lands on whitespace already ends on a whole word.
	if !unicode.IsSpace(r[limit]) {
		if i := strings.LastIndexAny(cut, " \t"); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace) + ellipsis
}
