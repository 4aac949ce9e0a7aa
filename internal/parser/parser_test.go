package parser

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtract_Scenario(t *testing.T) {
	m := Extract("Hello #work and #draft")
	if m.WordCount != 4 {
		t.Errorf("word count = %d, want 4", m.WordCount)
	}
	if !reflect.DeepEqual(m.Tags, []string{"work", "draft"}) {
		t.Errorf("tags = %v, want [work draft]", m.Tags)
	}
	if m.Excerpt != "Hello #work and #draft" {
		t.Errorf("excerpt = %q", m.Excerpt)
	}
}

func TestExtract_Empty(t *testing.T) {
	for _, in := range []string{"", "   \n\t\n", "# \n##\n"} {
		m := Extract(in)
		if len(m.Tags) != 0 || m.Excerpt != "" {
			t.Errorf("Extract(%q) = %+v, want empty", in, m)
		}
	}
	if Extract("").WordCount != 0 {
		t.Error("empty text should have zero words")
	}
}

func TestWordCount(t *testing.T) {
	cases := map[string]int{
		"one":                  1,
		"  one   two\tthree\n": 3,
		"a\n\nb":               2,
		"# Heading\nbody text": 4,
	}
	for in, want := range cases {
		if got := Extract(in).WordCount; got != want {
			t.Errorf("WordCount(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestExtractTags_NormalisedAndDeduplicated(t *testing.T) {
	body := "Start #Go, then #go again; #Rust! and #work-in-progress."
	got := extractTags(body, nil)
	want := []string{"go", "rust", "work-in-progress"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestExtractTags_IgnoresHeadingsAndAnchors(t *testing.T) {
	body := "# Title\n## Sub\nsee http://example.com/#anchor and a#b\n#real"
	got := extractTags(body, nil)
	if !reflect.DeepEqual(got, []string{"real"}) {
		t.Errorf("tags = %v, want [real]", got)
	}
}

func TestExtractTags_Unicode(t *testing.T) {
	got := extractTags("Заметка #Проект и #ÉTÉ", nil)
	want := []string{"проект", "été"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{
		"tags": []any{"Alpha", "#beta"},
	}
	got := extractTags("Some text #gamma and #alpha again.", fm)
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestExtract_FrontmatterTagsAndTitle(t *testing.T) {
	input := "---\ntitle: Hello\ntags:\n  - go\n---\n# Heading\nBody #quire text.\n"
	m := Extract(input)
	if m.Title != "Hello" {
		t.Errorf("title = %q, want Hello", m.Title)
	}
	if !reflect.DeepEqual(m.Tags, []string{"go", "quire"}) {
		t.Errorf("tags = %v", m.Tags)
	}
	if m.Excerpt != "Body #quire text." {
		t.Errorf("excerpt = %q", m.Excerpt)
	}
}

func TestExtract_InvalidYAMLFallback(t *testing.T) {
	m := Extract("---\n: invalid: yaml: {{{\n---\nBody\n")
	// Invalid YAML is treated as body, so the first line is content.
	if m.Excerpt == "" {
		t.Error("expected non-empty excerpt on invalid frontmatter")
	}
}

func TestNormalizeTag(t *testing.T) {
	cases := map[string]string{
		"#Work": "work",
		"work.": "work",
		"a/b/":  "a/b",
		"  X  ": "x",
		"#":     "",
		"_":     "",
		"c++":   "c",
		"v1.2":  "v1.2",
		"ÉTÉ!":  "été",
		"ΣΟΦΊΑ": "σοφία",
	}
	for in, want := range cases {
		if got := NormalizeTag(in); got != want {
			t.Errorf("NormalizeTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExcerpt_SkipsHeadingsAndTakesFirstParagraph(t *testing.T) {
	body := "# Title\n\n## Sub\nfirst line\nsecond   line\n\nnext paragraph"
	if got := excerpt(body, 150); got != "first line second line" {
		t.Errorf("excerpt = %q", got)
	}
}

func TestExcerpt_TruncatesAtWordBoundary(t *testing.T) {
	body := strings.Repeat("word ", 50)
	got := excerpt(body, 22)
	if got != "word word word word…" {
		t.Errorf("excerpt = %q", got)
	}
	if utf8.RuneCountInString(strings.TrimSuffix(got, "…")) > 22 {
		t.Error("excerpt exceeds budget")
	}
}

func TestExcerpt_CutOnWordBoundaryKeepsWord(t *testing.T) {
	if got := truncate("aaa bbb ccc", 7); got != "aaa bbb…" {
		t.Errorf("truncate = %q, want %q", got, "aaa bbb…")
	}
	if got := truncate("aaa bbb ccc", 6); got != "aaa…" {
		t.Errorf("truncate = %q, want %q", got, "aaa…")
	}
}

func TestExcerpt_NoMarkerWhenNotCut(t *testing.T) {
	if got := excerpt("short text", 150); got != "short text" {
		t.Errorf("excerpt = %q", got)
	}
}

func TestExcerpt_LongSingleWord(t *testing.T) {
	got := excerpt(strings.Repeat("x", 30), 10)
	if got != strings.Repeat("x", 10)+"…" {
		t.Errorf("excerpt = %q", got)
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := deriveTitle(map[string]any{"title": "FM"}, "# H1"); got != "FM" {
		t.Errorf("frontmatter should win, got %q", got)
	}
	if got := deriveTitle(nil, "intro\n# H1\n"); got != "H1" {
		t.Errorf("H1 should win over first line, got %q", got)
	}
	if got := deriveTitle(nil, "\n  plain first line\nmore"); got != "plain first line" {
		t.Errorf("first line fallback, got %q", got)
	}
	if got := deriveTitle(nil, ""); got != "" {
		t.Errorf("empty body title = %q", got)
	}
}

func TestIsHeading(t *testing.T) {
	for line, want := range map[string]bool{
		"# a":       true,
		"###### a":  true,
		"#":         true,
		"####### a": false,
		"#tag":      false,
		"text":      false,
	} {
		if got := isHeading(line); got != want {
			t.Errorf("isHeading(%q) = %v, want %v", line, got, want)
		}
	}
}
