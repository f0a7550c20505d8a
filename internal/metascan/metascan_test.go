package metascan

import (
	"reflect"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

// mustParse parses an HTML string for tests.
func mustParse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("failed to parse html: %v", err)
	}
	return doc
}

// TestParseDirectives tests normalization of content tokens.
func TestParseDirectives(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		content  string
		expected []string
	}{
		{"single", "noai", []string{"noai"}},
		{"mixed case with spaces", " NoAI , NoImageAI ", []string{"noai", "noimageai"}},
		{"empty tokens dropped", "noindex,,nofollow, ", []string{"noindex", "nofollow"}},
		{"empty string", "", []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseDirectives(tc.content)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("got %v, expected %v", got, tc.expected)
			}
		})
	}
}

// TestCaseInsensitiveMatching verifies that differently formatted contents
// yield the same flags.
func TestCaseInsensitiveMatching(t *testing.T) {
	t.Parallel()

	a := FlagsFromContents([]string{"NoAI, NoImageAI"})
	b := FlagsFromContents([]string{"noai,noimageai"})
	if a != b {
		t.Errorf("expected identical flags, got %+v and %+v", a, b)
	}
	if !a.NoAI || !a.NoImageAI {
		t.Errorf("expected both flags, got %+v", a)
	}
}

// TestScan tests directive detection over whole documents.
func TestScan(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		html     string
		expected Flags
	}{
		{
			name:     "noai only",
			html:     `<html><head><meta name="robots" content="noai"></head></html>`,
			expected: Flags{NoAI: true},
		},
		{
			name: "two tags are unioned",
			html: `<html><head>
				<meta name="robots" content="noimageai">
				<meta name="robots" content="noai, noimageai">
			</head></html>`,
			expected: Flags{NoAI: true, NoImageAI: true},
		},
		{
			name:     "name is case-insensitive",
			html:     `<meta name="ROBOTS" content="noimageai">`,
			expected: Flags{NoImageAI: true},
		},
		{
			name:     "other meta names are ignored",
			html:     `<meta name="googlebot" content="noai"><meta name="description" content="noimageai">`,
			expected: Flags{},
		},
		{
			name:     "substring tokens do not match",
			html:     `<meta name="robots" content="noaix, xnoimageai">`,
			expected: Flags{},
		},
		{
			name:     "robots tag in body still counts",
			html:     `<html><body><div><meta name="robots" content="noai"></div></body></html>`,
			expected: Flags{NoAI: true},
		},
		{
			name:     "no tags",
			html:     `<html><head><title>plain</title></head></html>`,
			expected: Flags{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Scan(mustParse(t, tc.html))
			if got != tc.expected {
				t.Errorf("got %+v, expected %+v", got, tc.expected)
			}
		})
	}
}

// TestScanReader tests scanning from a reader.
func TestScanReader(t *testing.T) {
	t.Parallel()

	flags, err := ScanReader(strings.NewReader(`<meta name="robots" content="noai">`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flags.NoAI || flags.NoImageAI {
		t.Errorf("unexpected flags %+v", flags)
	}
	if !flags.Any() {
		t.Error("expected Any to be true")
	}
}

// TestRobotsContents tests document-order extraction.
func TestRobotsContents(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<meta name="robots" content="a"><meta name="robots"><meta name="Robots" content="b">`)
	got := RobotsContents(doc)
	expected := []string{"a", "b"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("got %v, expected %v", got, expected)
	}

	if RobotsContents(nil) != nil {
		t.Error("expected nil for nil node")
	}
}
