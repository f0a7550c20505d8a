package metascan

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/protectmyart/internal/model"
)

// robotsName is the meta name attribute value that carries directives.
const robotsName = "robots"

// Flags holds the opt-out directives found on a page.
type Flags struct {
	// NoAI is true when any robots tag contains "noai".
	NoAI bool

	// NoImageAI is true when any robots tag contains "noimageai".
	NoImageAI bool
}

// Any reports whether at least one directive was found.
func (f Flags) Any() bool {
	return f.NoAI || f.NoImageAI
}

// ParseDirectives splits a robots content attribute into normalized tokens.
// Empty tokens are dropped.
func ParseDirectives(content string) []string {
	parts := strings.Split(strings.ToLower(content), ",")
	directives := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			directives = append(directives, p)
		}
	}
	return directives
}

// FlagsFromContents computes the union of directives over several robots
// content attributes.
func FlagsFromContents(contents []string) Flags {
	var f Flags
	for _, content := range contents {
		for _, d := range ParseDirectives(content) {
			switch d {
			case model.DirectiveNoAI:
				f.NoAI = true
			case model.DirectiveNoImageAI:
				f.NoImageAI = true
			}
		}
	}
	return f
}

// Scan walks the node tree and reports the directives declared by its
// robots meta tags.
func Scan(doc *html.Node) Flags {
	return FlagsFromContents(RobotsContents(doc))
}

// ScanReader parses HTML from r and scans it.
func ScanReader(r io.Reader) (Flags, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Flags{}, err
	}
	return Scan(doc), nil
}

// RobotsContents returns the content attribute of every robots meta tag
// under n, in document order. Tags without a content attribute are skipped.
func RobotsContents(n *html.Node) []string {
	var contents []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if IsRobotsMeta(n) {
			if content, ok := Attr(n, "content"); ok && content != "" {
				contents = append(contents, content)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return contents
}

// IsMeta reports whether n is a <meta> element.
func IsMeta(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && (n.DataAtom == atom.Meta || strings.EqualFold(n.Data, "meta"))
}

// IsRobotsMeta reports whether n is a <meta name="robots"> element.
// The name comparison is case-insensitive.
func IsRobotsMeta(n *html.Node) bool {
	if !IsMeta(n) {
		return false
	}
	name, ok := Attr(n, "name")
	return ok && strings.EqualFold(strings.TrimSpace(name), robotsName)
}

// Attr retrieves an attribute value from an HTML node. Attribute keys are
// compared case-insensitively.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
