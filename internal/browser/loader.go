package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/protectmyart/internal/page"
)

// ErrPageNotFound is returned by StaticLoader for unknown URLs.
var ErrPageNotFound = errors.New("page not found")

// Loader loads the document of a URL.
type Loader interface {
	Load(ctx context.Context, url string) (*page.Document, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, url string) (*page.Document, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, url string) (*page.Document, error) {
	return f(ctx, url)
}

// StaticLoader serves page source from memory, keyed by URL.
type StaticLoader map[string]string

// Load parses the source registered for url.
func (l StaticLoader) Load(_ context.Context, url string) (*page.Document, error) {
	source, ok := l[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, url)
	}
	return page.ParseString(url, source)
}
