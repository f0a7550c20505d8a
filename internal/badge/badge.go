// Package badge renders the per-context protection indicator.
//
// The store calls a Renderer whenever a context's protection changes in a way
// the user should see: after every scan report, when navigation starts and
// when the context is activated. Rendering failures are the renderer's own
// business; callers log and continue.
package badge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nao1215/protectmyart/internal/model"
)

// Badge texts and colors.
const (
	ProtectedText    = "✓"
	ProtectedColor   = "#4CAF50"
	UnprotectedText  = "✗"
	UnprotectedColor = "#F44336"
)

// Badge is the indicator shown for one context.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// For returns the badge for a protection value.
func For(protected bool) Badge {
	if protected {
		return Badge{Text: ProtectedText, Color: ProtectedColor}
	}
	return Badge{Text: UnprotectedText, Color: UnprotectedColor}
}

// Renderer draws the badge of a context.
type Renderer interface {
	Render(ctx context.Context, id model.ContextID, protected bool) error
}

// Forgetter is implemented by renderers that keep per-context state. The
// store calls Forget once a context is closed or its record is swept.
type Forgetter interface {
	Forget(id model.ContextID)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, id model.ContextID, protected bool) error

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, id model.ContextID, protected bool) error {
	return f(ctx, id, protected)
}

// Multi renders to every renderer in order and joins their errors.
type Multi []Renderer

// Render calls Render on every renderer.
func (m Multi) Render(ctx context.Context, id model.ContextID, protected bool) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(ctx, id, protected); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forget calls Forget on every renderer that implements Forgetter.
func (m Multi) Forget(id model.ContextID) {
	for _, r := range m {
		if f, ok := r.(Forgetter); ok {
			f.Forget(id)
		}
	}
}

// LogRenderer writes badge changes to a logger at debug level.
type LogRenderer struct {
	logger *slog.Logger
}

// NewLogRenderer creates a LogRenderer. A nil logger uses slog.Default().
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRenderer{logger: logger}
}

// Render logs the badge for id.
func (r *LogRenderer) Render(ctx context.Context, id model.ContextID, protected bool) error {
	b := For(protected)
	r.logger.DebugContext(ctx, "badge updated", "context", id, "text", b.Text, "color", b.Color)
	return nil
}

// Recorder keeps the current badge of every context in memory.
type Recorder struct {
	mu      sync.RWMutex
	badges  map[model.ContextID]Badge
	renders int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{badges: make(map[model.ContextID]Badge)}
}

// Render stores the badge for id.
func (r *Recorder) Render(_ context.Context, id model.ContextID, protected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.badges[id] = For(protected)
	r.renders++
	return nil
}

// Badge returns the last badge rendered for id.
func (r *Recorder) Badge(id model.ContextID) (Badge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.badges[id]
	return b, ok
}

// Len returns the number of contexts with a badge.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.badges)
}

// Renders returns how many times Render was called.
func (r *Recorder) Renders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.renders
}

// Forget drops the badge of id.
func (r *Recorder) Forget(id model.ContextID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.badges, id)
}
