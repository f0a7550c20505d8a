package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/protectmyart/internal/browser"
	"github.com/nao1215/protectmyart/internal/model"
	"github.com/nao1215/protectmyart/internal/session"
	"github.com/nao1215/protectmyart/internal/viewer"
)

var (
	// ErrNotOpened is returned by steps that need a tab when none was opened.
	ErrNotOpened = errors.New("no tab opened for inspection")

	// ErrLoadFailed is returned when the page could not be loaded.
	ErrLoadFailed = errors.New("page load failed")
)

// Step names.
const (
	StepOpen    = "open"
	StepWait    = "wait"
	StepInspect = "inspect"
	StepRefresh = "refresh"
	StepClose   = "close"
	StepSave    = "save"
)

// Env is shared by every inspection of a batch. A viewer always inspects
// the focused tab, so opening and inspecting are serialized.
type Env struct {
	session *session.Session
	focus   sync.Mutex
}

// NewEnv creates an Env on top of a started session.
func NewEnv(s *session.Session) *Env {
	return &Env{session: s}
}

// Session returns the underlying session.
func (e *Env) Session() *session.Session {
	return e.session
}

// Target is the tab one inspection works on. It is filled by OpenStep.
type Target struct {
	Window  browser.WindowID
	Context model.ContextID
}

// OpenStep opens the report URL in a new window.
type OpenStep struct {
	env    *Env
	target *Target
}

// NewOpenStep creates an OpenStep that records the new tab in target.
func NewOpenStep(env *Env, target *Target) *OpenStep {
	return &OpenStep{env: env, target: target}
}

// Name returns the step name.
func (s *OpenStep) Name() string {
	return StepOpen
}

// Do executes the open step.
func (s *OpenStep) Do(ctx context.Context, report *model.InspectionReport) error {
	// Opening a window moves the focus.
	s.env.focus.Lock()
	defer s.env.focus.Unlock()

	b := s.env.session.Browser()
	win, err := b.OpenWindow()
	if err != nil {
		return fmt.Errorf("failed to open window: %w", err)
	}
	id, err := b.Open(ctx, win, report.URL)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", report.URL, err)
	}
	s.target.Window = win
	s.target.Context = id
	report.SessionID = s.env.session.ID()
	report.ContextID = id
	return nil
}

// WaitStep waits until the tab finished loading.
type WaitStep struct {
	env     *Env
	target  *Target
	timeout time.Duration
}

// NewWaitStep creates a WaitStep bounded by timeout.
func NewWaitStep(env *Env, target *Target, timeout time.Duration) *WaitStep {
	return &WaitStep{env: env, target: target, timeout: timeout}
}

// Name returns the step name.
func (s *WaitStep) Name() string {
	return StepWait
}

// Do executes the wait step. A page that failed to load ends the
// inspection as unavailable.
func (s *WaitStep) Do(ctx context.Context, report *model.InspectionReport) error {
	if !s.target.Context.Valid() {
		return ErrNotOpened
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tab, err := s.env.session.Browser().WaitLoaded(ctx, s.target.Context)
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", report.URL, err)
	}
	if tab.LoadError != "" {
		report.Display = model.Display{
			State:  model.DisplayUnavailable,
			URL:    tab.URL,
			Reason: tab.LoadError,
		}
		return fmt.Errorf("%w: %s", ErrLoadFailed, tab.LoadError)
	}
	return nil
}

// InspectStep asks a viewer for the protection status of the tab.
type InspectStep struct {
	env     *Env
	target  *Target
	force   bool
	options []viewer.Option
}

// NewInspectStep creates an InspectStep. With force set the store's cache
// is bypassed, as the viewer's refresh action does.
func NewInspectStep(env *Env, target *Target, force bool, opts ...viewer.Option) *InspectStep {
	return &InspectStep{env: env, target: target, force: force, options: opts}
}

// Name returns the step name.
func (s *InspectStep) Name() string {
	if s.force {
		return StepRefresh
	}
	return StepInspect
}

// Do executes the inspect step.
func (s *InspectStep) Do(ctx context.Context, report *model.InspectionReport) error {
	if !s.target.Context.Valid() {
		return ErrNotOpened
	}

	s.env.focus.Lock()
	defer s.env.focus.Unlock()

	// Activate also focuses the tab's window.
	if err := s.env.session.Browser().Activate(ctx, s.target.Context); err != nil {
		return fmt.Errorf("failed to activate tab: %w", err)
	}

	report.Display = s.env.session.NewViewer(s.options...).Inspect(ctx, s.force)
	report.Refreshed = s.force
	if bg, ok := s.env.session.Badges().Badge(s.target.Context); ok {
		report.Badge = bg.Text
	}
	return nil
}

// CloseStep closes the inspected tab.
type CloseStep struct {
	env    *Env
	target *Target
}

// NewCloseStep creates a CloseStep.
func NewCloseStep(env *Env, target *Target) *CloseStep {
	return &CloseStep{env: env, target: target}
}

// Name returns the step name.
func (s *CloseStep) Name() string {
	return StepClose
}

// Do executes the close step. Nothing is done when no tab was opened.
func (s *CloseStep) Do(ctx context.Context, _ *model.InspectionReport) error {
	if !s.target.Context.Valid() {
		return nil
	}
	if err := s.env.session.Browser().Close(ctx, s.target.Context); err != nil {
		return fmt.Errorf("failed to close tab: %w", err)
	}
	return nil
}

// Saver persists finished inspections.
type Saver interface {
	SaveInspection(ctx context.Context, report *model.InspectionReport) error
}

// SaveStep stores the report in the inspection history.
type SaveStep struct {
	saver  Saver
	logger *slog.Logger
}

// NewSaveStep creates a SaveStep.
func NewSaveStep(saver Saver, logger *slog.Logger) *SaveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveStep{saver: saver, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return StepSave
}

// Do executes the save step. Failures are logged and do not fail the
// inspection.
func (s *SaveStep) Do(ctx context.Context, report *model.InspectionReport) error {
	if err := s.saver.SaveInspection(ctx, report); err != nil {
		s.logger.Warn("failed to save inspection", "url", report.URL, "error", err)
	}
	return nil
}

// InspectionOptions configures NewInspection.
type InspectionOptions struct {
	// LoadTimeout bounds the wait step.
	LoadTimeout time.Duration

	// Refresh adds a forced re-inspection after the first one.
	Refresh bool

	// Saver records the report. Nil disables the save step.
	Saver Saver

	// Logger is used by the pipeline and its steps.
	Logger *slog.Logger

	// ViewerOptions are passed to every viewer.
	ViewerOptions []viewer.Option
}

// NewInspection builds the pipeline for one URL:
// open, wait, inspect, [refresh], then close and [save] as cleanup.
func NewInspection(env *Env, opts InspectionOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	target := &Target{}
	p := New(WithLogger(logger))
	p.AddSteps(
		NewOpenStep(env, target),
		NewWaitStep(env, target, opts.LoadTimeout),
		NewInspectStep(env, target, false, opts.ViewerOptions...),
	)
	if opts.Refresh {
		p.AddStep(NewInspectStep(env, target, true, opts.ViewerOptions...))
	}

	p.AddFinally(NewCloseStep(env, target))
	if opts.Saver != nil {
		p.AddFinally(NewSaveStep(opts.Saver, logger))
	}
	return p
}
