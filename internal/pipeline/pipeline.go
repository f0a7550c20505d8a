package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/protectmyart/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each receiving the report built so far.
type Step interface {
	// Do executes the step. Non-critical problems should be recorded in
	// the report and return nil.
	Do(ctx context.Context, report *model.InspectionReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps []Step

	// finally runs after the other steps even when one of them failed.
	finally []Step

	logger *slog.Logger

	// continueOnError keeps executing steps after a failure.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The last error is kept in the report.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinally appends a cleanup step. Cleanup steps run after the regular
// steps whatever their outcome, including cancellation.
func (p *Pipeline) AddFinally(steps ...Step) {
	p.finally = append(p.finally, steps...)
}

// Execute runs all steps in sequence, then the cleanup steps. It returns
// the first error when continueOnError is false.
func (p *Pipeline) Execute(ctx context.Context, report *model.InspectionReport) error {
	err := p.run(ctx, report)

	// Cleanup gets its own context so a cancelled inspection still
	// releases what it opened.
	cleanupCtx := context.WithoutCancel(ctx)
	for _, step := range p.finally {
		p.do(cleanupCtx, step, report)
	}

	report.Elapsed = time.Since(report.StartedAt)
	return err
}

func (p *Pipeline) run(ctx context.Context, report *model.InspectionReport) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			report.Error = ctx.Err()
			report.ErrorMessage = ctx.Err().Error()
			return ctx.Err()
		default:
		}

		if err := p.do(ctx, step, report); err != nil && !p.continueOnError {
			return err
		}
	}
	return nil
}

func (p *Pipeline) do(ctx context.Context, step Step, report *model.InspectionReport) error {
	p.logger.Info("executing step",
		"step", step.Name(),
		"url", report.URL,
	)

	err := step.Do(ctx, report)
	if err != nil {
		p.logger.Warn("step failed",
			"step", step.Name(),
			"url", report.URL,
			"error", err,
		)
		report.Error = err
		report.ErrorMessage = err.Error()
	} else {
		p.logger.Debug("step completed",
			"step", step.Name(),
			"url", report.URL,
		)
	}

	report.PerformedSteps = append(report.PerformedSteps, step.Name())
	return err
}

// StepCount returns the number of regular steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order, cleanup
// steps last.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+len(p.finally))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finally {
		names = append(names, step.Name())
	}
	return names
}
