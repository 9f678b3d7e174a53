package flow

import (
	"time"

	"github.com/pulseflow/pulseflow/flow/emit"
)

// Defaults applied by NewEngine when an option is left at its zero value.
const (
	// DefaultMaxSteps bounds node transitions per execution. It exists to
	// terminate cyclic graphs, not to limit honest work.
	DefaultMaxSteps = 10000

	// DefaultStepTimeout is the deadline for a single node step.
	DefaultStepTimeout = 5 * time.Second

	// DefaultMaxConcurrent is the trigger worker pool size.
	DefaultMaxConcurrent = 8
)

// Options configures engine behavior. Zero values select the defaults
// above.
type Options struct {
	// MaxSteps caps node transitions per execution. Exceeding it fails the
	// execution with "step limit exceeded".
	MaxSteps int

	// StepTimeout is the per-step deadline. Exceeding it fails the
	// execution with "step timeout".
	StepTimeout time.Duration

	// MaxConcurrent bounds the worker pool that serves trigger events.
	MaxConcurrent int
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine := flow.NewEngine(
//	    flow.WithMaxSteps(500),
//	    flow.WithStepTimeout(2*time.Second),
//	    flow.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
type Option func(*engineConfig)

type engineConfig struct {
	opts    Options
	emitter emit.Emitter
	metrics *PrometheusMetrics
	history ExecutionHistory
}

// WithMaxSteps caps node transitions per execution.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) { cfg.opts.MaxSteps = n }
}

// WithStepTimeout sets the per-step deadline.
func WithStepTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) { cfg.opts.StepTimeout = d }
}

// WithMaxConcurrent sets the trigger worker pool size.
func WithMaxConcurrent(n int) Option {
	return func(cfg *engineConfig) { cfg.opts.MaxConcurrent = n }
}

// WithEmitter routes engine events to the given emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) { cfg.emitter = e }
}

// WithMetrics attaches prometheus collectors to the engine.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) { cfg.metrics = m }
}

// WithHistory persists every node transition to the given history store.
func WithHistory(h ExecutionHistory) Option {
	return func(cfg *engineConfig) { cfg.history = h }
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = DefaultStepTimeout
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	return o
}
