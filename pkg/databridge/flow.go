package databridge

import (
	"context"
	"fmt"
)

// Flow is a convenience builder: load a routes file, attach in-process
// consumers, run.
type Flow struct {
	cfg  *Config
	opts []Option
}

// Conf loads YAML from disk and returns a Flow builder.
func Conf(path string, opts ...Option) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...Option) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	f.Options(opts...)
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a Bridge.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw Option values to the builder.
func (f *Flow) Options(opts ...Option) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
	return f
}

// Callback delivers everything addressed to sinkID to fn instead of the configured sink.
func (f *Flow) Callback(sinkID string, fn EnvelopeHandler) *Flow {
	return f.Options(WithSinkFactory(sinkID, func(routeID string) Sink {
		return NewCallbackSink(routeID, fn)
	}))
}

// Sink delivers everything addressed to sinkID to s, typically a channel sink.
// The caller owns s.
func (f *Flow) Sink(sinkID string, s Sink) *Flow {
	return f.Options(WithSink(sinkID, s))
}

// Bridge builds a Bridge ready to Start.
func (f *Flow) Bridge() (*Bridge, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	return New(f.cfg, f.opts...)
}

// Run is a shortcut for Bridge + Bridge.Run.
func (f *Flow) Run(ctx context.Context) error {
	b, err := f.Bridge()
	if err != nil {
		return err
	}
	return b.Run(ctx)
}
