package databridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("databridge: channel sink closed")

// EnvelopeHandler is invoked once per delivered envelope, in route order.
type EnvelopeHandler func(ctx context.Context, env Envelope) error

// NewCallbackSink adapts a function into a Sink. A returned error is retried
// under the route's delivery policy.
func NewCallbackSink(name string, fn EnvelopeHandler) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes envelopes via a channel; it returns the sink, the
// read-only channel, and a close function that the caller should invoke
// during shutdown. Route shutdown does not close the channel.
func NewChannelSink(name string, buffer int) (Sink, <-chan Envelope, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Envelope, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   EnvelopeHandler
}

func (s *callbackSink) Write(ctx context.Context, env *Envelope) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if env == nil {
		return nil
	}
	return s.fn(ctx, *env)
}

func (s *callbackSink) Name() string { return s.name }

func (s *callbackSink) Close() error { return nil }

type channelSink struct {
	name   string
	ch     chan Envelope
	closed chan struct{}
	once   sync.Once
	mu     sync.RWMutex
}

func (s *channelSink) Write(ctx context.Context, env *Envelope) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}
	if env == nil {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- *env:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) Close() error { return nil }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

// sharedSink lets one caller-owned sink serve several routes. Route
// shutdown leaves it open.
type sharedSink struct {
	Sink
}

func (sharedSink) Close() error { return nil }
