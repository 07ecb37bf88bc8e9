// Package polling implements the interval-driven source adapter shared by all
// request/response endpoints (HTTP, SNMP, ...).
package polling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/databridge/internal/app/retry"
	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// ErrBudgetExhausted is reported on Err when the reader could not be reopened.
var ErrBudgetExhausted = errors.New("polling: reconnect budget exhausted")

// Config controls one polling loop.
type Config struct {
	RouteID       string
	SourceID      string
	Interval      time.Duration
	Timeout       time.Duration
	EmitUnchanged bool

	// FailureThreshold consecutive failed reads trigger a reopen of the reader.
	FailureThreshold int
	Reconnect        ports.RetryPolicy
}

type Source struct {
	cfg    Config
	reader ports.Reader
	obs    ports.Observability

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	errCh        chan error
	reconnecting atomic.Bool

	last    any
	hasLast bool
	forget  atomic.Bool
}

func NewSource(cfg Config, reader ports.Reader, obs ports.Observability) (*Source, error) {
	if reader == nil {
		return nil, fmt.Errorf("polling %s: reader is required", cfg.SourceID)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("polling %s: interval must be > 0", cfg.SourceID)
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	return &Source{
		cfg:    cfg,
		reader: reader,
		obs:    obs,
		errCh:  make(chan error, 1),
	}, nil
}

func (s *Source) Start(ctx context.Context, out chan<- *domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("polling %s: already started", s.cfg.SourceID)
	}

	if err := s.reader.Open(ctx); err != nil {
		return fmt.Errorf("polling %s: open: %w", s.cfg.SourceID, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.loop(runCtx, out)
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
	return s.reader.Close()
}

func (s *Source) Err() <-chan error { return s.errCh }

func (s *Source) Reconnecting() bool { return s.reconnecting.Load() }

// Forget re-arms change detection: the next successful read is emitted even
// if it equals the last emitted value.
func (s *Source) Forget() { s.forget.Store(true) }

func (s *Source) loop(ctx context.Context, out chan<- *domain.Envelope) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		if ok := s.poll(ctx, out); ok {
			failures = 0
		} else if ctx.Err() == nil {
			failures++
			if failures >= s.cfg.FailureThreshold {
				if err := s.reopen(ctx); err != nil {
					if ctx.Err() == nil {
						s.fail(err)
					}
					return
				}
				failures = 0
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll performs one read and reports whether it succeeded.
func (s *Source) poll(ctx context.Context, out chan<- *domain.Envelope) bool {
	readCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	val, err := s.reader.Read(readCtx)
	if err != nil {
		if ctx.Err() == nil {
			s.obs.LogError("poll_failed", err, ports.F("source", s.cfg.SourceID))
		}
		return false
	}

	if s.forget.Swap(false) {
		s.hasLast = false
	}
	if !s.cfg.EmitUnchanged && s.hasLast && sameValue(s.last, val) {
		return true
	}
	s.last, s.hasLast = val, true

	env := &domain.Envelope{
		SourceID:  s.cfg.SourceID,
		Timestamp: time.Now(),
		Payload:   val,
	}
	select {
	case <-ctx.Done():
	case out <- env:
	}
	return true
}

func (s *Source) reopen(ctx context.Context) error {
	s.reconnecting.Store(true)
	defer s.reconnecting.Store(false)

	_ = s.reader.Close()
	err := retry.Do(ctx, s.cfg.Reconnect, func() error {
		return s.reader.Open(ctx)
	}, func(err error, wait time.Duration) {
		s.obs.LogError("poll_reopen_failed", err,
			ports.F("source", s.cfg.SourceID),
			ports.F("retry_in", wait.String()))
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBudgetExhausted, s.cfg.SourceID, err)
	}
	s.obs.IncCounter(ports.MetricReconnects, s.cfg.RouteID, 1)
	s.obs.LogInfo("poll_reopened", ports.F("source", s.cfg.SourceID))
	return nil
}

func (s *Source) fail(err error) {
	s.obs.LogCritical("poll_source_failed", err, ports.F("source", s.cfg.SourceID))
	select {
	case s.errCh <- err:
	default:
	}
}

func sameValue(a, b any) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok && bok {
		return bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

var (
	_ ports.Source    = (*Source)(nil)
	_ ports.Forgetter = (*Source)(nil)
)
