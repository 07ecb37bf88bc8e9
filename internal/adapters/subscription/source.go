// Package subscription implements the push-based source adapter shared by all
// persistent-connection endpoints (OPC UA, NATS, ...). It owns the keep-alive
// watchdog and the reconnect loop; dialers only know how to open a session.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/databridge/internal/app/retry"
	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// ErrBudgetExhausted is reported on Err when no new session could be dialed.
var ErrBudgetExhausted = errors.New("subscription: reconnect budget exhausted")

// ErrKeepAliveLost is the cause of a reconnect triggered by the watchdog.
var ErrKeepAliveLost = errors.New("subscription: keep-alive lost")

type Config struct {
	RouteID   string
	SourceID  string
	KeepAlive ports.KeepAlivePolicy
	Reconnect ports.RetryPolicy
	// CloseTimeout bounds session teardown.
	CloseTimeout time.Duration
}

type Source struct {
	cfg    Config
	dialer ports.Dialer
	obs    ports.Observability

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	errCh        chan error
	reconnecting atomic.Bool
	dials        atomic.Int64
	lastAlive    atomic.Int64
}

func NewSource(cfg Config, dialer ports.Dialer, obs ports.Observability) (*Source, error) {
	if dialer == nil {
		return nil, fmt.Errorf("subscription %s: dialer is required", cfg.SourceID)
	}
	if cfg.KeepAlive.Interval <= 0 {
		return nil, fmt.Errorf("subscription %s: keep-alive interval must be > 0", cfg.SourceID)
	}
	if cfg.KeepAlive.Timeout <= 0 {
		cfg.KeepAlive.Timeout = cfg.KeepAlive.Interval
	}
	if cfg.KeepAlive.MaxMissed <= 0 {
		cfg.KeepAlive.MaxMissed = 1
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	return &Source{
		cfg:    cfg,
		dialer: dialer,
		obs:    obs,
		errCh:  make(chan error, 1),
	}, nil
}

func (s *Source) Start(ctx context.Context, out chan<- *domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("subscription %s: already started", s.cfg.SourceID)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	emit := s.emitter(runCtx, out)

	sess, err := s.dial(ctx, emit)
	if err != nil {
		cancel()
		return fmt.Errorf("subscription %s: dial: %w", s.cfg.SourceID, err)
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.supervise(runCtx, sess, emit)
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
	return nil
}

func (s *Source) Err() <-chan error { return s.errCh }

func (s *Source) Reconnecting() bool { return s.reconnecting.Load() }

// Dials returns how many sessions have been opened so far.
func (s *Source) Dials() int64 { return s.dials.Load() }

// LastKeepAlive is the time of the last successful ping, zero if none yet.
func (s *Source) LastKeepAlive() time.Time {
	ns := s.lastAlive.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Source) emitter(ctx context.Context, out chan<- *domain.Envelope) func(*domain.Envelope) {
	return func(env *domain.Envelope) {
		if env.SourceID == "" {
			env.SourceID = s.cfg.SourceID
		}
		if env.Timestamp.IsZero() {
			env.Timestamp = time.Now()
		}
		select {
		case <-ctx.Done():
		case out <- env:
		}
	}
}

func (s *Source) dial(ctx context.Context, emit func(*domain.Envelope)) (ports.Session, error) {
	sess, err := s.dialer.Dial(ctx, emit)
	if err != nil {
		return nil, err
	}
	s.dials.Add(1)
	return sess, nil
}

func (s *Source) supervise(ctx context.Context, sess ports.Session, emit func(*domain.Envelope)) {
	defer close(s.done)

	for {
		err := s.watch(ctx, sess)
		s.closeSession(sess)
		if ctx.Err() != nil {
			return
		}

		s.obs.LogError("subscription_keepalive_lost", err, ports.F("source", s.cfg.SourceID))
		sess, err = s.redial(ctx, emit)
		if err != nil {
			if ctx.Err() == nil {
				s.fail(err)
			}
			return
		}
	}
}

// watch pings the session until ctx is done or MaxMissed consecutive pings fail.
// Value traffic is irrelevant here; an idle but healthy subscription stays up.
func (s *Source) watch(ctx context.Context, sess ports.Session) error {
	ticker := time.NewTicker(s.cfg.KeepAlive.Interval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, s.cfg.KeepAlive.Timeout)
		err := sess.Ping(pingCtx)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			missed = 0
			s.lastAlive.Store(time.Now().UnixNano())
			continue
		}

		missed++
		s.obs.LogError("subscription_keepalive_missed", err,
			ports.F("source", s.cfg.SourceID),
			ports.F("missed", missed))
		if missed >= s.cfg.KeepAlive.MaxMissed {
			return fmt.Errorf("%w after %d missed pings: %v", ErrKeepAliveLost, missed, err)
		}
	}
}

func (s *Source) redial(ctx context.Context, emit func(*domain.Envelope)) (ports.Session, error) {
	s.reconnecting.Store(true)
	defer s.reconnecting.Store(false)

	var sess ports.Session
	err := retry.Do(ctx, s.cfg.Reconnect, func() error {
		var err error
		sess, err = s.dial(ctx, emit)
		return err
	}, func(err error, wait time.Duration) {
		s.obs.LogError("subscription_redial_failed", err,
			ports.F("source", s.cfg.SourceID),
			ports.F("retry_in", wait.String()))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBudgetExhausted, s.cfg.SourceID, err)
	}

	s.obs.IncCounter(ports.MetricReconnects, s.cfg.RouteID, 1)
	s.obs.LogInfo("subscription_reconnected", ports.F("source", s.cfg.SourceID))
	return sess, nil
}

func (s *Source) closeSession(sess ports.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.obs.LogError("subscription_close_failed", err, ports.F("source", s.cfg.SourceID))
	}
}

func (s *Source) fail(err error) {
	s.obs.LogCritical("subscription_source_failed", err, ports.F("source", s.cfg.SourceID))
	select {
	case s.errCh <- err:
	default:
	}
}

var _ ports.Source = (*Source)(nil)
