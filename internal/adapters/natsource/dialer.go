// Package natsource subscribes to a NATS subject and forwards every message
// body as a raw envelope payload.
package natsource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

type Dialer struct {
	cfg      Config
	sourceID string
	obs      ports.Observability
}

func NewDialer(sourceID string, cfg Config, obs ports.Observability) (*Dialer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{cfg: cfg, sourceID: sourceID, obs: obs}, nil
}

func (d *Dialer) Dial(ctx context.Context, emit func(*domain.Envelope)) (ports.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(d.cfg.ConnectionURI(), d.options()...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	sess := &session{
		conn:   nc,
		msgs:   make(chan *nats.Msg, d.cfg.PendingMsgs),
		done:   make(chan struct{}),
		source: d.sourceID,
	}

	var sub *nats.Subscription
	if d.cfg.Queue != "" {
		sub, err = nc.ChanQueueSubscribe(d.cfg.Subject, d.cfg.Queue, sess.msgs)
	} else {
		sub, err = nc.ChanSubscribe(d.cfg.Subject, sess.msgs)
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %q: %w", d.cfg.Subject, err)
	}
	sess.sub = sub

	if err := nc.FlushTimeout(d.cfg.ConnectTimeout); err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	sess.wg.Add(1)
	go sess.consume(emit)
	return sess, nil
}

func (d *Dialer) options() []nats.Option {
	opts := []nats.Option{
		nats.Name(d.cfg.ClientName),
		nats.Timeout(d.cfg.ConnectTimeout),
		nats.PingInterval(d.cfg.PingInterval),
		nats.MaxPingsOutstanding(d.cfg.MaxPingsOutstanding),
		// reconnection is driven by the keep-alive watchdog
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				d.obs.LogError("nats_disconnected", err, ports.F("source", d.sourceID))
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			d.obs.LogError("nats_async_error", err, ports.F("source", d.sourceID))
		}),
	}
	if d.cfg.Username != "" {
		opts = append(opts, nats.UserInfo(d.cfg.Username, d.cfg.Password))
	}
	return opts
}

type session struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	done   chan struct{}
	wg     sync.WaitGroup
	source string

	closeOnce sync.Once
	closeErr  error
}

// Ping round-trips a PING/PONG with the server.
func (s *session) Ping(ctx context.Context) error {
	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	return s.conn.FlushTimeout(timeout)
}

func (s *session) Close(context.Context) error {
	s.closeOnce.Do(func() {
		if s.sub != nil {
			if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
				s.closeErr = err
			}
		}
		s.conn.Close()
		close(s.done)
		s.wg.Wait()
	})
	return s.closeErr
}

func (s *session) consume(emit func(*domain.Envelope)) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.msgs:
			if msg == nil {
				continue
			}
			emit(&domain.Envelope{
				SourceID:  s.source,
				Timestamp: time.Now(),
				Payload:   msg.Data,
			})
		}
	}
}

var _ ports.Dialer = (*Dialer)(nil)
