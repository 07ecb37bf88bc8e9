package subscription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
	"github.com/ghalamif/databridge/internal/testutil"
)

type fakeSession struct {
	pingErr func() error
	closed  atomic.Bool
	pings   atomic.Int64
}

func (s *fakeSession) Ping(context.Context) error {
	s.pings.Add(1)
	if s.pingErr != nil {
		return s.pingErr()
	}
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	emits    []func(*domain.Envelope)
	next     func(n int) (*fakeSession, error)
}

func (d *fakeDialer) Dial(_ context.Context, emit func(*domain.Envelope)) (ports.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sess, err := d.next(len(d.sessions))
	if err != nil {
		return nil, err
	}
	d.sessions = append(d.sessions, sess)
	d.emits = append(d.emits, emit)
	return sess, nil
}

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}

func (d *fakeDialer) emit(i int) func(*domain.Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emits[i]
}

func testConfig() Config {
	return Config{
		RouteID:  "route-1",
		SourceID: "opcua-1",
		KeepAlive: ports.KeepAlivePolicy{
			Interval:  time.Millisecond,
			Timeout:   time.Millisecond,
			MaxMissed: 3,
		},
		Reconnect: ports.RetryPolicy{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
		},
	}
}

func TestIdleSubscriptionStaysConnected(t *testing.T) {
	dialer := &fakeDialer{next: func(int) (*fakeSession, error) { return &fakeSession{}, nil }}
	obs := testutil.NewObs()
	src, err := NewSource(testConfig(), dialer, obs)
	require.NoError(t, err)

	require.NoError(t, src.Start(context.Background(), make(chan *domain.Envelope, 1)))

	// No value notifications at all, many keep-alive periods.
	require.Eventually(t, func() bool {
		return dialer.session(0).pings.Load() >= 50
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, src.Stop())

	assert.Equal(t, int64(1), src.Dials())
	assert.False(t, src.LastKeepAlive().IsZero())
	assert.Zero(t, obs.Counter(ports.MetricReconnects, "route-1"))
	assert.True(t, dialer.session(0).closed.Load())
}

func TestKeepAliveFailureTriggersReconnect(t *testing.T) {
	dialer := &fakeDialer{next: func(n int) (*fakeSession, error) {
		if n == 0 {
			return &fakeSession{pingErr: func() error { return errors.New("bad secure channel") }}, nil
		}
		return &fakeSession{}, nil
	}}
	obs := testutil.NewObs()
	src, err := NewSource(testConfig(), dialer, obs)
	require.NoError(t, err)

	out := make(chan *domain.Envelope, 4)
	require.NoError(t, src.Start(context.Background(), out))

	require.Eventually(t, func() bool { return src.Dials() == 2 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return obs.Counter(ports.MetricReconnects, "route-1") == 1
	}, 5*time.Second, time.Millisecond)

	assert.True(t, dialer.session(0).closed.Load())
	assert.GreaterOrEqual(t, dialer.session(0).pings.Load(), int64(3))

	dialer.emit(1)(&domain.Envelope{Payload: "after-reconnect"})
	env := <-out
	assert.Equal(t, "after-reconnect", env.Payload)
	assert.Equal(t, "opcua-1", env.SourceID)
	assert.False(t, env.Timestamp.IsZero())

	require.NoError(t, src.Stop())
}

func TestIntermittentPingFailureBelowThresholdKeepsSession(t *testing.T) {
	var calls atomic.Int64
	dialer := &fakeDialer{next: func(int) (*fakeSession, error) {
		return &fakeSession{pingErr: func() error {
			if calls.Add(1)%3 == 0 {
				return errors.New("slow pong")
			}
			return nil
		}}, nil
	}}
	src, err := NewSource(testConfig(), dialer, testutil.NewObs())
	require.NoError(t, err)

	require.NoError(t, src.Start(context.Background(), make(chan *domain.Envelope, 1)))
	require.Eventually(t, func() bool { return calls.Load() >= 30 }, 5*time.Second, time.Millisecond)
	require.NoError(t, src.Stop())

	assert.Equal(t, int64(1), src.Dials())
}

func TestExhaustedReconnectBudgetIsReported(t *testing.T) {
	dialer := &fakeDialer{next: func(n int) (*fakeSession, error) {
		if n == 0 {
			return &fakeSession{pingErr: func() error { return errors.New("gone") }}, nil
		}
		return nil, errors.New("connection refused")
	}}
	obs := testutil.NewObs()
	src, err := NewSource(testConfig(), dialer, obs)
	require.NoError(t, err)

	require.NoError(t, src.Start(context.Background(), make(chan *domain.Envelope, 1)))

	select {
	case err := <-src.Err():
		require.ErrorIs(t, err, ErrBudgetExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("expected terminal error")
	}
	require.NoError(t, src.Stop())
	assert.Len(t, obs.Critical(), 1)
}

func TestStartFailsWhenInitialDialFails(t *testing.T) {
	dialer := &fakeDialer{next: func(int) (*fakeSession, error) { return nil, errors.New("no route to host") }}
	src, err := NewSource(testConfig(), dialer, testutil.NewObs())
	require.NoError(t, err)

	require.Error(t, src.Start(context.Background(), make(chan *domain.Envelope)))
	require.NoError(t, src.Stop())
}

func TestEmitPreservesOrder(t *testing.T) {
	dialer := &fakeDialer{next: func(int) (*fakeSession, error) { return &fakeSession{}, nil }}
	src, err := NewSource(testConfig(), dialer, testutil.NewObs())
	require.NoError(t, err)

	out := make(chan *domain.Envelope, 16)
	require.NoError(t, src.Start(context.Background(), out))
	defer src.Stop()

	emit := dialer.emit(0)
	for i := 0; i < 10; i++ {
		emit(&domain.Envelope{Payload: i})
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, i, (<-out).Payload)
	}
}

func TestNewSourceRequiresKeepAlive(t *testing.T) {
	_, err := NewSource(Config{SourceID: "x"}, &fakeDialer{}, testutil.NewObs())
	require.Error(t, err)
}

type hangingDialer struct{}

func (hangingDialer) Dial(ctx context.Context, _ func(*domain.Envelope)) (ports.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStartHonoursCallerDeadline(t *testing.T) {
	src, err := NewSource(testConfig(), hangingDialer{}, testutil.NewObs())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	begin := time.Now()
	err = src.Start(ctx, make(chan *domain.Envelope))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), time.Second)
}

func TestSessionOutlivesStartContext(t *testing.T) {
	dialer := &fakeDialer{next: func(int) (*fakeSession, error) { return &fakeSession{}, nil }}
	src, err := NewSource(testConfig(), dialer, testutil.NewObs())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *domain.Envelope, 1)
	require.NoError(t, src.Start(ctx, out))
	defer src.Stop()
	cancel()

	pings := dialer.session(0).pings.Load()
	require.Eventually(t, func() bool {
		return dialer.session(0).pings.Load() > pings+5
	}, time.Second, time.Millisecond)

	dialer.emit(0)(&domain.Envelope{Payload: "after"})
	select {
	case env := <-out:
		assert.Equal(t, "after", env.Payload)
	case <-time.After(time.Second):
		t.Fatal("emit stopped with the start context")
	}
	assert.Equal(t, int64(1), src.Dials())
}
