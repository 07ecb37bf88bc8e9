package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/databridge/internal/adapters/httppolling"
	"github.com/ghalamif/databridge/internal/adapters/sink"
	"github.com/ghalamif/databridge/internal/app/config"
	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
	"github.com/ghalamif/databridge/internal/testutil"
)

type stubSource struct {
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
	errCh    chan error
	// hanging sources block in Start until ctx is done
	hanging chan struct{}
}

func (s *stubSource) Start(ctx context.Context, _ chan<- *domain.Envelope) error {
	if s.hanging != nil {
		close(s.hanging)
		<-ctx.Done()
		return ctx.Err()
	}
	if s.startErr != nil {
		return s.startErr
	}
	s.started.Store(true)
	return nil
}

func (s *stubSource) Stop() error {
	s.stopped.Store(true)
	return nil
}

func (s *stubSource) Err() <-chan error { return s.errCh }

type stubSink struct {
	closed atomic.Bool
}

func (s *stubSink) Name() string                                  { return "stub" }
func (s *stubSink) Write(context.Context, *domain.Envelope) error { return nil }
func (s *stubSink) Close() error {
	s.closed.Store(true)
	return nil
}

type stubFactory struct {
	mu       sync.Mutex
	sources  map[string]*stubSource
	sinks    map[string]*stubSink
	calls    int
	failOn   string
	badStart string
	hangOn   string
	hanging  chan struct{}
}

func newStubFactory() *stubFactory {
	return &stubFactory{sources: map[string]*stubSource{}, sinks: map[string]*stubSink{}}
}

func (f *stubFactory) Source(routeID string, _ config.SourceConfig, _ ports.Policy) (ports.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if routeID == f.failOn {
		return nil, errors.New("cannot build source")
	}
	s := &stubSource{errCh: make(chan error, 1)}
	if routeID == f.badStart {
		s.startErr = errors.New("connection refused")
	}
	if routeID == f.hangOn {
		s.hanging = f.hanging
	}
	f.sources[routeID] = s
	return s, nil
}

func (f *stubFactory) Sink(routeID string, _ config.SinkConfig) (ports.Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &stubSink{}
	f.sinks[routeID] = s
	return s, nil
}

func (f *stubFactory) Transformer(string, []config.TransformerConfig) (ports.Transformer, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Sources: []config.SourceConfig{{
			UniqueID:    "plc",
			Kind:        config.KindHTTPPolling,
			HTTPPolling: &httppolling.Config{ServerURL: "http://plc.local/value"},
		}},
		Sinks: []config.SinkConfig{{
			UniqueID: "twin",
			Kind:     config.KindAAS,
			AAS:      &sink.AASConfig{SubmodelEndpoint: "http://aas.local/submodels/x", IDShortPath: "Temp"},
		}},
		Routes: []config.RouteConfig{
			{RouteID: "first", DataSource: "plc", DataSink: "twin"},
			{RouteID: "second", DataSource: "plc", DataSink: "twin"},
			{RouteID: "third", DataSource: "plc", DataSink: "twin"},
		},
	}
}

func TestRuntimeStartStop(t *testing.T) {
	f := newStubFactory()
	rt := New(testConfig(), f, testutil.NewObs())
	require.Equal(t, StateStopped, rt.State())

	require.NoError(t, rt.Start(context.Background()))
	assert.Equal(t, StateRunning, rt.State())

	routes := rt.Routes()
	require.Len(t, routes, 3)
	for i, id := range []string{"first", "second", "third"} {
		assert.Equal(t, id, routes[i].RouteID)
		assert.Equal(t, domain.RouteRunning, routes[i].State)
	}

	// Each route gets its own source even though all name the same descriptor.
	assert.Len(t, f.sources, 3)

	require.NoError(t, rt.Stop(context.Background()))
	assert.Equal(t, StateStopped, rt.State())
	assert.Empty(t, rt.Routes())
	for id, s := range f.sources {
		assert.True(t, s.stopped.Load(), "source of %s not stopped", id)
		assert.True(t, f.sinks[id].closed.Load(), "sink of %s not closed", id)
	}
}

func TestRuntimeDoubleStartDoesNotDuplicateRoutes(t *testing.T) {
	f := newStubFactory()
	rt := New(testConfig(), f, testutil.NewObs())
	require.NoError(t, rt.Start(context.Background()))
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })

	assert.Equal(t, 3, f.calls)
	assert.Len(t, rt.Routes(), 3)
}

func TestRuntimeStopWhenStoppedIsNoop(t *testing.T) {
	rt := New(testConfig(), newStubFactory(), testutil.NewObs())
	require.NoError(t, rt.Stop(context.Background()))

	require.NoError(t, rt.Start(context.Background()))
	require.NoError(t, rt.Stop(context.Background()))
	require.NoError(t, rt.Stop(context.Background()))
	assert.Equal(t, StateStopped, rt.State())
}

func TestRuntimeRestart(t *testing.T) {
	f := newStubFactory()
	rt := New(testConfig(), f, testutil.NewObs())
	require.NoError(t, rt.Start(context.Background()))
	require.NoError(t, rt.Stop(context.Background()))
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })

	assert.Equal(t, 6, f.calls)
	assert.Len(t, rt.Routes(), 3)
}

func TestRuntimeRollsBackOnStartFailure(t *testing.T) {
	f := newStubFactory()
	f.badStart = "third"
	obs := testutil.NewObs()
	rt := New(testConfig(), f, obs)

	err := rt.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, StateStopped, rt.State())
	assert.Empty(t, rt.Routes())

	for _, id := range []string{"first", "second"} {
		assert.True(t, f.sources[id].stopped.Load(), "route %s left running", id)
		assert.True(t, f.sinks[id].closed.Load())
	}
	assert.True(t, f.sinks["third"].closed.Load())
	assert.Equal(t, float64(0), obs.Gauge(ports.MetricRouteUp, "first"))
}

func TestRuntimeRollsBackOnBuildFailure(t *testing.T) {
	f := newStubFactory()
	f.failOn = "second"
	rt := New(testConfig(), f, testutil.NewObs())

	err := rt.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route second")
	assert.True(t, f.sources["first"].stopped.Load())
	assert.NotContains(t, f.sources, "third")
}

func TestRuntimeRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Routes = append(cfg.Routes, config.RouteConfig{RouteID: "dangling", DataSource: "nope", DataSink: "twin"})
	f := newStubFactory()
	rt := New(cfg, f, testutil.NewObs())

	err := rt.Start(context.Background())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Zero(t, f.calls)
	assert.Equal(t, StateStopped, rt.State())
}

func TestRuntimeFailedRouteDoesNotStopOthers(t *testing.T) {
	f := newStubFactory()
	rt := New(testConfig(), f, testutil.NewObs())
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })

	f.sources["second"].errCh <- errors.New("budget exhausted")
	require.Eventually(t, func() bool { return rt.Routes()[1].State == domain.RouteFailed }, time.Second, 5*time.Millisecond)

	assert.Equal(t, StateRunning, rt.State())
	assert.Equal(t, domain.RouteRunning, rt.Routes()[0].State)
	assert.Equal(t, domain.RouteRunning, rt.Routes()[2].State)
}

func TestRuntimeConcurrentStartStop(t *testing.T) {
	rt := New(testConfig(), newStubFactory(), testutil.NewObs())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = rt.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = rt.Stop(context.Background())
		}()
	}
	wg.Wait()

	require.NoError(t, rt.Stop(context.Background()))
	assert.Equal(t, StateStopped, rt.State())
	assert.Empty(t, rt.Routes())
}

func TestRuntimeStartHonoursCallerDeadline(t *testing.T) {
	f := newStubFactory()
	f.hangOn, f.hanging = "second", make(chan struct{})
	rt := New(testConfig(), f, testutil.NewObs())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	begin := time.Now()
	err := rt.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), time.Second)
	assert.Equal(t, StateStopped, rt.State())
	assert.True(t, f.sources["first"].stopped.Load())
}

func TestRuntimeStopCancelsPendingStart(t *testing.T) {
	f := newStubFactory()
	f.hangOn, f.hanging = "second", make(chan struct{})
	rt := New(testConfig(), f, testutil.NewObs())

	startErr := make(chan error, 1)
	go func() { startErr <- rt.Start(context.Background()) }()
	<-f.hanging

	stopped := make(chan error, 1)
	go func() { stopped <- rt.Stop(context.Background()) }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind a hanging Start")
	}
	require.ErrorIs(t, <-startErr, context.Canceled)

	assert.Equal(t, StateStopped, rt.State())
	assert.Empty(t, rt.Routes())
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.True(t, f.sources["first"].stopped.Load())
	assert.True(t, f.sinks["second"].closed.Load())
	assert.NotContains(t, f.sources, "third")
}
