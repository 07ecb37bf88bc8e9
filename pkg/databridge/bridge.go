package databridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ghalamif/databridge/internal/adapters/observability"
	"github.com/ghalamif/databridge/internal/app/bridge"
	"github.com/ghalamif/databridge/internal/ports"
)

// Option customizes the dependencies used by a Bridge.
type Option func(*overrides)

type overrides struct {
	observability Observability
	logger        *zap.Logger
	registry      *prometheus.Registry
	httpClient    *http.Client
	sinks         map[string]func(routeID string) Sink
	noMetrics     bool
}

// WithObservability plugs in a custom observability backend. Metrics are then
// not registered with Prometheus.
func WithObservability(obs Observability) Option {
	return func(o *overrides) {
		o.observability = obs
	}
}

// WithLogger replaces the logger built from the logging section of the config.
func WithLogger(l *zap.Logger) Option {
	return func(o *overrides) {
		o.logger = l
	}
}

// WithRegistry registers bridge metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *overrides) {
		o.registry = reg
	}
}

// WithHTTPClient sets the client used by HTTP sources and sinks.
func WithHTTPClient(c *http.Client) Option {
	return func(o *overrides) {
		o.httpClient = c
	}
}

// WithSink routes every route whose datasink is sinkID to s instead of the
// configured adapter. The caller owns s and closes it.
func WithSink(sinkID string, s Sink) Option {
	return WithSinkFactory(sinkID, func(string) Sink { return sharedSink{s} })
}

// WithSinkFactory is WithSink with one sink instance per route.
func WithSinkFactory(sinkID string, build func(routeID string) Sink) Option {
	return func(o *overrides) {
		if o.sinks == nil {
			o.sinks = make(map[string]func(string) Sink)
		}
		o.sinks[sinkID] = build
	}
}

// WithoutMetricsServer keeps Start from listening on the metrics address.
// Handler still serves the same endpoints.
func WithoutMetricsServer() Option {
	return func(o *overrides) {
		o.noMetrics = true
	}
}

// Bridge owns a route runtime plus its logging, metrics and health endpoints.
type Bridge struct {
	cfg      *Config
	runtime  *bridge.Runtime
	obs      ports.Observability
	logger   *zap.Logger
	registry *prometheus.Registry
	handler  http.Handler

	noMetrics  bool
	mu         sync.Mutex
	metricsSrv *http.Server
	metricsLn  net.Listener
}

// New builds a Bridge for cfg. Nothing connects until Start.
func New(cfg *Config, opts ...Option) (*Bridge, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	cfg.ApplyDefaults()
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return nil, err
		}
	}

	reg := o.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	obs := o.observability
	if obs == nil {
		obs = observability.NewPromObs(reg, logger)
	}

	factory := &bridge.AdapterFactory{
		Obs:           obs,
		HTTPClient:    o.httpClient,
		SinkOverrides: o.sinks,
	}

	b := &Bridge{
		cfg:       cfg,
		runtime:   bridge.New(cfg, factory, obs),
		obs:       obs,
		logger:    logger,
		registry:  reg,
		noMetrics: o.noMetrics,
	}
	b.handler = b.newHandler()
	return b, nil
}

// Start validates the configuration and starts every route, then the metrics
// server. If any route fails to start, none is left running.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.runtime.Start(ctx); err != nil {
		return err
	}
	if err := b.startMetrics(); err != nil {
		return errors.Join(err, b.runtime.Stop(context.Background()))
	}
	return nil
}

// Stop stops every route and the metrics server. It is safe to call on a
// stopped bridge.
func (b *Bridge) Stop(ctx context.Context) error {
	var errs []error
	if err := b.runtime.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	b.mu.Lock()
	srv := b.metricsSrv
	b.metricsSrv, b.metricsLn = nil, nil
	b.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	_ = b.logger.Sync()
	return errors.Join(errs...)
}

// Run starts the bridge and blocks until ctx is cancelled, then stops it
// within the configured stop timeout.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), b.cfg.Policy.StopTimeout+time.Second)
	defer cancel()
	return b.Stop(stopCtx)
}

func (b *Bridge) State() State { return b.runtime.State() }

func (b *Bridge) Routes() []RouteStatus { return b.runtime.Routes() }

// Handler serves /metrics, /healthz and /routes.
func (b *Bridge) Handler() http.Handler { return b.handler }

// MetricsAddr is the address the metrics server listens on, empty when not listening.
func (b *Bridge) MetricsAddr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.metricsLn == nil {
		return ""
	}
	return b.metricsLn.Addr().String()
}

// Logger is the logger the bridge writes to.
func (b *Bridge) Logger() *zap.Logger { return b.logger }

func (b *Bridge) newHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{Registry: b.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if b.State() != StateRunning {
			http.Error(w, string(b.State()), http.StatusServiceUnavailable)
			return
		}
		for _, rs := range b.Routes() {
			if rs.State == RouteFailed {
				http.Error(w, "route "+rs.RouteID+" failed", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/routes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			State  State         `json:"state"`
			Routes []RouteStatus `json:"routes"`
		}{b.State(), b.Routes()})
	})
	return mux
}

func (b *Bridge) startMetrics() error {
	if b.noMetrics || b.cfg.Metrics.Addr == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.metricsSrv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", b.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", b.cfg.Metrics.Addr, err)
	}
	srv := &http.Server{
		Handler:           b.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	b.metricsSrv, b.metricsLn = srv, ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.obs.LogError("metrics_server_exited", err)
		}
	}()
	b.obs.LogInfo("metrics_server_listening", ports.F("addr", ln.Addr().String()))
	return nil
}
