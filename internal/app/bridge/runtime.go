// Package bridge owns the set of live routes and starts and stops them as a unit.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/databridge/internal/app/config"
	"github.com/ghalamif/databridge/internal/app/pipeline"
	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// ErrRuntimeStopping is returned by Start while a Stop is in progress.
var ErrRuntimeStopping = errors.New("runtime is stopping")

// Runtime is the route runtime. A runtime is either fully running or stopped;
// a failed start leaves no route live.
type Runtime struct {
	cfg     *config.Config
	factory Factory
	obs     ports.Observability

	// opMu serializes Start and Stop.
	opMu sync.Mutex

	mu     sync.RWMutex
	state  State
	routes []*pipeline.Route
	// cancelStart aborts a Start in progress.
	cancelStart context.CancelFunc
}

func New(cfg *config.Config, factory Factory, obs ports.Observability) *Runtime {
	if factory == nil {
		factory = &AdapterFactory{Obs: obs}
	}
	if cfg != nil {
		cfg.ApplyDefaults()
	}
	return &Runtime{
		cfg:     cfg,
		factory: factory,
		obs:     obs,
		state:   StateStopped,
	}
}

func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Routes returns a snapshot of every live route, in configuration order.
func (r *Runtime) Routes() []domain.RouteStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RouteStatus, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.Status())
	}
	return out
}

// Start validates the configuration, then builds and starts every route.
// It returns once all routes are running, or after rolling back the ones
// already started. Starting a running runtime is a no-op.
func (r *Runtime) Start(ctx context.Context) error {
	if r.State() == StateStopping {
		return ErrRuntimeStopping
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.State() == StateRunning {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancelStart = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancelStart = nil
		r.mu.Unlock()
	}()

	if r.cfg == nil {
		return fmt.Errorf("%w: no configuration", config.ErrInvalidConfig)
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}

	r.setState(StateStarting)
	started := make([]*pipeline.Route, 0, len(r.cfg.Routes))
	for _, rc := range r.cfg.Routes {
		if err := ctx.Err(); err != nil {
			return r.rollback(started, fmt.Errorf("start: %w", err))
		}
		rt, err := r.build(rc)
		if err != nil {
			return r.rollback(started, err)
		}
		if err := rt.Start(ctx); err != nil {
			return r.rollback(started, err)
		}
		started = append(started, rt)

		r.mu.Lock()
		r.routes = started
		r.mu.Unlock()
	}

	r.setState(StateRunning)
	r.obs.LogInfo("runtime_started", ports.F("routes", len(started)))
	return nil
}

func (r *Runtime) build(rc config.RouteConfig) (*pipeline.Route, error) {
	pol := r.cfg.RoutePolicy(rc)
	src, _ := r.cfg.Source(rc.DataSource)
	snkCfg, _ := r.cfg.Sink(rc.DataSink)

	stages := make([]config.TransformerConfig, 0, len(rc.Transformers))
	for _, id := range rc.Transformers {
		t, _ := r.cfg.Transformer(id)
		stages = append(stages, t)
	}
	tr, err := r.factory.Transformer(rc.RouteID, stages)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", rc.RouteID, err)
	}

	source, err := r.factory.Source(rc.RouteID, src, pol)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", rc.RouteID, err)
	}
	snk, err := r.factory.Sink(rc.RouteID, snkCfg)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", rc.RouteID, err)
	}
	return pipeline.NewRoute(rc.RouteID, source, tr, snk, pol, r.obs), nil
}

// rollback stops routes in reverse start order and reports cause along with
// any shutdown errors.
func (r *Runtime) rollback(started []*pipeline.Route, cause error) error {
	r.obs.LogError("runtime_start_failed", cause, ports.F("started", len(started)))

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Policy.StopTimeout)
	defer cancel()

	errs := []error{cause}
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	r.routes = nil
	r.state = StateStopped
	r.mu.Unlock()
	return errors.Join(errs...)
}

// Stop signals every route to end and waits for all of them, bounded by the
// policy stop timeout and ctx. A Start in progress is cancelled and rolls
// back. Stopping a stopped runtime is a no-op.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.RLock()
	cancelStart := r.cancelStart
	r.mu.RUnlock()
	if cancelStart != nil {
		cancelStart()
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.State() == StateStopped {
		return nil
	}
	r.setState(StateStopping)

	if r.cfg.Policy.StopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Policy.StopTimeout)
		defer cancel()
	}

	r.mu.RLock()
	routes := r.routes
	r.mu.RUnlock()

	errCh := make(chan error, len(routes))
	var wg sync.WaitGroup
	for _, rt := range routes {
		wg.Add(1)
		go func(rt *pipeline.Route) {
			defer wg.Done()
			errCh <- rt.Stop(ctx)
		}(rt)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		if err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	r.routes = nil
	r.state = StateStopped
	r.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		r.obs.LogError("runtime_stop_failed", err)
	} else {
		r.obs.LogInfo("runtime_stopped", ports.F("routes", len(routes)))
	}
	return err
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
