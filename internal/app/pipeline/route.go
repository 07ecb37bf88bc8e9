// Package pipeline runs a live route: envelopes from one source pass through
// the route's transform chain and are delivered, in order, to its sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghalamif/databridge/internal/app/retry"
	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

const TracerName = "databridge/route"

var (
	// ErrSourceExhausted marks a route whose source gave up reconnecting.
	ErrSourceExhausted = errors.New("source retry budget exhausted")
	ErrBufferFull      = errors.New("route buffer full")
)

// statusPoll is how often a reconnecting source is checked for degraded state.
var statusPoll = 100 * time.Millisecond

type item struct {
	env *domain.Envelope
	at  time.Time
}

// Route is one live route. It owns its source and sink exclusively.
type Route struct {
	id     string
	src    ports.Source
	tr     ports.Transformer
	sink   ports.Sink
	pol    ports.Policy
	obs    ports.Observability
	tracer trace.Tracer

	mu           sync.Mutex
	state        domain.RouteState
	lastErr      string
	lastDelivery time.Time
	started      bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	// set while Start is connecting the source
	startCancel context.CancelFunc
	startDone   chan struct{}

	seq       atomic.Uint64
	received  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewRoute wires a route. tr may be nil for a route without transforms.
func NewRoute(id string, src ports.Source, tr ports.Transformer, sink ports.Sink, pol ports.Policy, obs ports.Observability) *Route {
	if pol.BufferSize < 1 {
		pol.BufferSize = 1
	}
	return &Route{
		id:     id,
		src:    src,
		tr:     tr,
		sink:   sink,
		pol:    pol,
		obs:    obs,
		tracer: otel.Tracer(TracerName),
		state:  domain.RouteStopped,
	}
}

func (r *Route) ID() string { return r.id }

// Start connects the source and starts the delivery loop. ctx bounds the
// connect; the route keeps running after ctx is done and only Stop ends it.
// On failure the sink is released.
func (r *Route) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started || r.startDone != nil {
		r.mu.Unlock()
		return nil
	}
	r.state = domain.RouteStarting
	startCtx, startCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.startCancel, r.startDone = startCancel, done
	r.mu.Unlock()

	defer close(done)
	defer startCancel()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	intake := make(chan *domain.Envelope)
	buf := make(chan item, r.pol.BufferSize)

	err := r.src.Start(startCtx, intake)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCancel, r.startDone = nil, nil
	if err != nil {
		cancel()
		r.state = domain.RouteFailed
		r.lastErr = err.Error()
		return errors.Join(fmt.Errorf("route %s: start source: %w", r.id, err), r.sink.Close())
	}

	r.cancel = cancel
	r.started = true
	r.state = domain.RouteRunning

	r.wg.Add(3)
	go r.accept(runCtx, intake, buf)
	go r.deliver(runCtx, buf)
	go r.supervise(runCtx)

	r.obs.SetGauge(ports.MetricRouteUp, r.id, 1)
	r.obs.LogInfo("route_started", ports.F("route", r.id))
	return nil
}

// Stop ends the route and releases its connections. A Start still
// connecting is cancelled first. Envelopes still buffered are discarded.
// ctx bounds the wait for the loops to finish.
func (r *Route) Stop(ctx context.Context) error {
	r.mu.Lock()
	if startCancel, done := r.startCancel, r.startDone; done != nil {
		r.mu.Unlock()
		startCancel()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("route %s: %w", r.id, ctx.Err())
		}
		r.mu.Lock()
	}
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	var errs []error
	if err := r.src.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("route %s: stop source: %w", r.id, err))
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("route %s: %w", r.id, ctx.Err()))
	}

	if err := r.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("route %s: close sink: %w", r.id, err))
	}

	r.mu.Lock()
	r.state = domain.RouteStopped
	r.mu.Unlock()
	r.obs.SetGauge(ports.MetricRouteUp, r.id, 0)
	r.obs.LogInfo("route_stopped", ports.F("route", r.id))
	return errors.Join(errs...)
}

func (r *Route) Status() domain.RouteStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RouteStatus{
		RouteID:      r.id,
		State:        r.state,
		Received:     r.received.Load(),
		Delivered:    r.delivered.Load(),
		Dropped:      r.dropped.Load(),
		LastError:    r.lastErr,
		LastDelivery: r.lastDelivery,
	}
}

// accept stamps envelopes from the source and buffers them per policy.
func (r *Route) accept(ctx context.Context, intake <-chan *domain.Envelope, buf chan<- item) {
	defer r.wg.Done()
	for {
		var env *domain.Envelope
		select {
		case <-ctx.Done():
			return
		case env = <-intake:
		}
		if env == nil {
			continue
		}

		env.ID = uuid.NewString()
		env.RouteID = r.id
		env.Seq = r.seq.Add(1)
		if env.Timestamp.IsZero() {
			env.Timestamp = time.Now()
		}
		r.received.Add(1)
		r.obs.IncCounter(ports.MetricReceived, r.id, 1)

		it := item{env: env, at: time.Now()}
		if r.pol.OnBufferFull == ports.BufferDrop {
			select {
			case buf <- it:
			default:
				r.drop(ports.StageBuffer, env, ErrBufferFull)
			}
			continue
		}
		select {
		case buf <- it:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Route) deliver(ctx context.Context, buf <-chan item) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-buf:
			r.process(ctx, it)
		}
	}
}

func (r *Route) process(ctx context.Context, it item) {
	env := it.env
	if r.tr != nil {
		out, err := r.tr.Transform(env)
		if err != nil {
			r.drop(ports.StageTransform, env, err)
			return
		}
		env = out
	}

	ctx, span := r.tracer.Start(ctx, "route.deliver", trace.WithAttributes(
		attribute.String("databridge.route", r.id),
		attribute.String("databridge.sink", r.sink.Name()),
		attribute.Int64("databridge.seq", int64(env.Seq)),
	))
	defer span.End()

	attempts := 0
	err := retry.Do(ctx, r.pol.Delivery, func() error {
		attempts++
		return r.sink.Write(ctx, env)
	}, func(err error, wait time.Duration) {
		r.obs.LogError("sink_write_retry", err,
			ports.F("route", r.id),
			ports.F("attempt", attempts),
			ports.F("wait", wait.String()),
		)
	})
	span.SetAttributes(attribute.Int("databridge.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		if ctx.Err() != nil {
			return
		}
		r.drop(ports.StageSink, env, err)
		return
	}

	now := time.Now()
	r.delivered.Add(1)
	r.obs.IncCounter(ports.MetricDelivered, r.id, 1)
	r.obs.ObserveLatency(ports.MetricSinkLatency, r.id, now.Sub(it.at).Seconds())

	r.mu.Lock()
	r.lastDelivery = now
	r.mu.Unlock()
}

// supervise tracks the source's connection health.
func (r *Route) supervise(ctx context.Context) {
	defer r.wg.Done()

	rc, _ := r.src.(ports.Reconnecter)
	var tick <-chan time.Time
	if rc != nil {
		t := time.NewTicker(statusPoll)
		defer t.Stop()
		tick = t.C
	}

	errCh := r.src.Err()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			r.fail(err)
			return
		case <-tick:
			r.mu.Lock()
			switch {
			case rc.Reconnecting() && r.state == domain.RouteRunning:
				r.state = domain.RouteDegraded
			case !rc.Reconnecting() && r.state == domain.RouteDegraded:
				r.state = domain.RouteRunning
			}
			r.mu.Unlock()
		}
	}
}

func (r *Route) fail(err error) {
	err = fmt.Errorf("route %s: %w: %w", r.id, ErrSourceExhausted, err)
	r.mu.Lock()
	r.state = domain.RouteFailed
	r.lastErr = err.Error()
	r.mu.Unlock()
	r.obs.SetGauge(ports.MetricRouteUp, r.id, 0)
	r.obs.LogCritical("route_failed", err, ports.F("route", r.id))
}

// drop counts a lost envelope. A buffer or sink drop re-arms change
// detection on the source; a transform drop does not.
func (r *Route) drop(stage string, env *domain.Envelope, err error) {
	if stage != ports.StageTransform {
		if f, ok := r.src.(ports.Forgetter); ok {
			f.Forget()
		}
	}
	r.dropped.Add(1)
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
	r.obs.RecordDrop(stage, env, err)
}
