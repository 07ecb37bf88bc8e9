package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

type PromObs struct {
	logger   *zap.Logger
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	histos   map[string]*prometheus.HistogramVec
	dropped  *prometheus.CounterVec
}

// NewPromObs registers the bridge metrics on reg. A nil reg falls back to the
// default registerer and a nil logger discards logs.
func NewPromObs(reg prometheus.Registerer, logger *zap.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricReceived,
		Help: "Envelopes accepted from a route's source.",
	}, []string{"route"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricDelivered,
		Help: "Envelopes acknowledged by a route's sink.",
	}, []string{"route"})
	reconnects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricReconnects,
		Help: "Source reconnect attempts.",
	}, []string{"route"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricDropped,
		Help: "Envelopes abandoned, by stage.",
	}, []string{"route", "stage"})
	up := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ports.MetricRouteUp,
		Help: "1 while the route is running, 0 otherwise.",
	}, []string{"route"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    ports.MetricSinkLatency,
		Help:    "Time from envelope receipt to sink acknowledgement.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"route"})

	reg.MustRegister(received, delivered, reconnects, dropped, up, latency)

	return &PromObs{
		logger: logger,
		counters: map[string]*prometheus.CounterVec{
			ports.MetricReceived:   received,
			ports.MetricDelivered:  delivered,
			ports.MetricReconnects: reconnects,
		},
		gauges: map[string]*prometheus.GaugeVec{
			ports.MetricRouteUp: up,
		},
		histos: map[string]*prometheus.HistogramVec{
			ports.MetricSinkLatency: latency,
		},
		dropped: dropped,
	}
}

func (p *PromObs) Logger() *zap.Logger { return p.logger }

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

// LogCritical logs at DPanic: it panics in development loggers only.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.DPanic(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) IncCounter(name, route string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.WithLabelValues(route).Add(v)
	}
}

func (p *PromObs) ObserveLatency(name, route string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.WithLabelValues(route).Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name, route string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.WithLabelValues(route).Set(v)
	}
}

func (p *PromObs) RecordDrop(stage string, env *domain.Envelope, err error) {
	route := ""
	fields := []zap.Field{zap.String("stage", stage), zap.Error(err)}
	if env != nil {
		route = env.RouteID
		fields = append(fields,
			zap.String("route", env.RouteID),
			zap.String("envelope", env.ID),
			zap.Uint64("seq", env.Seq),
		)
	}
	p.dropped.WithLabelValues(route, stage).Inc()
	p.logger.Warn("envelope dropped", fields...)
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
