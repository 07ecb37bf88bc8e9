package ports

import "github.com/ghalamif/databridge/internal/domain"

const (
	MetricReceived    = "databridge_envelopes_received_total"
	MetricDelivered   = "databridge_envelopes_delivered_total"
	MetricDropped     = "databridge_envelopes_dropped_total"
	MetricReconnects  = "databridge_source_reconnects_total"
	MetricSinkLatency = "databridge_sink_latency_seconds"
	MetricRouteUp     = "databridge_route_up"
)

// Drop stages.
const (
	StageBuffer    = "buffer"
	StageTransform = "transform"
	StageSink      = "sink"
)

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name, route string, v float64)
	ObserveLatency(name, route string, seconds float64)

	SetGauge(name, route string, v float64)

	RecordDrop(stage string, env *domain.Envelope, err error)
}

type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}
