package databridge

import (
	base "github.com/ghalamif/databridge/pkg/databridge"
)

// Re-exported errors for convenience.
var (
	ErrInvalidConfig     = base.ErrInvalidConfig
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/databridge directly.
type (
	Config            = base.Config
	Policy            = base.Policy
	RetryPolicy       = base.RetryPolicy
	KeepAlivePolicy   = base.KeepAlivePolicy
	SourceConfig      = base.SourceConfig
	SinkConfig        = base.SinkConfig
	TransformerConfig = base.TransformerConfig
	RouteConfig       = base.RouteConfig
	MetricsConfig     = base.MetricsConfig
	LoggingConfig     = base.LoggingConfig
	HTTPPollingConfig = base.HTTPPollingConfig
	SNMPConfig        = base.SNMPConfig
	OPCUAConfig       = base.OPCUAConfig
	OPCUANodeConfig   = base.OPCUANodeConfig
	NATSConfig        = base.NATSConfig
	AASConfig         = base.AASConfig
	TimescaleConfig   = base.TimescaleConfig
	JSONataConfig     = base.JSONataConfig
	Bridge            = base.Bridge
	Option            = base.Option
	Flow              = base.Flow
	Envelope          = base.Envelope
	EnvelopeHandler   = base.EnvelopeHandler
	RouteStatus       = base.RouteStatus
	RouteState        = base.RouteState
	State             = base.State
	Sink              = base.Sink
	Transformer       = base.Transformer
	Observability     = base.Observability
	Field             = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...Option) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...Option) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

// Bridge and options.
func New(cfg *Config, opts ...Option) (*Bridge, error) {
	return base.New(cfg, opts...)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithSink(sinkID string, s Sink) Option {
	return base.WithSink(sinkID, s)
}

func WithSinkFactory(sinkID string, build func(routeID string) Sink) Option {
	return base.WithSinkFactory(sinkID, build)
}

func WithoutMetricsServer() Option {
	return base.WithoutMetricsServer()
}

// Sink adapters.
func NewCallbackSink(name string, fn EnvelopeHandler) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan Envelope, func()) {
	return base.NewChannelSink(name, buffer)
}
