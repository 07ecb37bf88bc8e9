package databridge

import (
	"github.com/ghalamif/databridge/internal/adapters/httppolling"
	"github.com/ghalamif/databridge/internal/adapters/natsource"
	"github.com/ghalamif/databridge/internal/adapters/opcua"
	"github.com/ghalamif/databridge/internal/adapters/sink"
	"github.com/ghalamif/databridge/internal/adapters/snmp"
	"github.com/ghalamif/databridge/internal/adapters/transform"
	"github.com/ghalamif/databridge/internal/app/config"
	"github.com/ghalamif/databridge/internal/ports"
)

// Config re-exports the Routes Configuration so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy holds buffering, retry and keep-alive settings.
	Policy          = ports.Policy
	RetryPolicy     = ports.RetryPolicy
	KeepAlivePolicy = ports.KeepAlivePolicy

	SourceConfig      = config.SourceConfig
	SinkConfig        = config.SinkConfig
	TransformerConfig = config.TransformerConfig
	RouteConfig       = config.RouteConfig
	MetricsConfig     = config.MetricsConfig
	LoggingConfig     = config.LoggingConfig

	HTTPPollingConfig = httppolling.Config
	SNMPConfig        = snmp.Config
	OPCUAConfig       = opcua.Config
	OPCUANodeConfig   = opcua.NodeConfig
	NATSConfig        = natsource.Config
	AASConfig         = sink.AASConfig
	TimescaleConfig   = sink.TimescaleConfig
	JSONataConfig     = transform.JSONataConfig
)

// Descriptor kinds accepted in SourceConfig, SinkConfig and TransformerConfig.
const (
	KindHTTPPolling = config.KindHTTPPolling
	KindSNMP        = config.KindSNMP
	KindOPCUA       = config.KindOPCUA
	KindNATS        = config.KindNATS
	KindAAS         = config.KindAAS
	KindTimescale   = config.KindTimescale
	KindJSONata     = config.KindJSONata
	KindJSONJackson = config.KindJSONJackson
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = config.ErrInvalidConfig

// LoadConfig loads, defaults and validates YAML from disk.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
