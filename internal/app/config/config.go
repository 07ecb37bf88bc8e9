// Package config loads and validates the Routes Configuration: the source,
// sink and transformer descriptors plus the routes that bind them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/databridge/internal/adapters/httppolling"
	"github.com/ghalamif/databridge/internal/adapters/natsource"
	"github.com/ghalamif/databridge/internal/adapters/opcua"
	"github.com/ghalamif/databridge/internal/adapters/sink"
	"github.com/ghalamif/databridge/internal/adapters/snmp"
	"github.com/ghalamif/databridge/internal/adapters/transform"
	"github.com/ghalamif/databridge/internal/ports"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid routes configuration")

const (
	KindHTTPPolling = "httppolling"
	KindSNMP        = "snmp"
	KindOPCUA       = "opcua"
	KindNATS        = "nats"

	KindAAS       = "aas"
	KindTimescale = "timescale"

	KindJSONata     = "jsonata"
	KindJSONJackson = "jsonjackson"
)

const (
	BufferBlock = ports.BufferBlock
	BufferDrop  = ports.BufferDrop
)

type Config struct {
	Policy       ports.Policy        `yaml:"policy"`
	Sources      []SourceConfig      `yaml:"sources"`
	Sinks        []SinkConfig        `yaml:"sinks"`
	Transformers []TransformerConfig `yaml:"transformers"`
	Routes       []RouteConfig       `yaml:"routes"`
	Metrics      MetricsConfig       `yaml:"metrics"`
	Logging      LoggingConfig       `yaml:"logging"`
}

type SourceConfig struct {
	UniqueID    string              `yaml:"unique_id"`
	Kind        string              `yaml:"kind"`
	HTTPPolling *httppolling.Config `yaml:"httppolling,omitempty"`
	SNMP        *snmp.Config        `yaml:"snmp,omitempty"`
	OPCUA       *opcua.Config       `yaml:"opcua,omitempty"`
	NATS        *natsource.Config   `yaml:"nats,omitempty"`
}

type SinkConfig struct {
	UniqueID  string                `yaml:"unique_id"`
	Kind      string                `yaml:"kind"`
	AAS       *sink.AASConfig       `yaml:"aas,omitempty"`
	Timescale *sink.TimescaleConfig `yaml:"timescale,omitempty"`
}

type TransformerConfig struct {
	UniqueID string                   `yaml:"unique_id"`
	Kind     string                   `yaml:"kind"`
	JSONata  *transform.JSONataConfig `yaml:"jsonata,omitempty"`
}

// RouteConfig binds one source, zero or more transformers, and one sink.
// Policy, when set, overrides the global policy field by field.
type RouteConfig struct {
	RouteID      string        `yaml:"route_id"`
	DataSource   string        `yaml:"datasource"`
	Transformers []string      `yaml:"transformers"`
	DataSink     string        `yaml:"datasink"`
	Policy       *ports.Policy `yaml:"policy,omitempty"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes, defaults and validates a YAML document. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	ApplyPolicyDefaults(&c.Policy)
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	for i := range c.Sources {
		if d := c.Sources[i].defaulter(); d != nil {
			d.ApplyDefaults()
		}
	}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		switch {
		case s.AAS != nil:
			s.AAS.ApplyDefaults()
		case s.Timescale != nil:
			s.Timescale.ApplyDefaults()
		}
	}
}

// ApplyPolicyDefaults fills every zero field of p.
func ApplyPolicyDefaults(p *ports.Policy) {
	if p.BufferSize == 0 {
		p.BufferSize = 64
	}
	if p.OnBufferFull == "" {
		p.OnBufferFull = BufferBlock
	}
	retryDefaults(&p.Delivery, 3, 200*time.Millisecond, 5*time.Second)
	retryDefaults(&p.Reconnect, 10, time.Second, 30*time.Second)
	if p.KeepAlive.Interval == 0 {
		p.KeepAlive.Interval = 10 * time.Second
	}
	if p.KeepAlive.Timeout == 0 {
		p.KeepAlive.Timeout = 5 * time.Second
	}
	if p.KeepAlive.MaxMissed == 0 {
		p.KeepAlive.MaxMissed = 3
	}
	if p.PollFailureThreshold == 0 {
		p.PollFailureThreshold = 5
	}
	if p.StopTimeout == 0 {
		p.StopTimeout = 10 * time.Second
	}
}

func retryDefaults(r *ports.RetryPolicy, retries int, initial, max time.Duration) {
	if r.MaxRetries == 0 {
		r.MaxRetries = retries
	}
	if r.InitialInterval == 0 {
		r.InitialInterval = initial
	}
	if r.MaxInterval == 0 {
		r.MaxInterval = max
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2
	}
}

// RoutePolicy returns the effective policy of a route: the route's own
// non-zero fields over the global policy.
func (c *Config) RoutePolicy(r RouteConfig) ports.Policy {
	p := c.Policy
	if r.Policy == nil {
		return p
	}
	o := r.Policy
	if o.BufferSize != 0 {
		p.BufferSize = o.BufferSize
	}
	if o.OnBufferFull != "" {
		p.OnBufferFull = o.OnBufferFull
	}
	mergeRetry(&p.Delivery, o.Delivery)
	mergeRetry(&p.Reconnect, o.Reconnect)
	if o.KeepAlive.Interval != 0 {
		p.KeepAlive.Interval = o.KeepAlive.Interval
	}
	if o.KeepAlive.Timeout != 0 {
		p.KeepAlive.Timeout = o.KeepAlive.Timeout
	}
	if o.KeepAlive.MaxMissed != 0 {
		p.KeepAlive.MaxMissed = o.KeepAlive.MaxMissed
	}
	if o.PollFailureThreshold != 0 {
		p.PollFailureThreshold = o.PollFailureThreshold
	}
	if o.StopTimeout != 0 {
		p.StopTimeout = o.StopTimeout
	}
	return p
}

func mergeRetry(dst *ports.RetryPolicy, o ports.RetryPolicy) {
	if o.MaxRetries != 0 {
		dst.MaxRetries = o.MaxRetries
	}
	if o.InitialInterval != 0 {
		dst.InitialInterval = o.InitialInterval
	}
	if o.MaxInterval != 0 {
		dst.MaxInterval = o.MaxInterval
	}
	if o.Multiplier != 0 {
		dst.Multiplier = o.Multiplier
	}
}

// Source looks up a source descriptor by unique id.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.UniqueID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

func (c *Config) Sink(id string) (SinkConfig, bool) {
	for _, s := range c.Sinks {
		if s.UniqueID == id {
			return s, true
		}
	}
	return SinkConfig{}, false
}

func (c *Config) Transformer(id string) (TransformerConfig, bool) {
	for _, t := range c.Transformers {
		if t.UniqueID == id {
			return t, true
		}
	}
	return TransformerConfig{}, false
}

type defaulter interface {
	ApplyDefaults()
	Validate() error
	ConnectionURI() string
}

func (s *SourceConfig) defaulter() defaulter {
	switch s.Kind {
	case KindHTTPPolling:
		if s.HTTPPolling != nil {
			return s.HTTPPolling
		}
	case KindSNMP:
		if s.SNMP != nil {
			return s.SNMP
		}
	case KindOPCUA:
		if s.OPCUA != nil {
			return s.OPCUA
		}
	case KindNATS:
		if s.NATS != nil {
			return s.NATS
		}
	}
	return nil
}

// Descriptor returns the kind-specific block, or nil when it is missing.
func (s *SourceConfig) Descriptor() ports.Descriptor {
	if d := s.defaulter(); d != nil {
		return d
	}
	return nil
}

func (s *SinkConfig) Descriptor() ports.Descriptor {
	switch {
	case s.Kind == KindAAS && s.AAS != nil:
		return s.AAS
	case s.Kind == KindTimescale && s.Timescale != nil:
		return s.Timescale
	}
	return nil
}
