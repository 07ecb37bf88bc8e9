package config

import (
	"errors"
	"fmt"

	"github.com/ghalamif/databridge/internal/ports"
)

// Validate reports every problem at once, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := ValidatePolicy(c.Policy); err != nil {
		add("policy: %w", err)
	}
	if c.Metrics.Addr == "" {
		add("metrics.addr is required")
	}

	ids := map[string]string{}
	claim := func(section, id string) {
		if id == "" {
			add("%s: unique_id is required", section)
			return
		}
		if prev, ok := ids[id]; ok {
			add("%s: unique_id %q already used by %s", section, id, prev)
			return
		}
		ids[id] = section
	}

	sources := map[string]bool{}
	for i := range c.Sources {
		s := &c.Sources[i]
		claim("source", s.UniqueID)
		sources[s.UniqueID] = true
		if err := s.validate(); err != nil {
			add("source %q: %w", s.UniqueID, err)
		}
	}

	sinks := map[string]bool{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		claim("sink", s.UniqueID)
		sinks[s.UniqueID] = true
		if err := s.validate(); err != nil {
			add("sink %q: %w", s.UniqueID, err)
		}
	}

	transformers := map[string]bool{}
	for i := range c.Transformers {
		t := &c.Transformers[i]
		claim("transformer", t.UniqueID)
		transformers[t.UniqueID] = true
		if err := t.validate(); err != nil {
			add("transformer %q: %w", t.UniqueID, err)
		}
	}

	if len(c.Routes) == 0 {
		add("at least one route is required")
	}
	routes := map[string]bool{}
	for _, r := range c.Routes {
		if r.RouteID == "" {
			add("route: route_id is required")
		} else if routes[r.RouteID] {
			add("route %q: duplicate route_id", r.RouteID)
		}
		routes[r.RouteID] = true

		if !sources[r.DataSource] {
			add("route %q: unknown datasource %q", r.RouteID, r.DataSource)
		}
		if !sinks[r.DataSink] {
			add("route %q: unknown datasink %q", r.RouteID, r.DataSink)
		}
		for _, t := range r.Transformers {
			if !transformers[t] {
				add("route %q: unknown transformer %q", r.RouteID, t)
			}
		}
		if r.Policy != nil {
			if err := ValidatePolicy(c.RoutePolicy(r)); err != nil {
				add("route %q policy: %w", r.RouteID, err)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func ValidatePolicy(p ports.Policy) error {
	var errs []error
	if p.BufferSize < 1 {
		errs = append(errs, errors.New("buffer_size must be >= 1"))
	}
	if p.OnBufferFull != BufferBlock && p.OnBufferFull != BufferDrop {
		errs = append(errs, fmt.Errorf("on_buffer_full must be %q or %q", BufferBlock, BufferDrop))
	}
	for name, r := range map[string]ports.RetryPolicy{"delivery": p.Delivery, "reconnect": p.Reconnect} {
		if r.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("%s.max_retries must be >= 0", name))
		}
		if r.InitialInterval <= 0 || r.MaxInterval < r.InitialInterval {
			errs = append(errs, fmt.Errorf("%s: need 0 < initial_interval <= max_interval", name))
		}
		if r.Multiplier < 1 {
			errs = append(errs, fmt.Errorf("%s.multiplier must be >= 1", name))
		}
	}
	if p.KeepAlive.Interval <= 0 || p.KeepAlive.Timeout <= 0 {
		errs = append(errs, errors.New("keepalive interval and timeout must be > 0"))
	}
	if p.KeepAlive.MaxMissed < 1 {
		errs = append(errs, errors.New("keepalive.max_missed must be >= 1"))
	}
	if p.PollFailureThreshold < 1 {
		errs = append(errs, errors.New("poll_failure_threshold must be >= 1"))
	}
	if p.StopTimeout <= 0 {
		errs = append(errs, errors.New("stop_timeout must be > 0"))
	}
	return errors.Join(errs...)
}

func (s *SourceConfig) validate() error {
	switch s.Kind {
	case KindHTTPPolling, KindSNMP, KindOPCUA, KindNATS:
	case "":
		return errors.New("kind is required")
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
	d := s.defaulter()
	if d == nil {
		return fmt.Errorf("missing %q block", s.Kind)
	}
	return d.Validate()
}

func (s *SinkConfig) validate() error {
	switch s.Kind {
	case KindAAS:
		if s.AAS == nil {
			return fmt.Errorf("missing %q block", s.Kind)
		}
		return s.AAS.Validate()
	case KindTimescale:
		if s.Timescale == nil {
			return fmt.Errorf("missing %q block", s.Kind)
		}
		return s.Timescale.Validate()
	case "":
		return errors.New("kind is required")
	default:
		return fmt.Errorf("unknown sink kind %q", s.Kind)
	}
}

func (t *TransformerConfig) validate() error {
	switch t.Kind {
	case KindJSONJackson:
		return nil
	case KindJSONata:
		if t.JSONata == nil {
			return fmt.Errorf("missing %q block", t.Kind)
		}
		return t.JSONata.Validate()
	case "":
		return errors.New("kind is required")
	default:
		return fmt.Errorf("unknown transformer kind %q", t.Kind)
	}
}
