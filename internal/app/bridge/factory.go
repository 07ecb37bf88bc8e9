package bridge

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ghalamif/databridge/internal/adapters/httppolling"
	"github.com/ghalamif/databridge/internal/adapters/natsource"
	"github.com/ghalamif/databridge/internal/adapters/opcua"
	"github.com/ghalamif/databridge/internal/adapters/polling"
	"github.com/ghalamif/databridge/internal/adapters/sink"
	"github.com/ghalamif/databridge/internal/adapters/snmp"
	"github.com/ghalamif/databridge/internal/adapters/subscription"
	"github.com/ghalamif/databridge/internal/adapters/transform"
	"github.com/ghalamif/databridge/internal/app/config"
	"github.com/ghalamif/databridge/internal/ports"
)

// Factory instantiates the adapters of one route. Every call returns fresh
// instances, so two routes never share a connection.
type Factory interface {
	Source(routeID string, src config.SourceConfig, pol ports.Policy) (ports.Source, error)
	Sink(routeID string, snk config.SinkConfig) (ports.Sink, error)
	Transformer(routeID string, stages []config.TransformerConfig) (ports.Transformer, error)
}

// AdapterFactory builds the adapters bundled with the bridge.
type AdapterFactory struct {
	Obs ports.Observability
	// HTTPClient is used by HTTP sources and sinks; nil means a new client per adapter.
	HTTPClient *http.Client
	// SinkOverrides replaces configured sinks by unique id, for in-process consumers.
	SinkOverrides map[string]func(routeID string) ports.Sink
}

var _ Factory = (*AdapterFactory)(nil)

func (f *AdapterFactory) Source(routeID string, src config.SourceConfig, pol ports.Policy) (ports.Source, error) {
	switch src.Kind {
	case config.KindHTTPPolling:
		c := *src.HTTPPolling
		c.ApplyDefaults()
		client := f.HTTPClient
		if client == nil {
			client = &http.Client{}
		}
		reader, err := httppolling.NewReader(c.ConnectionURI(), c.Headers, client)
		if err != nil {
			return nil, err
		}
		return polling.NewSource(f.pollingConfig(routeID, src.UniqueID, c.Interval, c.Timeout, c.EmitUnchanged, pol), reader, f.Obs)

	case config.KindSNMP:
		c := *src.SNMP
		c.ApplyDefaults()
		return polling.NewSource(f.pollingConfig(routeID, src.UniqueID, c.Interval, c.Timeout, c.EmitUnchanged, pol), snmp.NewReader(c), f.Obs)

	case config.KindOPCUA:
		c := *src.OPCUA
		c.ApplyDefaults()
		d, err := opcua.NewDialer(src.UniqueID, c, f.Obs)
		if err != nil {
			return nil, err
		}
		return subscription.NewSource(f.subscriptionConfig(routeID, src.UniqueID, pol), d, f.Obs)

	case config.KindNATS:
		c := *src.NATS
		c.ApplyDefaults()
		d, err := natsource.NewDialer(src.UniqueID, c, f.Obs)
		if err != nil {
			return nil, err
		}
		return subscription.NewSource(f.subscriptionConfig(routeID, src.UniqueID, pol), d, f.Obs)
	}
	return nil, fmt.Errorf("source %s: unsupported kind %q", src.UniqueID, src.Kind)
}

func (f *AdapterFactory) pollingConfig(routeID, sourceID string, interval, timeout time.Duration, emitUnchanged bool, pol ports.Policy) polling.Config {
	return polling.Config{
		RouteID:          routeID,
		SourceID:         sourceID,
		Interval:         interval,
		Timeout:          timeout,
		EmitUnchanged:    emitUnchanged,
		FailureThreshold: pol.PollFailureThreshold,
		Reconnect:        pol.Reconnect,
	}
}

func (f *AdapterFactory) subscriptionConfig(routeID, sourceID string, pol ports.Policy) subscription.Config {
	return subscription.Config{
		RouteID:   routeID,
		SourceID:  sourceID,
		KeepAlive: pol.KeepAlive,
		Reconnect: pol.Reconnect,
	}
}

func (f *AdapterFactory) Sink(routeID string, snk config.SinkConfig) (ports.Sink, error) {
	if build, ok := f.SinkOverrides[snk.UniqueID]; ok {
		return build(routeID), nil
	}

	switch snk.Kind {
	case config.KindAAS:
		c := *snk.AAS
		s, err := sink.NewAASSink(c, f.HTTPClient)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", snk.UniqueID, err)
		}
		return sink.WithRateLimit(s, c.MaxWritesPerSecond), nil

	case config.KindTimescale:
		c := *snk.Timescale
		s, err := sink.OpenTimescale(c)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", snk.UniqueID, err)
		}
		return sink.WithRateLimit(s, c.MaxWritesPerSecond), nil
	}
	return nil, fmt.Errorf("sink %s: unsupported kind %q", snk.UniqueID, snk.Kind)
}

func (f *AdapterFactory) Transformer(routeID string, stages []config.TransformerConfig) (ports.Transformer, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	built := make([]ports.Transformer, 0, len(stages))
	for _, t := range stages {
		switch t.Kind {
		case config.KindJSONJackson:
			built = append(built, transform.NewJSONJackson(t.UniqueID))
		case config.KindJSONata:
			j, err := transform.NewJSONata(t.UniqueID, *t.JSONata)
			if err != nil {
				return nil, err
			}
			built = append(built, j)
		default:
			return nil, fmt.Errorf("transformer %s: unsupported kind %q", t.UniqueID, t.Kind)
		}
	}
	return transform.NewChain(built...), nil
}
