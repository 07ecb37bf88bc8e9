package databridge

import (
	"github.com/ghalamif/databridge/internal/app/bridge"
	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// Envelope is the unit of data flowing through a route.
type Envelope = domain.Envelope

// RouteStatus is a point-in-time snapshot of one live route.
type RouteStatus = domain.RouteStatus

type RouteState = domain.RouteState

const (
	RouteStarting = domain.RouteStarting
	RouteRunning  = domain.RouteRunning
	RouteDegraded = domain.RouteDegraded
	RouteFailed   = domain.RouteFailed
	RouteStopped  = domain.RouteStopped
)

// State is the lifecycle state of the whole bridge.
type State = bridge.State

const (
	StateStopped  = bridge.StateStopped
	StateStarting = bridge.StateStarting
	StateRunning  = bridge.StateRunning
	StateStopping = bridge.StateStopping
)

// Sink receives one envelope per call. Implement it to deliver to systems
// the bridge has no adapter for.
type Sink = ports.Sink

// Transformer maps one envelope to another.
type Transformer = ports.Transformer

// Observability receives logs and metrics from every route.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field
