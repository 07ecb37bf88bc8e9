package domain

import "time"

// RouteState is the supervision state of one live route.
type RouteState string

const (
	RouteStarting RouteState = "starting"
	RouteRunning  RouteState = "running"
	RouteDegraded RouteState = "degraded"
	RouteFailed   RouteState = "failed"
	RouteStopped  RouteState = "stopped"
)

// RouteStatus is a point-in-time snapshot of a live route.
type RouteStatus struct {
	RouteID      string     `json:"route_id"`
	State        RouteState `json:"state"`
	Received     uint64     `json:"received"`
	Delivered    uint64     `json:"delivered"`
	Dropped      uint64     `json:"dropped"`
	LastError    string     `json:"last_error,omitempty"`
	LastDelivery time.Time  `json:"last_delivery,omitempty"`
}
