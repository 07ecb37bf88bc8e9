package domain

import "time"

// Envelope is the unit of data moving through a route: one raw or transformed
// payload plus the time the source observed it.
type Envelope struct {
	ID        string    `json:"id"`
	RouteID   string    `json:"route_id"`
	SourceID  string    `json:"source_id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload"`
}

// WithPayload returns a copy of the envelope carrying p. The receiver is left untouched.
func (e *Envelope) WithPayload(p any) *Envelope {
	out := *e
	out.Payload = p
	return &out
}
