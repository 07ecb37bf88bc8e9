package ports

import (
	"context"

	"github.com/ghalamif/databridge/internal/domain"
)

// Source produces raw envelopes for exactly one route. Start returns once the
// source is connected and acquiring; ctx bounds only the connect. Acquisition
// continues in the background until Stop is called or the source gives up, in
// which case the terminal error is delivered once on Err.
type Source interface {
	Start(ctx context.Context, out chan<- *domain.Envelope) error
	Stop() error
	Err() <-chan error
}

// Reconnecter is implemented by sources that can report an in-progress reconnect.
type Reconnecter interface {
	Reconnecting() bool
}

// Forgetter is implemented by sources that suppress unchanged values. After
// Forget the next acquired value counts as changed, so a value that never
// reached the sink is offered again.
type Forgetter interface {
	Forget()
}

// Reader performs one synchronous acquisition against a polled endpoint.
type Reader interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (any, error)
	Close() error
}

// Session is one live connection to a push-based endpoint.
type Session interface {
	// Ping round-trips a liveness check that does not depend on value changes.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a Session whose notifications are handed to emit in arrival order.
type Dialer interface {
	Dial(ctx context.Context, emit func(*domain.Envelope)) (Session, error)
}
