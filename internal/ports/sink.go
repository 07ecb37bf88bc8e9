package ports

import (
	"context"

	"github.com/ghalamif/databridge/internal/domain"
)

type Sink interface {
	Write(ctx context.Context, env *domain.Envelope) error
	Name() string
	Close() error
}
