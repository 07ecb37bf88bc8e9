package ports

import "github.com/ghalamif/databridge/internal/domain"

type Transformer interface {
	Transform(*domain.Envelope) (*domain.Envelope, error)
	Name() string
}
