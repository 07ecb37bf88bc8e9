package transform

import (
	"fmt"
	"strings"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// Chain applies stages left to right. If any stage fails the envelope is
// abandoned; no partial result is returned.
type Chain struct {
	stages []ports.Transformer
}

func NewChain(stages ...ports.Transformer) *Chain {
	return &Chain{stages: stages}
}

func (c *Chain) Name() string {
	if len(c.stages) == 0 {
		return "identity"
	}
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return strings.Join(names, "|")
}

func (c *Chain) Len() int { return len(c.stages) }

func (c *Chain) Transform(env *domain.Envelope) (*domain.Envelope, error) {
	cur := env
	for i, stage := range c.stages {
		next, err := stage.Transform(cur)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, stage.Name(), err)
		}
		if next == nil {
			return nil, fmt.Errorf("stage %d (%s): nil envelope", i, stage.Name())
		}
		cur = next
	}
	return cur, nil
}

var _ ports.Transformer = (*Chain)(nil)
