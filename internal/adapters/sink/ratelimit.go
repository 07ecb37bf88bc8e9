package sink

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

// RateLimited holds writes to the wrapped sink under a fixed rate.
type RateLimited struct {
	inner   ports.Sink
	limiter *rate.Limiter
}

// WithRateLimit returns s unchanged when perSecond is not positive.
func WithRateLimit(s ports.Sink, perSecond float64) ports.Sink {
	if perSecond <= 0 {
		return s
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: s, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) Write(ctx context.Context, env *domain.Envelope) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.Write(ctx, env)
}

func (r *RateLimited) Close() error { return r.inner.Close() }

var _ ports.Sink = (*RateLimited)(nil)
