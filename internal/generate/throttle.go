package generate

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled limits the rate of calls reaching the wrapped generator.
type Throttled struct {
	next    Generator
	limiter *rate.Limiter
}

// NewThrottled allows perSecond calls per second with the given burst.
// A non-positive perSecond disables limiting.
func NewThrottled(next Generator, perSecond float64, burst int) *Throttled {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Throttled) Generate(ctx context.Context, req Request) (Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("wait for generation slot: %w", err)
	}
	return t.next.Generate(ctx, req)
}
