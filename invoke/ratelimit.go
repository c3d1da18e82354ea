package invoke

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/agentgraph/agentgraph/types"
)

// RateLimited wraps an invoker with a token-bucket limiter so a busy graph
// cannot overrun an agent runtime's request quota. Waiting counts against
// the caller's deadline: if the limiter cannot admit the call in time, the
// invocation fails like any other timeout.
type RateLimited struct {
	inner   Invoker
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a limiter admitting rps requests per
// second with the given burst.
func NewRateLimited(inner Invoker, rps float64, burst int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Invoke implements Invoker.
func (r *RateLimited) Invoke(ctx context.Context, req Request) (*types.AgentResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Invoke(ctx, req)
}
