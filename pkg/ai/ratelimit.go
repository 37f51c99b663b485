package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/matzehuels/imfgraph/pkg/errors"
)

// RateLimited spaces requests to a generator.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewRateLimited allows at most perMinute requests per minute through to g.
// A perMinute <= 0 disables limiting and returns g unchanged.
func NewRateLimited(g Generator, perMinute int) Generator {
	if perMinute <= 0 {
		return g
	}
	return &RateLimited{
		next:    g,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Generate waits for a token, then delegates.
func (r *RateLimited) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRateLimited, err, "waiting for generator slot")
	}
	return r.next.Generate(ctx, prompt, opts...)
}
