package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
)

var _ ports.Pacer = (*TokenBucketPacer)(nil)

// TokenBucketPacer spaces requests to the service under test with a token
// bucket. A nil limiter lets every request through.
type TokenBucketPacer struct {
	limiter *rate.Limiter
}

// NewTokenBucketPacer allows perSecond requests with the given burst.
// A perSecond of zero or less disables pacing.
func NewTokenBucketPacer(perSecond float64, burst int) *TokenBucketPacer {
	if perSecond <= 0 {
		return &TokenBucketPacer{}
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketPacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (p *TokenBucketPacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// Enabled reports whether requests are paced at all.
func (p *TokenBucketPacer) Enabled() bool { return p.limiter != nil }
