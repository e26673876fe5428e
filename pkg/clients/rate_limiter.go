package clients

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing requests.
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
}

// NewRateLimiter returns a token bucket allowing rps requests per second
// with the given burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) RateLimiter {
	if rps <= 0 {
		return unlimited{}
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (unlimited) Allow() bool                    { return true }
