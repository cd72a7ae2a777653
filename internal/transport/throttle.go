package transport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// throttled limits the send rate of the wrapped transport to stay inside
// provider quotas
type throttled struct {
	next    Transport
	limiter *rate.Limiter
}

// Throttle wraps t with a token bucket of rps sends per second. A
// non-positive rps returns t unchanged.
func Throttle(t Transport, rps float64, burst int) Transport {
	if rps <= 0 {
		return t
	}
	if burst < 1 {
		burst = 1
	}
	return &throttled{next: t, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *throttled) Send(ctx context.Context, msg Message) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return t.next.Send(ctx, msg)
}
