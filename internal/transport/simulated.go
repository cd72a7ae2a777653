package transport

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// simulatedTransport simulates a provider with a configurable success rate
// and network latency, for load testing and demos
type simulatedTransport struct {
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
}

// NewSimulatedTransport creates a simulated transport
// successRate: probability of success (0.0 to 1.0), default 0.92
func NewSimulatedTransport(successRate float64) Transport {
	if successRate <= 0 || successRate > 1.0 {
		successRate = 0.92
	}

	return &simulatedTransport{
		successRate: successRate,
		minDelay:    50 * time.Millisecond,
		maxDelay:    200 * time.Millisecond,
	}
}

// Send simulates sending a message
func (s *simulatedTransport) Send(ctx context.Context, msg Message) (string, error) {
	delay := s.minDelay + time.Duration(rand.Int63n(int64(s.maxDelay-s.minDelay)))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if rand.Float64() > s.successRate {
		return "", fmt.Errorf("simulated %s provider error", msg.Channel)
	}

	return "sim-" + uuid.NewString(), nil
}
