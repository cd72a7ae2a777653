// Package transport delivers rendered messages to SMS and email providers.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// ErrUnsupportedChannel is returned when no transport is registered for a channel
var ErrUnsupportedChannel = errors.New("unsupported channel")

// Message is one rendered outbound message
type Message struct {
	Channel models.Channel
	To      string
	Subject string
	Body    string
}

// Transport hands a message to a provider and returns the provider's message
// id, which may be empty when the provider does not issue one
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Router dispatches each message to the transport registered for its channel
type Router struct {
	routes map[models.Channel]Transport
}

// NewRouter creates a router from a channel to transport map
func NewRouter(routes map[models.Channel]Transport) *Router {
	r := &Router{routes: make(map[models.Channel]Transport, len(routes))}
	for ch, t := range routes {
		if t != nil {
			r.routes[ch] = t
		}
	}
	return r
}

// Send implements Transport
func (r *Router) Send(ctx context.Context, msg Message) (string, error) {
	t, ok := r.routes[msg.Channel]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, msg.Channel)
	}
	return t.Send(ctx, msg)
}
