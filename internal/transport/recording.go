package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrRejected is returned by RecordingTransport for addresses set to fail
var ErrRejected = errors.New("rejected by provider")

// RecordingTransport keeps every message it is asked to send. Addresses
// registered with FailFor are rejected instead.
type RecordingTransport struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]bool
	seq    int
}

// NewRecordingTransport creates an empty recording transport
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{failTo: make(map[string]bool)}
}

// FailFor makes sends to the given address fail until cleared
func (t *RecordingTransport) FailFor(to string, fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failTo[to] = fail
}

// Send implements Transport
func (t *RecordingTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failTo[msg.To] {
		return "", fmt.Errorf("%w: %s", ErrRejected, msg.To)
	}
	t.seq++
	t.sent = append(t.sent, msg)
	return fmt.Sprintf("rec-%d", t.seq), nil
}

// Sent returns a copy of the accepted messages
func (t *RecordingTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.sent))
	copy(out, t.sent)
	return out
}
