package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/xiaot623/gogo/streamer/internal/domain"
)

// SSETransport writes each event as a "data: <json>" frame followed by a
// blank line, flushing after every frame when the writer supports it.
type SSETransport struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
}

// NewSSETransport wraps w.
func NewSSETransport(w io.Writer) *SSETransport {
	t := &SSETransport{w: w}
	if f, ok := w.(http.Flusher); ok {
		t.flusher = f
	}
	return t
}

// Send writes one frame. It fails with ErrTransportClosed once the transport
// is closed, ctx is done or the write fails.
func (t *SSETransport) Send(ctx context.Context, ev domain.WireEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || ctx.Err() != nil {
		return ErrTransportClosed
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		t.closed = true
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	if t.flusher != nil {
		t.flusher.Flush()
	}
	return nil
}

// Close marks the transport closed. The underlying writer is owned by the caller.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Tee sends every event to a primary transport and mirrors it to observers.
// Observer errors are ignored; only the primary decides the outcome.
type Tee struct {
	primary   Transport
	observers []func(domain.WireEvent)
}

// NewTee creates a Tee.
func NewTee(primary Transport, observers ...func(domain.WireEvent)) *Tee {
	return &Tee{primary: primary, observers: observers}
}

// Send implements Transport.
func (t *Tee) Send(ctx context.Context, ev domain.WireEvent) error {
	if err := t.primary.Send(ctx, ev); err != nil {
		return err
	}
	for _, observe := range t.observers {
		observe(ev)
	}
	return nil
}

// Close implements Transport.
func (t *Tee) Close() error {
	return t.primary.Close()
}
