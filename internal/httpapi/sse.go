package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"moad/internal/mixture"
)

// SSEPublisher fans orchestration events out to connected /events clients as
// Server-Sent Events. It implements mixture.EventPublisher; Publish never
// blocks the engine, a slow subscriber just loses events.
type SSEPublisher struct {
	mu   sync.Mutex
	subs map[chan mixture.Event]struct{}

	// buffer per subscriber channel
	depth int
}

// NewSSEPublisher builds a publisher with the given per-subscriber buffer.
func NewSSEPublisher(depth int) *SSEPublisher {
	if depth <= 0 {
		depth = 64
	}
	return &SSEPublisher{subs: make(map[chan mixture.Event]struct{}), depth: depth}
}

// Publish delivers the event to every subscriber without blocking.
func (p *SSEPublisher) Publish(ev mixture.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (p *SSEPublisher) subscribe() chan mixture.Event {
	ch := make(chan mixture.Event, p.depth)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

func (p *SSEPublisher) unsubscribe(ch chan mixture.Event) {
	p.mu.Lock()
	delete(p.subs, ch)
	p.mu.Unlock()
}

// SubscriberCount reports the number of connected clients.
func (p *SSEPublisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// ServeHTTP streams events until the client disconnects or the server shuts
// down.
func (p *SSEPublisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := p.subscribe()
	defer p.unsubscribe(ch)

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			payload := map[string]any{"run_id": ev.RunID}
			for k, v := range ev.Fields {
				payload[k] = v
			}
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
		}
	}
}
