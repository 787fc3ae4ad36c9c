package agentevents

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/orbitx-dev/orbitx/internal/logger"
)

// Hub fans Events out to every connected WebSocket subscriber. It follows
// spec.md §9's "typed broadcast channel with bounded lag handling" guidance
// (the same policy internal/term/mux.Mux applies to pane notifications): a
// subscriber whose send buffer is full has its oldest buffered event
// dropped rather than blocking the publisher, since the event stream is a
// live progress feed, not a durable log (the Repository layer is the
// durable record per spec.md §4.10 step 5).
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Publish fans out one event to every current subscriber.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
}

func (h *Hub) subscribe() (int, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Event, 64)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams every published
// Event to it until the client disconnects or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("agentevents: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	id, ch := h.subscribe()
	defer h.unsubscribe(id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "context done")
			return
		case e, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "hub closed")
				return
			}
			if err := wsjson.Write(context.Background(), conn, e); err != nil {
				return
			}
		}
	}
}
