// Package ws implements the live subscription manager over WebSocket.
// Each connection owns a bounded bus subscription with a per-connection
// event-type filter, so a slow dashboard tab can only lose its own events.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/runlens/runlens/internal/bus"
	"github.com/runlens/runlens/internal/domain/event"
)

// Hub manages all live connections and their bus subscriptions.
type Hub struct {
	bus   *bus.Bus
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// conn is one live connection. writeMu serializes event-pump writes with
// control acknowledgements written from the read loop.
type conn struct {
	id      string
	ws      *websocket.Conn
	sub     *bus.Subscriber
	cancel  context.CancelFunc
	writeMu sync.Mutex
}

// NewHub creates a hub fanning out events from b.
func NewHub(b *bus.Bus) *Hub {
	return &Hub{
		bus:   b,
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request and serves the live channel until the client
// disconnects. New connections are subscribed to nothing; the client opts in
// with subscribe control messages. No redelivery is attempted for events
// missed while disconnected — clients reconcile via the query API.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		id:     uuid.NewString(),
		ws:     sock,
		sub:    h.bus.Subscribe(),
		cancel: cancel,
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "conn_id", c.id, "remote", r.RemoteAddr)

	c.write(ctx, serverMessage{
		Type:      TypeConnectionEstablished,
		Timestamp: time.Now().UTC(),
	})

	go c.pump(ctx)

	// Read loop runs on the handler goroutine so the request context stays
	// alive for the whole session.
	c.readLoop(ctx)

	h.remove(c)
	_ = sock.Close(websocket.StatusNormalClosure, "")
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close tears down every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		h.remove(c)
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		c.sub.Close()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "conn_id", c.id, "dropped_events", c.sub.Dropped())
	}
}

// pump forwards matching bus events to the client until the subscription or
// the connection ends.
func (c *conn) pump(ctx context.Context) {
	for ev := range c.sub.Events() {
		c.write(ctx, serverMessage{
			Type:      string(ev.Type),
			Data:      ev.Data,
			Timestamp: ev.Timestamp,
		})
	}
}

// readLoop consumes control messages. A malformed message earns an error
// response on the same connection, never a disconnect.
func (c *conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.writeError(ctx, "invalid control message")
			continue
		}
		c.handleControl(ctx, &msg)
	}
}

func (c *conn) handleControl(ctx context.Context, msg *controlMessage) {
	switch msg.Action {
	case ActionPing:
		c.write(ctx, serverMessage{Type: TypePong, Timestamp: time.Now().UTC()})

	case ActionSubscribe, ActionUnsubscribe:
		for _, t := range msg.Events {
			if !event.Valid(t) {
				c.writeError(ctx, "unknown event type: "+string(t))
				return
			}
		}
		if msg.Action == ActionSubscribe {
			c.sub.SubscribeTypes(msg.Events...)
		} else {
			c.sub.UnsubscribeTypes(msg.Events...)
		}
		c.write(ctx, serverMessage{
			Type:             TypeSubscriptionConfirmed,
			Timestamp:        time.Now().UTC(),
			SubscribedEvents: sortedTypes(c.sub.Types()),
		})

	default:
		c.writeError(ctx, "unknown action: "+msg.Action)
	}
}

func (c *conn) write(ctx context.Context, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "type", msg.Type, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "conn_id", c.id, "error", err)
	}
}

func (c *conn) writeError(ctx context.Context, reason string) {
	c.write(ctx, serverMessage{
		Type:      TypeError,
		Timestamp: time.Now().UTC(),
		Error:     reason,
	})
}

// sortedTypes keeps subscription.confirmed responses deterministic.
func sortedTypes(types []event.Type) []event.Type {
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
