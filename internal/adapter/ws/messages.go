package ws

import (
	"time"

	"github.com/runlens/runlens/internal/domain/event"
)

// Control message actions accepted from clients.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Server-originated message types that are not lifecycle events.
const (
	TypeConnectionEstablished = "connection.established"
	TypeSubscriptionConfirmed = "subscription.confirmed"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// controlMessage is the envelope for in-band client control messages.
type controlMessage struct {
	Action string       `json:"action"`
	Events []event.Type `json:"events,omitempty"`
}

// serverMessage is the envelope for everything the server pushes: lifecycle
// events, control acknowledgements and per-connection errors.
type serverMessage struct {
	Type             string       `json:"type"`
	Data             any          `json:"data,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
	SubscribedEvents []event.Type `json:"subscribed_events,omitempty"`
	Error            string       `json:"error,omitempty"`
}
