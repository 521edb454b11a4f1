// Package event defines the lifecycle events emitted by the ingestion
// pipeline and consumed by live subscribers.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	TypeTraceCreated   Type = "trace.created"
	TypeTraceUpdated   Type = "trace.updated"
	TypeTraceCompleted Type = "trace.completed"
	TypeTraceFailed    Type = "trace.failed"
	TypeStatsUpdated   Type = "stats.updated"
)

// validTypes enumerates the event types clients may subscribe to.
var validTypes = map[Type]bool{
	TypeTraceCreated:   true,
	TypeTraceUpdated:   true,
	TypeTraceCompleted: true,
	TypeTraceFailed:    true,
	TypeStatsUpdated:   true,
}

// Valid reports whether t is a known lifecycle event type.
func Valid(t Type) bool {
	return validTypes[t]
}

// Event is the envelope broadcast on the bus and pushed to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an event with a fresh id and the current timestamp.
func New(t Type, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
