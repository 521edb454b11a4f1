// Package messagequeue defines the port for relaying lifecycle events to an
// external broker. The in-process bus serves the dashboard; the queue exists
// so out-of-process consumers can tail the same firehose.
package messagequeue

import "context"

// Queue is the port interface for publishing messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Drain gracefully flushes pending publishes before closing.
	Drain() error

	// Close shuts down the connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}
