package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/runlens/runlens/internal/bus"
	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/port/messagequeue"
	"github.com/runlens/runlens/internal/resilience"
)

const (
	relayFailureThreshold = 5
	relayCooldown         = 10 * time.Second
)

// StartEventRelay mirrors every lifecycle event onto the message queue so
// out-of-process consumers can tail the firehose. The relay is a plain bus
// subscriber: a slow or disconnected broker drops events, it never stalls
// ingestion. A circuit breaker stops hammering a broker that keeps failing;
// events published while the circuit is open are simply lost, like any other
// relay drop. The returned function stops the relay.
func StartEventRelay(ctx context.Context, b *bus.Bus, q messagequeue.Queue) func() {
	sub := b.Subscribe()
	sub.SubscribeTypes(
		event.TypeTraceCreated,
		event.TypeTraceUpdated,
		event.TypeTraceCompleted,
		event.TypeTraceFailed,
		event.TypeStatsUpdated,
	)

	breaker := resilience.NewBreaker(relayFailureThreshold, relayCooldown)

	go func() {
		for ev := range sub.Events() {
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("relay marshal failed", "type", ev.Type, "error", err)
				continue
			}
			err = breaker.Do(func() error {
				return q.Publish(ctx, string(ev.Type), data)
			})
			switch {
			case errors.Is(err, resilience.ErrOpen):
				slog.Debug("relay circuit open, event dropped", "type", ev.Type)
			case err != nil:
				slog.Warn("relay publish failed", "type", ev.Type, "error", err)
			}
		}
	}()

	return sub.Close
}
