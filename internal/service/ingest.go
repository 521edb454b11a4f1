// Package service implements the core trace engine on top of ports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/runlens/runlens/internal/adapter/otel"
	"github.com/runlens/runlens/internal/bus"
	"github.com/runlens/runlens/internal/domain"
	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/port/runstore"
)

// Batch is the ingestion payload: creates ("post") and updates ("patch"),
// each keyed by run id. Producers batch both freely and out of order.
type Batch struct {
	Post  []run.Create `json:"post"`
	Patch []run.Update `json:"patch"`
}

// ItemFailure reports one rejected batch item.
type ItemFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// IngestResult is the per-batch acceptance report. A batch with failures is
// still a success for the items that applied.
type IngestResult struct {
	Applied int           `json:"applied"`
	Failed  []ItemFailure `json:"failed,omitempty"`
}

// IngestService merges create and patch operations into the run store and
// emits exactly one lifecycle event per affected run. All mutation in the
// system funnels through here.
type IngestService struct {
	store   runstore.Store
	bus     *bus.Bus
	stats   *StatsService
	metrics *otel.Metrics
	locks   stripedMutex
	now     func() time.Time
}

// NewIngestService creates a new IngestService. metrics may be nil.
func NewIngestService(store runstore.Store, b *bus.Bus, stats *StatsService, metrics *otel.Metrics) *IngestService {
	return &IngestService{
		store:   store,
		bus:     b,
		stats:   stats,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Apply processes a batch. Items are independent: a malformed or failed item
// is reported and the rest of the batch proceeds. Ordering within the batch
// is deterministic — all posts in payload order, then all patches in payload
// order — which pins down last-writer-wins for same-id items.
func (s *IngestService) Apply(ctx context.Context, b *Batch) (*IngestResult, error) {
	res := &IngestResult{}

	for i := range b.Post {
		c := &b.Post[i]
		if err := c.Validate(); err != nil {
			res.Failed = append(res.Failed, ItemFailure{ID: c.ID, Reason: err.Error()})
			continue
		}
		if err := s.applyCreate(ctx, c); err != nil {
			slog.Error("create merge failed", "run_id", c.ID, "error", err)
			res.Failed = append(res.Failed, ItemFailure{ID: c.ID, Reason: "storage unavailable, retry"})
			continue
		}
		res.Applied++
	}

	for i := range b.Patch {
		u := &b.Patch[i]
		if err := u.Validate(); err != nil {
			res.Failed = append(res.Failed, ItemFailure{ID: u.ID, Reason: err.Error()})
			continue
		}
		if err := s.applyUpdate(ctx, u); err != nil {
			slog.Error("patch merge failed", "run_id", u.ID, "error", err)
			res.Failed = append(res.Failed, ItemFailure{ID: u.ID, Reason: "storage unavailable, retry"})
			continue
		}
		res.Applied++
	}

	if res.Applied > 0 {
		s.publishStats(ctx)
	}
	return res, nil
}

// applyCreate merges one create under the per-id critical section.
func (s *IngestService) applyCreate(ctx context.Context, c *run.Create) error {
	unlock := s.locks.Lock(c.ID)
	defer unlock()

	existing, err := s.load(ctx, c.ID)
	if err != nil {
		return err
	}

	merged := run.ApplyCreate(existing, c, s.now())
	if err := s.store.Upsert(ctx, &merged); err != nil {
		return err
	}

	s.emit(ctx, existing, &merged)
	return nil
}

// applyUpdate merges one patch under the per-id critical section. A patch
// for an unseen id materializes a placeholder record instead of failing.
func (s *IngestService) applyUpdate(ctx context.Context, u *run.Update) error {
	unlock := s.locks.Lock(u.ID)
	defer unlock()

	existing, err := s.load(ctx, u.ID)
	if err != nil {
		return err
	}

	merged := run.ApplyUpdate(existing, u, s.now())
	if err := s.store.Upsert(ctx, &merged); err != nil {
		return err
	}

	s.emit(ctx, existing, &merged)
	return nil
}

func (s *IngestService) load(ctx context.Context, id string) (*run.Run, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return existing, nil
}

// emit publishes the single lifecycle event for a completed merge:
// trace.created for first-seen ids, trace.completed/failed when the run
// leaves the running state, trace.updated for everything else.
func (s *IngestService) emit(ctx context.Context, prev, merged *run.Run) {
	t := event.TypeTraceUpdated
	switch {
	case prev == nil:
		t = event.TypeTraceCreated
	case !prev.Status.Terminal() && merged.Status == run.StatusCompleted:
		t = event.TypeTraceCompleted
	case !prev.Status.Terminal() && merged.Status == run.StatusFailed:
		t = event.TypeTraceFailed
	}

	s.bus.Publish(event.New(t, merged))
	s.count(ctx, t, merged)
}

func (s *IngestService) count(ctx context.Context, t event.Type, r *run.Run) {
	if s.metrics == nil {
		return
	}
	switch t {
	case event.TypeTraceCreated:
		s.metrics.RunsIngested.Add(ctx, 1)
	case event.TypeTraceCompleted:
		s.metrics.RunsCompleted.Add(ctx, 1)
		s.recordDuration(ctx, r)
	case event.TypeTraceFailed:
		s.metrics.RunsFailed.Add(ctx, 1)
		s.recordDuration(ctx, r)
	case event.TypeTraceUpdated:
		s.metrics.RunsUpdated.Add(ctx, 1)
	}
}

func (s *IngestService) recordDuration(ctx context.Context, r *run.Run) {
	if r.DurationMS != nil {
		s.metrics.RunDuration.Record(ctx, float64(*r.DurationMS)/1000.0)
	}
}

// publishStats refreshes the summary snapshot and broadcasts stats.updated.
// Failures here never fail the batch: the dashboard reconciles on demand.
func (s *IngestService) publishStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	s.stats.Invalidate(ctx)
	summary, err := s.stats.Summary(ctx)
	if err != nil {
		slog.Warn("stats refresh after batch failed", "error", err)
		return
	}
	s.bus.Publish(event.New(event.TypeStatsUpdated, summary))
}
