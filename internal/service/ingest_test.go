package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/runlens/runlens/internal/adapter/memory"
	"github.com/runlens/runlens/internal/bus"
	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/run"
)

var (
	ingestT0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ingestT1 = time.Date(2025, 6, 1, 10, 0, 7, 0, time.UTC)
)

func newIngestFixture(t *testing.T) (*IngestService, *memory.Store, *bus.Subscriber) {
	t.Helper()

	store := memory.NewStore()
	b := bus.New(128)
	t.Cleanup(b.Close)

	sub := b.Subscribe()
	sub.SubscribeTypes(
		event.TypeTraceCreated,
		event.TypeTraceUpdated,
		event.TypeTraceCompleted,
		event.TypeTraceFailed,
	)

	svc := NewIngestService(store, b, nil, nil)
	return svc, store, sub
}

func drainEvents(s *bus.Subscriber) []event.Event {
	var out []event.Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func mustApply(t *testing.T, svc *IngestService, b *Batch) *IngestResult {
	t.Helper()
	res, err := svc.Apply(context.Background(), b)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return res
}

func TestApply_CreateEmitsCreated(t *testing.T) {
	svc, store, sub := newIngestFixture(t)

	res := mustApply(t, svc, &Batch{Post: []run.Create{
		{ID: "r1", Name: "root", StartTime: &ingestT0},
	}})

	if res.Applied != 1 || len(res.Failed) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	events := drainEvents(sub)
	if len(events) != 1 || events[0].Type != event.TypeTraceCreated {
		t.Fatalf("expected one trace.created, got %v", events)
	}

	stored, err := store.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != run.StatusRunning {
		t.Fatalf("expected running, got %s", stored.Status)
	}
}

func TestApply_RepostEmitsUpdated(t *testing.T) {
	svc, _, sub := newIngestFixture(t)

	batch := &Batch{Post: []run.Create{{ID: "r1", StartTime: &ingestT0}}}
	mustApply(t, svc, batch)
	drainEvents(sub)

	mustApply(t, svc, batch)
	events := drainEvents(sub)
	if len(events) != 1 || events[0].Type != event.TypeTraceUpdated {
		t.Fatalf("expected one trace.updated on re-post, got %v", events)
	}
}

func TestApply_CompletionAndFailureEvents(t *testing.T) {
	errMsg := "tool exploded"
	tests := []struct {
		name  string
		patch run.Update
		want  event.Type
	}{
		{"end_time completes", run.Update{ID: "r1", EndTime: &ingestT1}, event.TypeTraceCompleted},
		{"error fails", run.Update{ID: "r1", Error: &errMsg}, event.TypeTraceFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, sub := newIngestFixture(t)

			mustApply(t, svc, &Batch{Post: []run.Create{{ID: "r1", StartTime: &ingestT0}}})
			drainEvents(sub)

			mustApply(t, svc, &Batch{Patch: []run.Update{tt.patch}})
			events := drainEvents(sub)
			if len(events) != 1 || events[0].Type != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, events)
			}
		})
	}
}

func TestApply_FirstSeenTerminalStillEmitsCreated(t *testing.T) {
	svc, _, sub := newIngestFixture(t)

	mustApply(t, svc, &Batch{Post: []run.Create{
		{ID: "r1", StartTime: &ingestT0, EndTime: &ingestT1},
	}})

	events := drainEvents(sub)
	if len(events) != 1 || events[0].Type != event.TypeTraceCreated {
		t.Fatalf("expected trace.created for first-seen terminal run, got %v", events)
	}
}

func TestApply_LateUpdateAfterTerminalEmitsUpdated(t *testing.T) {
	svc, _, sub := newIngestFixture(t)

	mustApply(t, svc, &Batch{
		Post:  []run.Create{{ID: "r1", StartTime: &ingestT0}},
		Patch: []run.Update{{ID: "r1", EndTime: &ingestT1}},
	})
	drainEvents(sub)

	mustApply(t, svc, &Batch{Patch: []run.Update{
		{ID: "r1", Outputs: map[string]any{"late": true}},
	}})
	events := drainEvents(sub)
	if len(events) != 1 || events[0].Type != event.TypeTraceUpdated {
		t.Fatalf("expected trace.updated after terminal, got %v", events)
	}
}

func TestApply_PatchBeforeCreate(t *testing.T) {
	svc, store, sub := newIngestFixture(t)

	mustApply(t, svc, &Batch{Patch: []run.Update{
		{ID: "orphan", Outputs: map[string]any{"x": 1}},
	}})
	events := drainEvents(sub)
	if len(events) != 1 || events[0].Type != event.TypeTraceCreated {
		t.Fatalf("expected trace.created for placeholder, got %v", events)
	}

	stored, err := store.Get(context.Background(), "orphan")
	if err != nil {
		t.Fatalf("placeholder not stored: %v", err)
	}
	if !stored.IsPlaceholder() {
		t.Fatal("expected placeholder without start_time")
	}

	mustApply(t, svc, &Batch{Post: []run.Create{
		{ID: "orphan", Name: "late create", StartTime: &ingestT0},
	}})
	events = drainEvents(sub)
	if len(events) != 1 || events[0].Type != event.TypeTraceUpdated {
		t.Fatalf("expected trace.updated when the create arrives, got %v", events)
	}

	stored, _ = store.Get(context.Background(), "orphan")
	if stored.IsPlaceholder() || stored.Name != "late create" {
		t.Fatalf("create did not fill placeholder: %+v", stored)
	}
	if stored.Outputs["x"] != 1 {
		t.Fatal("create erased patched outputs")
	}
}

func TestApply_PartialFailure(t *testing.T) {
	svc, store, _ := newIngestFixture(t)

	res := mustApply(t, svc, &Batch{Post: []run.Create{
		{ID: "good", StartTime: &ingestT0},
		{ID: "", StartTime: &ingestT0},
		{ID: "no-start"},
	}})

	if res.Applied != 1 {
		t.Fatalf("expected 1 applied, got %d", res.Applied)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %+v", res.Failed)
	}
	for _, f := range res.Failed {
		if f.Reason == "" {
			t.Fatalf("failure without reason: %+v", f)
		}
	}

	if _, err := store.Get(context.Background(), "good"); err != nil {
		t.Fatalf("valid item was not applied: %v", err)
	}
}

func TestApply_SameBatchPostThenPatch(t *testing.T) {
	svc, store, _ := newIngestFixture(t)

	mustApply(t, svc, &Batch{
		Post:  []run.Create{{ID: "r1", Name: "n", StartTime: &ingestT0}},
		Patch: []run.Update{{ID: "r1", EndTime: &ingestT1}},
	})

	stored, err := store.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != run.StatusCompleted {
		t.Fatalf("expected patch applied after post, got %s", stored.Status)
	}
	if stored.Name != "n" {
		t.Fatal("post fields missing")
	}
}

func TestApply_StatsUpdatedOncePerChangedBatch(t *testing.T) {
	store := memory.NewStore()
	b := bus.New(128)
	defer b.Close()

	sub := b.Subscribe()
	sub.SubscribeTypes(event.TypeStatsUpdated)

	stats := NewStatsService(store, nil, time.Second)
	svc := NewIngestService(store, b, stats, nil)

	mustApply(t, svc, &Batch{Post: []run.Create{
		{ID: "r1", StartTime: &ingestT0},
		{ID: "r2", StartTime: &ingestT0},
	}})

	events := drainEvents(sub)
	if len(events) != 1 {
		t.Fatalf("expected exactly one stats.updated per batch, got %d", len(events))
	}
	if _, ok := events[0].Data.(*Summary); !ok {
		t.Fatalf("stats.updated should carry a summary, got %T", events[0].Data)
	}

	// A batch where nothing applies refreshes nothing.
	mustApply(t, svc, &Batch{Post: []run.Create{{ID: ""}}})
	if events := drainEvents(sub); len(events) != 0 {
		t.Fatalf("expected no stats.updated for a fully rejected batch, got %d", len(events))
	}
}

func TestApply_ConcurrentCreatesSameID(t *testing.T) {
	svc, store, sub := newIngestFixture(t)

	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(context.Background(), &Batch{Post: []run.Create{
				{ID: "same", Name: "agent", StartTime: &ingestT0},
			}})
			if err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	var created int
	for _, ev := range drainEvents(sub) {
		if ev.Type == event.TypeTraceCreated {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one trace.created, got %d", created)
	}

	stored, err := store.Get(context.Background(), "same")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != "agent" || !stored.StartTime.Equal(ingestT0) {
		t.Fatalf("unexpected final record: %+v", stored)
	}
}
