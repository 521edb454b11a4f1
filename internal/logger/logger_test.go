package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/runlens/runlens/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"garbage", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_SyncCloserIsNoop(t *testing.T) {
	log, closer := New(config.Logging{Level: "info", Service: "test"})
	if log == nil {
		t.Fatal("expected logger")
	}
	closer.Close()
	closer.Close()
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" {
		t.Fatal("expected empty id for bare context")
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Fatalf("expected req-123, got %q", got)
	}
}

// syncBuffer makes bytes.Buffer safe for the async worker goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestAsyncHandler_FlushOnClose(t *testing.T) {
	var buf syncBuffer
	inner := slog.NewJSONHandler(&buf, nil)
	async := NewAsyncHandler(inner, 64, 1)
	log := slog.New(async)

	for i := range 10 {
		log.Info("record", "i", i)
	}
	async.Close()

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	if lines != 10 {
		t.Fatalf("expected 10 flushed records, got %d", lines)
	}

	var rec map[string]any
	first, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	if err := json.Unmarshal(first, &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "record" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	var buf syncBuffer
	inner := slog.NewJSONHandler(&buf, nil)

	// No workers: nothing drains, so the channel fills and overflow drops.
	async := &AsyncHandler{
		inner:   inner,
		ch:      make(chan entry, 2),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
		once:    &sync.Once{},
	}
	log := slog.New(async)

	for range 5 {
		log.Info("burst")
	}

	if got := async.Dropped(); got != 3 {
		t.Fatalf("expected 3 dropped records, got %d", got)
	}
}

func TestAsyncHandler_WithAttrsSharesQueue(t *testing.T) {
	var buf syncBuffer
	inner := slog.NewJSONHandler(&buf, nil)
	async := NewAsyncHandler(inner, 64, 1)

	derived := slog.New(async).With("component", "ingest")
	derived.Info("hello")

	// Closing the original flushes records logged through derived handlers.
	async.Close()

	if !bytes.Contains(buf.Bytes(), []byte(`"component":"ingest"`)) {
		t.Fatalf("derived attrs missing: %s", buf.Bytes())
	}
}
