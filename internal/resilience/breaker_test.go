package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBroker = errors.New("broker unavailable")

func TestDo_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(3, time.Second)

	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not invoked")
	}
}

func TestDo_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for range 3 {
		_ = b.Do(func() error { return errBroker })
	}

	err := b.Do(func() error {
		t.Fatal("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestDo_ProbeAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Do(func() error { return errBroker })
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen before cooldown, got %v", err)
	}

	now = now.Add(2 * time.Second)

	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("probe should run after cooldown: %v", err)
	}
	if !called {
		t.Fatal("probe was not invoked")
	}

	// Probe success closed the circuit.
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}
}

func TestDo_ProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Do(func() error { return errBroker })
	}
	now = now.Add(2 * time.Second)

	_ = b.Do(func() error { return errBroker })

	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}

func TestDo_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	_ = b.Do(func() error { return errBroker })
	_ = b.Do(func() error { return errBroker })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errBroker })
	_ = b.Do(func() error { return errBroker })

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("circuit tripped early: %v", err)
	}
}
