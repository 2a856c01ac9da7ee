package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(func() error { return errBoom })
	}
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := NewBreaker("dep", 3, time.Minute)
	failN(b, 2)

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected operation to run while closed")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker("dep", 3, time.Minute)
	failN(b, 3)

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got: %v", err)
	}
	if called {
		t.Error("operation must not run while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("dep", 3, time.Minute)
	failN(b, 2)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failN(b, 2)

	// 2 failures, success, 2 failures: still below threshold.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected closed breaker, got: %v", err)
	}
}

func TestBreaker_HalfOpenTrialCloses(t *testing.T) {
	now := time.Now()
	b := NewBreaker("dep", 2, time.Minute)
	b.now = func() time.Time { return now }

	failN(b, 2)
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open breaker, got: %v", err)
	}

	now = now.Add(61 * time.Second)

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if !called {
		t.Fatal("expected trial call to run after cooldown")
	}

	// Closed again.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("expected closed breaker after trial success, got: %v", err)
	}
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("dep", 2, time.Minute)
	b.now = func() time.Time { return now }

	failN(b, 2)
	now = now.Add(61 * time.Second)

	if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected trial failure to surface, got: %v", err)
	}

	// Re-opened: next call rejected without the cooldown having elapsed again.
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected reopened breaker, got: %v", err)
	}
}

func TestBreaker_HalfOpenAllowsSingleTrial(t *testing.T) {
	now := time.Now()
	b := NewBreaker("dep", 1, time.Minute)
	b.now = func() time.Time { return now }

	failN(b, 1)
	now = now.Add(61 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// The trial is in flight; a second call must be rejected.
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected concurrent call rejected during trial, got: %v", err)
	}
	close(release)
}
