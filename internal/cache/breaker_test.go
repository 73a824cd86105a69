package cache

import (
	stderrors "errors"
	"testing"
	"time"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 2, 10*time.Second)
	cb.now = func() time.Time { return now }

	boom := stderrors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }

	_ = cb.Call(fail)
	if cb.GetState() != StateClosed {
		t.Fatalf("state after 1 failure = %v, want closed", cb.GetState())
	}
	_ = cb.Call(fail)
	if cb.GetState() != StateOpen {
		t.Fatalf("state after 2 failures = %v, want open", cb.GetState())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !stderrors.Is(err, ErrBreakerOpen) || called {
		t.Fatalf("open breaker let the call through: err=%v called=%v", err, called)
	}

	now = now.Add(11 * time.Second)
	if err := cb.Call(ok); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("state after successful probe = %v, want closed", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.now = func() time.Time { return now }

	boom := stderrors.New("boom")
	_ = cb.Call(func() error { return boom })
	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return boom })

	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}
}
