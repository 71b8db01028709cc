package health

import (
	"testing"
	"time"
)

func TestBackoff_NextDelay_Doubles(t *testing.T) {
	b := NewBackoff(1*time.Second, 5)

	delay, ok := b.NextDelay()
	if !ok || delay != 1*time.Second {
		t.Fatalf("expected first delay 1s, got %v (ok=%v)", delay, ok)
	}
	b.RecordAttempt(time.Now())

	delay, ok = b.NextDelay()
	if !ok || delay != 2*time.Second {
		t.Fatalf("expected second delay 2s, got %v (ok=%v)", delay, ok)
	}
	b.RecordAttempt(time.Now())

	delay, ok = b.NextDelay()
	if !ok || delay != 4*time.Second {
		t.Fatalf("expected third delay 4s, got %v (ok=%v)", delay, ok)
	}
}

func TestBackoff_ExhaustsAfterMaxAttempts(t *testing.T) {
	b := NewBackoff(1*time.Second, 3)

	for i := 0; i < 3; i++ {
		if b.Exhausted() {
			t.Fatalf("backoff exhausted too early at attempt %d", i)
		}
		b.RecordAttempt(time.Now())
	}

	if !b.Exhausted() {
		t.Fatal("expected backoff to be exhausted after maxAttempts")
	}
	if _, ok := b.NextDelay(); ok {
		t.Fatal("expected NextDelay to report exhausted")
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(1*time.Second, 2)
	b.RecordAttempt(time.Now())
	b.RecordAttempt(time.Now())
	if !b.Exhausted() {
		t.Fatal("expected exhausted before reset")
	}

	b.Reset()
	if b.Exhausted() {
		t.Fatal("expected not exhausted after reset")
	}
	if b.Attempts() != 0 {
		t.Errorf("expected 0 attempts after reset, got %d", b.Attempts())
	}
}

func TestNewBackoff_PanicsOnInvalidArgs(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero base")
		}
	}()
	NewBackoff(0, 5)
}
