package tick

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestService_FastTickFiresEveryTick(t *testing.T) {
	svc := New(Config{FastInterval: 10 * time.Millisecond})
	var count atomic.Int64
	svc.Subscribe(FastTick, func(ctx context.Context, at time.Time) {
		count.Add(1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	svc.Run(ctx)

	// Allow subscriber goroutines to finish.
	time.Sleep(10 * time.Millisecond)

	if got := count.Load(); got < 4 {
		t.Errorf("expected at least 4 fast ticks in 55ms at 10ms interval, got %d", got)
	}
}

func TestService_SlowerCadencesFireLessOften(t *testing.T) {
	svc := New(Config{FastInterval: 5 * time.Millisecond})
	var fast, medium atomic.Int64
	svc.Subscribe(FastTick, func(ctx context.Context, at time.Time) { fast.Add(1) })
	svc.Subscribe(MediumTick, func(ctx context.Context, at time.Time) { medium.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	svc.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	f, m := fast.Load(), medium.Load()
	if m >= f {
		t.Errorf("expected medium ticks (%d) to fire less often than fast ticks (%d)", m, f)
	}
	if m == 0 {
		t.Error("expected at least one medium tick to fire")
	}
}

func TestService_StopsOnContextCancel(t *testing.T) {
	svc := New(Config{FastInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after context cancellation")
	}
}
