// Package tick implements the Master Tick Service (§4.I): a single
// timer producing four coalesced cadences. Each subscriber invocation
// runs on its own worker goroutine so a slow subscriber cannot delay
// the next tick.
package tick

import (
	"context"
	"sync"
	"time"
)

// Kind names one of the four tick cadences.
type Kind int

const (
	FastTick     Kind = iota // 500ms, every tick
	MediumTick               // 1s, every 2nd fast tick
	SlowTick                 // 3s, every 6th fast tick
	VerySlowTick             // 10s, every 20th fast tick
)

// Config holds the four cadence durations. All are expressed relative
// to FastInterval via the divisor constants below (§4.I: medium=2x
// fast, slow=6x fast, very_slow=20x fast at the spec's nominal 500ms).
type Config struct {
	FastInterval time.Duration
}

const (
	mediumDivisor   = 2
	slowDivisor     = 6
	verySlowDivisor = 20
)

// Subscriber is invoked once per matching tick, on its own goroutine.
type Subscriber func(ctx context.Context, at time.Time)

// Service runs the single coalesced clock and dispatches subscribers.
type Service struct {
	cfg  Config
	mu   sync.Mutex
	subs map[Kind][]Subscriber
	n    uint64
}

// New constructs a tick Service. cfg.FastInterval must be > 0.
func New(cfg Config) *Service {
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = 500 * time.Millisecond
	}
	return &Service{cfg: cfg, subs: make(map[Kind][]Subscriber)}
}

// Subscribe registers a subscriber for the given cadence.
func (s *Service) Subscribe(kind Kind, fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[kind] = append(s.subs[kind], fn)
}

// Run drives the clock until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatch(ctx, now)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, now time.Time) {
	s.mu.Lock()
	n := s.n
	s.n++
	s.mu.Unlock()

	s.fire(ctx, FastTick, now)
	if n%mediumDivisor == 0 {
		s.fire(ctx, MediumTick, now)
	}
	if n%slowDivisor == 0 {
		s.fire(ctx, SlowTick, now)
	}
	if n%verySlowDivisor == 0 {
		s.fire(ctx, VerySlowTick, now)
	}
}

func (s *Service) fire(ctx context.Context, kind Kind, at time.Time) {
	s.mu.Lock()
	subs := append([]Subscriber(nil), s.subs[kind]...)
	s.mu.Unlock()

	for _, fn := range subs {
		go fn(ctx, at)
	}
}
