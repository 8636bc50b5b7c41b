// Package reconcile keeps a client's view of server state converged by
// periodic full fetches, independent of whether push delivery works.
package reconcile

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of a Scheduler.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Options configures a Scheduler.
type Options[T any] struct {
	// Interval between cycles. Must be positive.
	Interval time.Duration
	// Jitter spreads each wait uniformly over Interval ± Jitter.
	Jitter time.Duration
	// FailureThreshold consecutive failures mark the server unreachable.
	// Zero disables the signal.
	FailureThreshold int

	// Fetch retrieves the authoritative snapshot.
	Fetch func(ctx context.Context) (T, error)
	// Apply replaces the local view. It runs with the scheduler locked and
	// must not call back into the Scheduler.
	Apply func(T)
	// OnUnreachable reports transitions of the unreachable signal.
	OnUnreachable func(unreachable bool)

	Logger *zap.Logger
}

// Scheduler runs Fetch immediately on Start and then every Interval until
// Stop. A result that arrives after Stop, or after a newer Start, is
// discarded. A failed fetch keeps the last applied snapshot.
type Scheduler[T any] struct {
	opts Options[T]

	mu          sync.Mutex
	state       State
	generation  uint64
	interval    time.Duration
	failures    int
	unreachable bool
	cancel      context.CancelFunc

	trigger chan struct{}
	reset   chan struct{}
}

func NewScheduler[T any](opts Options[T]) *Scheduler[T] {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Apply == nil {
		opts.Apply = func(T) {}
	}
	return &Scheduler[T]{
		opts:     opts,
		interval: opts.Interval,
		trigger:  make(chan struct{}, 1),
		reset:    make(chan struct{}, 1),
	}
}

// Start moves an Idle scheduler to Active and runs the first cycle at once.
// It has no effect on an Active scheduler.
func (s *Scheduler[T]) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Active {
		return
	}
	s.state = Active
	s.generation++
	s.failures = 0

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(ctx, s.generation)
}

// Stop cancels the pending wait and any in-flight fetch. No Apply happens
// after Stop returns.
func (s *Scheduler[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Idle {
		return
	}
	s.state = Idle
	s.generation++
	s.cancel()
	s.cancel = nil
}

// SetInterval changes the interval; the current wait restarts with it.
func (s *Scheduler[T]) SetInterval(d time.Duration) {
	s.mu.Lock()
	changed := d != s.interval
	s.interval = d
	s.mu.Unlock()

	if changed {
		signal(s.reset)
	}
}

// Trigger runs a cycle now instead of at the next tick. Triggers that arrive
// while a cycle is pending are coalesced.
func (s *Scheduler[T]) Trigger() {
	signal(s.trigger)
}

func (s *Scheduler[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler[T]) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Unreachable reports whether the failure threshold is currently exceeded.
func (s *Scheduler[T]) Unreachable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreachable
}

func (s *Scheduler[T]) loop(ctx context.Context, generation uint64) {
	for {
		s.cycle(ctx, generation)
		if !s.wait(ctx) {
			return
		}
	}
}

func (s *Scheduler[T]) wait(ctx context.Context) bool {
	for {
		timer := time.NewTimer(s.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
			return true
		case <-s.trigger:
			timer.Stop()
			return true
		case <-s.reset:
			timer.Stop()
		}
	}
}

func (s *Scheduler[T]) cycle(ctx context.Context, generation uint64) {
	result, err := s.opts.Fetch(ctx)

	s.mu.Lock()
	if generation != s.generation || s.state != Active {
		s.mu.Unlock()
		return
	}

	var notify, unreachable bool
	if err != nil {
		s.failures++
		s.opts.Logger.Debug("reconcile fetch failed", zap.Int("failures", s.failures), zap.Error(err))
		if s.opts.FailureThreshold > 0 && s.failures >= s.opts.FailureThreshold && !s.unreachable {
			s.unreachable = true
			notify, unreachable = true, true
		}
	} else {
		s.failures = 0
		s.opts.Apply(result)
		if s.unreachable {
			s.unreachable = false
			notify, unreachable = true, false
		}
	}
	s.mu.Unlock()

	if notify && s.opts.OnUnreachable != nil {
		s.opts.OnUnreachable(unreachable)
	}
}

func (s *Scheduler[T]) nextDelay() time.Duration {
	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()

	jitter := s.opts.Jitter
	if jitter <= 0 {
		return interval
	}
	d := interval - jitter + time.Duration(rand.Int63n(int64(2*jitter)+1))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
