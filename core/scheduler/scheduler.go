// Package scheduler delivers deferred ride completions. Each assignment
// arms a one-shot handle that fires after a randomized delay and releases
// the driver back to the pool.
package scheduler

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// FireFunc is invoked exactly once when a handle fires. Implementations
// must route the call back through the dispatch manager's exclusion domain.
type FireFunc func(rideID, driverID string)

// Scheduler arms cancellable one-shot completion timers. Delays are drawn
// uniformly from [MinDelay, MaxDelay] using a dedicated RNG so runs are
// reproducible under a fixed seed.
type Scheduler struct {
	minDelay time.Duration
	maxDelay time.Duration
	fire     FireFunc

	mu      sync.Mutex
	rng     *rand.Rand
	handles map[*Handle]struct{}
	closed  bool
}

// New creates a Scheduler. MinDelay must be positive and no greater than
// maxDelay.
func New(minDelay, maxDelay time.Duration, seed int64, fire FireFunc) (*Scheduler, error) {
	if fire == nil {
		return nil, fmt.Errorf("scheduler: nil fire callback")
	}
	if minDelay <= 0 || maxDelay < minDelay {
		return nil, fmt.Errorf("scheduler: invalid delay window [%s, %s]", minDelay, maxDelay)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Scheduler{
		minDelay: minDelay,
		maxDelay: maxDelay,
		fire:     fire,
		rng:      rand.New(rand.NewSource(seed)),
		handles:  make(map[*Handle]struct{}),
	}, nil
}

// Handle is a single armed completion. It fires at most once; Cancel is
// idempotent and cancelling after the fire is a no-op.
type Handle struct {
	rideID   string
	driverID string

	mu    sync.Mutex
	timer *time.Timer
	done  bool // fired or cancelled
}

// RideID returns the ride this handle completes.
func (h *Handle) RideID() string { return h.rideID }

// Arm schedules a completion for the given assignment and returns its
// handle. After Close, Arm returns nil.
func (s *Scheduler) Arm(rideID, driverID string) *Handle {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	delay := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		delay += time.Duration(s.rng.Int63n(int64(span) + 1))
	}
	h := &Handle{rideID: rideID, driverID: driverID}
	s.handles[h] = struct{}{}
	s.mu.Unlock()

	h.mu.Lock()
	h.timer = time.AfterFunc(delay, func() { s.fired(h) })
	h.mu.Unlock()
	return h
}

// fired runs on the timer goroutine. The done flag decides the
// fire-vs-cancel race exactly once.
func (s *Scheduler) fired(h *Handle) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	h.mu.Unlock()

	s.fire(h.rideID, h.driverID)
	s.forget(h)
}

// Cancel stops the handle if it has not fired yet. It never errors: a
// handle that already fired, or was already cancelled, is left alone.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	timer := h.timer
	h.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

// Cancel stops the handle and drops it from the outstanding set.
func (s *Scheduler) Cancel(h *Handle) {
	if h == nil {
		return
	}
	h.Cancel()
	s.forget(h)
}

// Close cancels every outstanding handle. Arm calls after Close are
// rejected; in-flight fires resolve through the normal once-guard.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	outstanding := make([]*Handle, 0, len(s.handles))
	for h := range s.handles {
		outstanding = append(outstanding, h)
	}
	s.handles = make(map[*Handle]struct{})
	s.mu.Unlock()

	for _, h := range outstanding {
		h.Cancel()
	}
}

// Outstanding returns the number of armed, unfired handles.
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
}
