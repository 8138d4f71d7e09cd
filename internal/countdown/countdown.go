// Package countdown implements the per-turn response timer.
//
// A [Scheduler] runs at most one countdown at a time. Arming a new countdown
// cancels the previous one, and once [Scheduler.Cancel] or [Scheduler.Arm]
// returns no callback of the replaced countdown will be invoked.
//
// Callbacks run on timer goroutines and must not call back into the
// Scheduler; post the event somewhere else instead.
package countdown

import (
	"sync"
	"time"

	"github.com/MrWong99/speakdrill/internal/clock"
)

// DefaultUnit is the tick interval used when none is configured.
const DefaultUnit = time.Second

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock sets the clock used for ticks. Default: [clock.Real].
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithUnit sets the tick interval. Non-positive values are ignored.
func WithUnit(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.unit = d
		}
	}
}

// Scheduler arms and cancels countdowns. The zero value is not usable; use
// [New].
type Scheduler struct {
	clock clock.Clock
	unit  time.Duration

	// deliver is held while callbacks run so that Cancel can wait for an
	// in-flight delivery to finish.
	deliver sync.Mutex

	mu    sync.Mutex
	gen   uint64
	timer clock.Timer
}

// New returns a Scheduler configured with opts.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock: clock.Real{},
		unit:  DefaultUnit,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Arm starts a countdown of limit. After every unit onTick receives the time
// remaining; when it reaches zero onTick(0) is followed by exactly one call
// to onExpire. Either callback may be nil. A non-positive limit expires after
// a single unit.
func (s *Scheduler) Arm(limit time.Duration, onTick func(remaining time.Duration), onExpire func()) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.scheduleLocked(s.gen, max(limit, 0), onTick, onExpire)
}

// Cancel stops the active countdown, if any. It blocks until a callback
// that is currently running returns.
func (s *Scheduler) Cancel() {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) scheduleLocked(gen uint64, remaining time.Duration, onTick func(time.Duration), onExpire func()) {
	step := s.unit
	if remaining > 0 && remaining < step {
		step = remaining
	}
	next := max(remaining-step, 0)
	s.timer = s.clock.AfterFunc(step, func() {
		s.fire(gen, next, onTick, onExpire)
	})
}

func (s *Scheduler) fire(gen uint64, remaining time.Duration, onTick func(time.Duration), onExpire func()) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	if remaining > 0 {
		s.scheduleLocked(gen, remaining, onTick, onExpire)
	} else {
		s.timer = nil
		s.gen++
	}
	s.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if remaining == 0 && onExpire != nil {
		onExpire()
	}
}
