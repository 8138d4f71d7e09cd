package countdown_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/speakdrill/internal/clock/mock"
	"github.com/MrWong99/speakdrill/internal/countdown"
)

type recorder struct {
	ticks   []time.Duration
	expired int
}

func (r *recorder) tick(d time.Duration) { r.ticks = append(r.ticks, d) }
func (r *recorder) expire()              { r.expired++ }

func newScheduler() (*countdown.Scheduler, *mock.Clock) {
	clk := mock.New(time.Unix(0, 0))
	return countdown.New(countdown.WithClock(clk)), clk
}

func TestScheduler_TicksThenExpiresOnce(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	var r recorder
	s.Arm(5*time.Second, r.tick, r.expire)

	clk.Advance(4 * time.Second)
	want := []time.Duration{4 * time.Second, 3 * time.Second, 2 * time.Second, time.Second}
	if !slices.Equal(r.ticks, want) {
		t.Fatalf("ticks after 4s = %v, want %v", r.ticks, want)
	}
	if r.expired != 0 {
		t.Fatalf("expired = %d before deadline, want 0", r.expired)
	}

	clk.Advance(10 * time.Second)
	if r.expired != 1 {
		t.Errorf("expired = %d, want 1", r.expired)
	}
	if last := r.ticks[len(r.ticks)-1]; last != 0 {
		t.Errorf("last tick = %v, want 0", last)
	}
	if n := clk.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}
}

func TestScheduler_CancelStopsCallbacks(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	var r recorder
	s.Arm(5*time.Second, r.tick, r.expire)

	clk.Advance(2 * time.Second)
	s.Cancel()
	ticks := len(r.ticks)

	clk.Advance(time.Minute)
	if len(r.ticks) != ticks {
		t.Errorf("ticks after Cancel = %d, want %d", len(r.ticks), ticks)
	}
	if r.expired != 0 {
		t.Errorf("expired = %d after Cancel, want 0", r.expired)
	}
	if n := clk.Pending(); n != 0 {
		t.Errorf("pending timers = %d after Cancel, want 0", n)
	}
}

func TestScheduler_RearmReplacesCountdown(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	var first, second recorder
	s.Arm(5*time.Second, first.tick, first.expire)
	clk.Advance(3 * time.Second)

	s.Arm(2*time.Second, second.tick, second.expire)
	clk.Advance(time.Minute)

	if first.expired != 0 {
		t.Errorf("first countdown expired %d times, want 0", first.expired)
	}
	if len(first.ticks) != 3 {
		t.Errorf("first countdown ticks = %v, want 3 ticks", first.ticks)
	}
	if second.expired != 1 {
		t.Errorf("second countdown expired %d times, want 1", second.expired)
	}
}

func TestScheduler_FractionalLimit(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	var r recorder
	s.Arm(1500*time.Millisecond, r.tick, r.expire)

	clk.Advance(time.Second)
	if !slices.Equal(r.ticks, []time.Duration{500 * time.Millisecond}) {
		t.Fatalf("ticks = %v, want [500ms]", r.ticks)
	}
	clk.Advance(500 * time.Millisecond)
	if r.expired != 1 {
		t.Errorf("expired = %d, want 1", r.expired)
	}
}

func TestScheduler_CustomUnitAndNilCallbacks(t *testing.T) {
	t.Parallel()

	clk := mock.New(time.Unix(0, 0))
	s := countdown.New(countdown.WithClock(clk), countdown.WithUnit(100*time.Millisecond))

	expired := false
	s.Arm(300*time.Millisecond, nil, func() { expired = true })
	clk.Advance(300 * time.Millisecond)
	if !expired {
		t.Error("countdown with nil onTick did not expire")
	}

	s.Arm(0, nil, nil)
	clk.Advance(100 * time.Millisecond)
	if n := clk.Pending(); n != 0 {
		t.Errorf("zero-limit countdown left %d timers after one unit", n)
	}
}

func TestScheduler_RealClock(t *testing.T) {
	t.Parallel()

	s := countdown.New(countdown.WithUnit(10 * time.Millisecond))
	done := make(chan struct{})
	s.Arm(30*time.Millisecond, nil, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not expire on the real clock")
	}
}
