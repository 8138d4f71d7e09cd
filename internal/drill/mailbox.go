package drill

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO of closures executed by a single goroutine.
// Post never blocks, so it is safe to call from timer and recognizer
// callbacks.
type Mailbox struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{wake: make(chan struct{}, 1)}
}

// Post enqueues f.
func (m *Mailbox) Post(f func()) {
	m.mu.Lock()
	m.queue = append(m.queue, f)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run executes posted closures in order until ctx is cancelled.
func (m *Mailbox) Run(ctx context.Context) error {
	for {
		m.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
		}
	}
}

// RunPending executes queued closures, including ones they post, until the
// queue is empty. It returns how many ran. It must not be called
// concurrently with Run.
func (m *Mailbox) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		f := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		f()
		n++
	}
}
