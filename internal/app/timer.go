package app

import (
	"sync"
	"time"
)

// QuestionTimer is the countdown of a single session. Starting a timer stops
// the previous one, so at most one callback can ever fire per start.
type QuestionTimer struct {
	clock Clock

	mu      sync.Mutex
	gen     uint64
	current Stopper
}

func NewQuestionTimer(clock Clock) *QuestionTimer {
	return &QuestionTimer{clock: clock}
}

// Start arms the timer for limit. A zero or negative limit leaves the
// question unlimited and only clears the previous timer.
func (t *QuestionTimer) Start(limit time.Duration, onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	if limit <= 0 {
		return
	}
	gen := t.gen
	t.current = t.clock.AfterFunc(limit, func() {
		t.mu.Lock()
		live := gen == t.gen && t.current != nil
		if live {
			t.current = nil
		}
		t.mu.Unlock()
		if live {
			onExpire()
		}
	})
}

// Stop cancels the running timer, if any. A callback already in flight
// observes the new generation and does nothing.
func (t *QuestionTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Active reports whether a countdown is armed.
func (t *QuestionTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

func (t *QuestionTimer) stopLocked() {
	t.gen++
	if t.current != nil {
		t.current.Stop()
		t.current = nil
	}
}
