package loop

import "time"

// Timer is a reusable, cancellable wait bound to a loop.
// All methods must be called on the loop goroutine.
type Timer struct {
	l       *Loop
	gen     uint64
	cancel  func()
	pending bool
}

// NewTimer creates an idle timer on the loop.
func (l *Loop) NewTimer() *Timer {
	return &Timer{l: l}
}

// Reset cancels any pending wait and arranges for fn to run on the loop
// after d. Returns true if a pending wait was cancelled.
func (t *Timer) Reset(d time.Duration, fn func()) bool {
	cancelled := t.Stop()
	gen := t.gen
	t.pending = true
	t.cancel = t.l.afterFunc(d, func() {
		// a Stop or Reset after the deadline but before delivery
		if t.gen != gen {
			return
		}
		t.pending = false
		t.cancel = nil
		fn()
	})
	return cancelled
}

// Stop cancels the pending wait, if any. A firing that was already queued
// is dropped. Returns true if a wait was pending.
func (t *Timer) Stop() bool {
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	was := t.pending
	t.pending = false
	return was
}

// Pending reports whether a wait is armed and has not fired.
func (t *Timer) Pending() bool {
	return t.pending
}
