// Package loop provides the single event-processing goroutine that every
// sensor, power-state subscription and timer callback runs on.
//
// Work is queued with Post, blocking work (file reads, bus calls) is handed
// to a worker with Go and its completion is delivered back on the loop, and
// Timer gives cancellable waits whose stale firings are dropped. Because all
// callbacks run one at a time, state owned by loop callbacks needs no locks.
//
// A manual loop (NewManual) runs on virtual time: tests advance the clock and
// drain queued callbacks on their own goroutine, which makes debounce and
// retry timing deterministic.
package loop

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrManual is returned by Run on a manual loop.
var ErrManual = errors.New("loop: Run is not available on a manual loop")

// Loop serializes callbacks onto one goroutine.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	// manual mode
	manual bool
	now    time.Time
	timers []*manualTimer
	seq    uint64
}

type manualTimer struct {
	due       time.Time
	seq       uint64
	fn        func()
	cancelled bool
}

// New creates a loop driven by the wall clock. Call Run to process callbacks.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// NewManual creates a loop on virtual time starting at start.
// Callbacks only run inside Advance and RunPending.
func NewManual(start time.Time) *Loop {
	l := New()
	l.manual = true
	l.now = start
	return l
}

// Manual reports whether the loop runs on virtual time.
func (l *Loop) Manual() bool {
	return l.manual
}

// Now returns the loop's notion of the current time.
func (l *Loop) Now() time.Time {
	if !l.manual {
		return time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Post queues fn to run on the loop. Safe to call from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// Run processes callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l.manual {
		return ErrManual
	}
	for {
		for fn := l.pop(); fn != nil; fn = l.pop() {
			fn()
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending runs queued callbacks on the calling goroutine until the queue
// is empty, including callbacks queued while draining. Returns how many ran.
// Intended for manual loops.
func (l *Loop) RunPending() int {
	n := 0
	for fn := l.pop(); fn != nil; fn = l.pop() {
		fn()
		n++
	}
	return n
}

// Advance moves virtual time forward by d, firing due timers in deadline
// order and draining the queue after each one.
func (l *Loop) Advance(d time.Duration) {
	if !l.manual {
		panic("loop: Advance called on a wall-clock loop")
	}
	l.RunPending()

	l.mu.Lock()
	target := l.now.Add(d)
	l.mu.Unlock()

	for {
		t := l.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
		l.RunPending()
	}

	l.mu.Lock()
	if target.After(l.now) {
		l.now = target
	}
	l.mu.Unlock()
	l.RunPending()
}

// nextDue removes and returns the earliest live timer due at or before
// target, moving virtual time to its deadline.
func (l *Loop) nextDue(target time.Time) *manualTimer {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := l.timers[:0]
	for _, t := range l.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	l.timers = live
	if len(l.timers) == 0 {
		return nil
	}

	sort.SliceStable(l.timers, func(i, j int) bool {
		if l.timers[i].due.Equal(l.timers[j].due) {
			return l.timers[i].seq < l.timers[j].seq
		}
		return l.timers[i].due.Before(l.timers[j].due)
	})

	next := l.timers[0]
	if next.due.After(target) {
		return nil
	}
	l.timers = l.timers[1:]
	if next.due.After(l.now) {
		l.now = next.due
	}
	return next
}

// PendingTimers returns the number of armed timers on a manual loop.
func (l *Loop) PendingTimers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// afterFunc arranges for fn to be posted to the loop after d.
// The returned function cancels the wait if it has not fired yet.
func (l *Loop) afterFunc(d time.Duration, fn func()) (cancel func()) {
	if !l.manual {
		t := time.AfterFunc(d, func() { l.Post(fn) })
		return func() { t.Stop() }
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	mt := &manualTimer{due: l.now.Add(d), seq: l.seq, fn: func() { l.Post(fn) }}
	l.timers = append(l.timers, mt)
	return func() {
		l.mu.Lock()
		mt.cancelled = true
		l.mu.Unlock()
	}
}

// Go runs work on a worker goroutine and delivers its result to done on
// the loop. On a manual loop work runs inline and done is queued.
func Go[T any](l *Loop, work func() T, done func(T)) {
	if l.manual {
		r := work()
		l.Post(func() { done(r) })
		return
	}
	go func() {
		r := work()
		l.Post(func() { done(r) })
	}()
}
