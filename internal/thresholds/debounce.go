package thresholds

import (
	"time"

	"github.com/rileyhilliard/sensord/internal/loop"
)

// DefaultDelay is how long an assertion waits before it is published.
const DefaultDelay = 5 * time.Second

// Debouncer serializes threshold checks for one sensor.
//
// A check with nothing pending evaluates right away. Flips that only
// deassert are applied and published immediately. A check that would assert
// anything arms the delay timer instead; when it fires the sensor's current
// value is evaluated again and that result is published. Checks arriving
// while the timer is armed are dropped. Must be used on the loop goroutine.
type Debouncer struct {
	set     *Set
	timer   *loop.Timer
	delay   time.Duration
	current func() (float64, bool)
	publish func([]Event)
}

// NewDebouncer creates a debouncer for set. current returns the value to
// re-evaluate when the delay expires, and false when the check should be
// skipped. publish receives every applied batch of flips.
func NewDebouncer(l *loop.Loop, set *Set, delay time.Duration, current func() (float64, bool), publish func([]Event)) *Debouncer {
	return &Debouncer{
		set:     set,
		timer:   l.NewTimer(),
		delay:   delay,
		current: current,
		publish: publish,
	}
}

// Check evaluates v against the set.
func (d *Debouncer) Check(v float64) {
	if d.timer.Pending() {
		return
	}
	events := d.set.Evaluate(v)
	if len(events) == 0 {
		return
	}
	if d.delay <= 0 || !anyAsserted(events) {
		d.set.Apply(events)
		d.publish(events)
		return
	}
	d.timer.Reset(d.delay, d.expire)
}

func (d *Debouncer) expire() {
	v, ok := d.current()
	if !ok {
		return
	}
	if events := d.set.Check(v); len(events) > 0 {
		d.publish(events)
	}
}

// Pending reports whether a delayed check is armed.
func (d *Debouncer) Pending() bool {
	return d.timer.Pending()
}

// Stop drops any delayed check.
func (d *Debouncer) Stop() {
	d.timer.Stop()
}

func anyAsserted(events []Event) bool {
	for _, e := range events {
		if e.Asserted {
			return true
		}
	}
	return false
}
