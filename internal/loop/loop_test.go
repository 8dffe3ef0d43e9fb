package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPostRunsInOrder(t *testing.T) {
	l := NewManual(epoch)
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}

	assert.Empty(t, got, "nothing runs until the loop is drained")
	assert.Equal(t, 3, l.RunPending())
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestRunPendingDrainsNestedPosts(t *testing.T) {
	l := NewManual(epoch)
	var got []string
	l.Post(func() {
		got = append(got, "outer")
		l.Post(func() { got = append(got, "inner") })
	})

	l.RunPending()
	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestTimerFiresAtDeadline(t *testing.T) {
	l := NewManual(epoch)
	timer := l.NewTimer()
	var firedAt time.Time
	timer.Reset(10*time.Second, func() { firedAt = l.Now() })

	assert.True(t, timer.Pending())
	l.Advance(9 * time.Second)
	assert.True(t, firedAt.IsZero())

	l.Advance(time.Second)
	assert.Equal(t, epoch.Add(10*time.Second), firedAt)
	assert.False(t, timer.Pending())
}

func TestTimerStopDropsFiring(t *testing.T) {
	l := NewManual(epoch)
	timer := l.NewTimer()
	fired := false
	timer.Reset(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop has nothing to cancel")
	l.Advance(time.Minute)

	assert.False(t, fired)
	assert.Equal(t, 0, l.PendingTimers())
}

func TestTimerResetReplacesCallback(t *testing.T) {
	l := NewManual(epoch)
	timer := l.NewTimer()
	var got []string

	timer.Reset(5*time.Second, func() { got = append(got, "first") })
	l.Advance(3 * time.Second)
	cancelled := timer.Reset(5*time.Second, func() { got = append(got, "second") })
	assert.True(t, cancelled)

	l.Advance(4 * time.Second)
	assert.Empty(t, got, "restarted wait has not elapsed yet")

	l.Advance(time.Second)
	assert.Equal(t, []string{"second"}, got)
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	l := NewManual(epoch)
	var got []string
	a, b, c := l.NewTimer(), l.NewTimer(), l.NewTimer()
	a.Reset(3*time.Second, func() { got = append(got, "a") })
	b.Reset(1*time.Second, func() { got = append(got, "b") })
	c.Reset(2*time.Second, func() { got = append(got, "c") })

	l.Advance(5 * time.Second)
	assert.Equal(t, []string{"b", "c", "a"}, got)
	assert.Equal(t, epoch.Add(5*time.Second), l.Now())
}

func TestTimerRearmedFromCallback(t *testing.T) {
	l := NewManual(epoch)
	timer := l.NewTimer()
	count := 0
	var tick func()
	tick = func() {
		count++
		timer.Reset(time.Second, tick)
	}
	timer.Reset(time.Second, tick)

	l.Advance(5 * time.Second)
	assert.Equal(t, 5, count)
}

func TestGoDeliversOnLoop(t *testing.T) {
	l := NewManual(epoch)
	var got int
	Go(l, func() int { return 42 }, func(v int) { got = v })

	assert.Zero(t, got, "completion is queued, not run inline")
	l.RunPending()
	assert.Equal(t, 42, got)
}

func TestRunOnManualLoop(t *testing.T) {
	l := NewManual(epoch)
	assert.ErrorIs(t, l.Run(context.Background()), ErrManual)
}

func TestRunWallClock(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var fired atomic.Int32
	result := make(chan int, 1)
	l.Post(func() {
		timer := l.NewTimer()
		timer.Reset(10*time.Millisecond, func() {
			fired.Add(1)
			Go(l, func() int { return 7 }, func(v int) { result <- v })
		})
	})

	select {
	case v := <-result:
		assert.Equal(t, 7, v)
	case <-time.After(2 * time.Second):
		t.Fatal("timer callback never delivered")
	}
	assert.Equal(t, int32(1), fired.Load())

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
