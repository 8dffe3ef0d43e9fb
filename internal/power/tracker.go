package power

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/rileyhilliard/sensord/internal/bus"
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/loop"
)

// ErrNotInitialized is returned for a (kind, slot) that has no subscription.
var ErrNotInitialized = stderrors.New("power state not initialized")

type key struct {
	kind Kind
	slot int
}

type state struct {
	kind     Kind
	slot     int
	path     dbus.ObjectPath
	on       bool
	debounce *loop.Timer
	retry    *loop.Timer
	sub      bus.Subscription
}

// Listener is told about every applied transition.
type Listener func(kind Kind, slot int, on bool)

// Tracker is the process-wide power-state registry.
//
// State is created by Setup and only ever touched on the loop goroutine.
// Sensors read it through ReadingStateGood.
type Tracker struct {
	l    *loop.Loop
	conn bus.Conn
	log  logger.Logger
	cfg  Config
	ctx  context.Context

	states    map[key]*state
	listeners []Listener
}

// NewTracker creates an empty tracker.
func NewTracker(l *loop.Loop, conn bus.Conn, log logger.Logger, cfg Config) *Tracker {
	if log == nil {
		log = logger.Noop()
	}
	return &Tracker{
		l:      l,
		conn:   conn,
		log:    log,
		cfg:    cfg,
		ctx:    context.Background(),
		states: map[key]*state{},
	}
}

// OnChange registers fn for every applied transition.
func (t *Tracker) OnChange(fn Listener) {
	t.listeners = append(t.listeners, fn)
}

// Setup discovers host and chassis slots through the object mapper,
// subscribes to their state changes and starts an initial read of each.
// Host and chassis are set up independently: a failure for one is returned
// (joined) but does not stop the other. Must run before the loop starts or
// on the loop goroutine.
func (t *Tracker) Setup(ctx context.Context) error {
	t.ctx = ctx
	hostErr := t.setupKind(ctx, KindHost, KindPost)
	chassisErr := t.setupKind(ctx, KindChassis)
	return errors.Join(hostErr, chassisErr)
}

// setupKind enumerates objects for primary and tracks primary plus any
// extra kinds on the same paths.
func (t *Tracker) setupKind(ctx context.Context, primary Kind, extra ...Kind) error {
	info := kinds[primary]
	callCtx, cancel := t.callContext(ctx)
	defer cancel()

	paths, err := bus.GetSubTreePaths(callCtx, t.conn, StateNamespace, 1, []string{info.iface})
	if err != nil {
		t.log.Error("can't enumerate %s state objects: %v", primary, err)
		return errors.WrapWithCode(err, errors.ErrPower,
			fmt.Sprintf("Can't enumerate %s state objects", primary),
			"Is the object mapper running?")
	}

	slots := make([]int, 0, len(paths))
	for _, p := range paths {
		slot, err := SlotFromPath(p)
		if err != nil {
			t.log.Error("%s setup aborted: %v", primary, err)
			return errors.WrapWithCode(err, errors.ErrPower,
				fmt.Sprintf("Can't derive a slot from %s", p), "")
		}
		slots = append(slots, slot)
	}

	for i, p := range paths {
		for _, k := range append([]Kind{primary}, extra...) {
			if err := t.track(k, slots[i], dbus.ObjectPath(p)); err != nil {
				t.log.Error("can't subscribe to %s%d: %v", k, slots[i], err)
				continue
			}
			t.Refresh(k, slots[i])
		}
	}
	t.log.Debug("%s: tracking %d slot(s)", primary, len(slots))
	return nil
}

func (t *Tracker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.cfg.CallTimeout)
}

// SlotFromPath returns the trailing integer of an object path.
func SlotFromPath(p string) (int, error) {
	end := len(p)
	start := end
	for start > 0 && p[start-1] >= '0' && p[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, fmt.Errorf("object path %q has no trailing slot number", p)
	}
	return strconv.Atoi(p[start:end])
}

func (t *Tracker) track(k Kind, slot int, path dbus.ObjectPath) error {
	if _, ok := t.states[key{k, slot}]; ok {
		return nil
	}
	st := &state{
		kind:     k,
		slot:     slot,
		path:     path,
		debounce: t.l.NewTimer(),
		retry:    t.l.NewTimer(),
	}
	sub, err := t.conn.Subscribe(bus.PropertiesChanged(path, kinds[k].iface), func(sig *dbus.Signal) {
		t.l.Post(func() { t.handleSignal(st, sig) })
	})
	if err != nil {
		return err
	}
	st.sub = sub
	t.states[key{k, slot}] = st
	return nil
}

// QueryState returns the cached state of (kind, slot).
func (t *Tracker) QueryState(k Kind, slot int) (bool, error) {
	st, ok := t.states[key{k, slot}]
	if !ok {
		return false, fmt.Errorf("%s%d: %w", k, slot, ErrNotInitialized)
	}
	return st.on, nil
}

// Validate checks that every state req depends on is tracked for slot.
func (t *Tracker) Validate(req Requirement, slot int) error {
	for _, k := range kindsFor(req) {
		if _, err := t.QueryState(k, slot); err != nil {
			return err
		}
	}
	return nil
}

// ReadingStateGood reports whether a sensor with requirement req on slot
// may be read now. Untracked states count as off.
func (t *Tracker) ReadingStateGood(req Requirement, slot int) bool {
	for _, k := range kindsFor(req) {
		on, err := t.QueryState(k, slot)
		if err != nil || !on {
			return false
		}
	}
	return true
}

// Refresh reads (kind, slot) from the bus without blocking. Failed reads
// are retried Config.Retries times, Config.RetryDelay apart; after that the
// cached value is kept.
func (t *Tracker) Refresh(k Kind, slot int) {
	st, ok := t.states[key{k, slot}]
	if !ok {
		t.log.Warn("refresh of untracked %s%d ignored", k, slot)
		return
	}
	t.refresh(st, t.cfg.Retries)
}

type readResult struct {
	v   dbus.Variant
	err error
}

func (t *Tracker) refresh(st *state, retries int) {
	info := kinds[st.kind]
	dest := info.busName + strconv.Itoa(st.slot)
	ctx := t.ctx

	loop.Go(t.l, func() readResult {
		callCtx, cancel := t.callContext(ctx)
		defer cancel()
		v, err := t.conn.GetProperty(callCtx, dest, st.path, info.iface, info.property)
		return readResult{v: v, err: err}
	}, func(r readResult) {
		if t.states[key{st.kind, st.slot}] != st {
			return
		}
		if r.err != nil {
			if retries > 0 {
				t.log.Debug("reading %s%d failed, %d retries left: %v", st.kind, st.slot, retries, r.err)
				st.retry.Reset(t.cfg.RetryDelay, func() { t.refresh(st, retries-1) })
				return
			}
			// power control commonly starts after us; the signal will catch up
			t.log.Warn("error getting %s%d status: %v", st.kind, st.slot, r.err)
			return
		}
		s, ok := r.v.Value().(string)
		if !ok {
			t.log.Warn("%s%d: %s is %s, not a string", st.kind, st.slot, info.property, r.v.Signature())
			return
		}
		st.debounce.Stop()
		t.apply(st, info.on(s))
	})
}

func (t *Tracker) handleSignal(st *state, sig *dbus.Signal) {
	if t.states[key{st.kind, st.slot}] != st {
		return
	}
	info := kinds[st.kind]
	iface, changed, ok := bus.PropertiesChangedBody(sig)
	if !ok {
		t.log.Warn("%s%d: malformed PropertiesChanged payload ignored", st.kind, st.slot)
		return
	}
	if iface != info.iface {
		return
	}
	raw, present := changed[info.property]
	if !present {
		return
	}
	value, ok := raw.Value().(string)
	if !ok {
		t.log.Warn("%s%d: %s is %s, not a string; ignored", st.kind, st.slot, info.property, raw.Signature())
		return
	}
	t.transition(st, info.on(value))
}

// transition applies off at once and delays on by the debounce window.
// Any transition restarts a pending debounce.
func (t *Tracker) transition(st *state, on bool) {
	if !on {
		st.debounce.Stop()
		t.apply(st, false)
		return
	}
	if t.cfg.Debounce <= 0 {
		t.apply(st, true)
		return
	}
	st.debounce.Reset(t.cfg.Debounce, func() { t.apply(st, true) })
}

func (t *Tracker) apply(st *state, on bool) {
	if st.on != on {
		t.log.Info("%s%d power %s", st.kind, st.slot, onOff(on))
	}
	st.on = on
	for _, fn := range t.listeners {
		fn(st.kind, st.slot, on)
	}
}

// Slots returns the tracked slots of kind k.
func (t *Tracker) Slots(k Kind) []int {
	var out []int
	for key := range t.states {
		if key.kind == k {
			out = append(out, key.slot)
		}
	}
	sort.Ints(out)
	return out
}

// Close drops every subscription and pending timer.
func (t *Tracker) Close() error {
	var errs []error
	for k, st := range t.states {
		st.debounce.Stop()
		st.retry.Stop()
		if st.sub != nil {
			if err := st.sub.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(t.states, k)
	}
	return errors.Join(errs...)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// String describes the tracked states, e.g. "host0=on post0=off".
func (t *Tracker) String() string {
	var parts []string
	for _, k := range []Kind{KindHost, KindPost, KindChassis} {
		for _, slot := range t.Slots(k) {
			parts = append(parts, fmt.Sprintf("%s%d=%s", k, slot, onOff(t.states[key{k, slot}].on)))
		}
	}
	return strings.Join(parts, " ")
}
