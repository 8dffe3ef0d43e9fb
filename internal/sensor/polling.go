package sensor

import (
	"math"
	"time"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/loop"
	"github.com/rileyhilliard/sensord/internal/thresholds"
)

// readSize is the most a single read asks for. Sensor files hold one short
// decimal line.
const readSize = 127

// Option configures a PollingSensor.
type Option func(*options)

type options struct {
	opener         Opener
	gate           PowerGate
	log            logger.Logger
	thresholdDelay time.Duration
	overrideGate   func() bool
}

// WithOpener replaces OpenFile, e.g. with a remote or fake source.
func WithOpener(o Opener) Option {
	return func(opts *options) { opts.opener = o }
}

// WithPowerGate gates reads on host power. Defaults to AlwaysGood.
func WithPowerGate(g PowerGate) Option {
	return func(opts *options) { opts.gate = g }
}

func WithLogger(l logger.Logger) Option {
	return func(opts *options) { opts.log = l }
}

// WithThresholdDelay sets how long assertions wait before publishing.
func WithThresholdDelay(d time.Duration) Option {
	return func(opts *options) { opts.thresholdDelay = d }
}

// WithOverride lets sinks accept external value writes while allowed
// returns true. allowed is called from the writer's goroutine.
func WithOverride(allowed func() bool) Option {
	return func(opts *options) { opts.overrideGate = allowed }
}

// PollingSensor reads its source on a fixed interval.
//
// Inactive sensors hold no source. Activate opens it and starts the
// read → parse → publish → wait cycle; a new read is only issued after the
// previous cycle completed. Every activation has its own generation, and
// read completions or timer firings from an older generation do nothing, so
// Deactivate and Destroy may run while a read is outstanding.
//
// All methods must be called on the loop goroutine.
type PollingSensor struct {
	*Sensor

	opener   Opener
	pollRate time.Duration
	factor   float64
	offset   float64

	path      string
	dev       Device
	src       Source
	timer     *loop.Timer
	gen       uint64
	active    bool
	destroyed bool
	reads     int
	failing   bool
}

// NewPolling validates cfg, registers the sensor with sink and returns it
// inactive.
func NewPolling(l *loop.Loop, cfg Config, sink Sink, opts ...Option) (*PollingSensor, error) {
	o := options{
		opener:         OpenFile,
		gate:           AlwaysGood,
		log:            logger.Noop(),
		thresholdDelay: thresholds.DefaultDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg.Name = EscapeName(cfg.Name)
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid sensor configuration", "Fix the sensor entry in the config file.")
	}
	pollRate := cfg.PollRate
	if pollRate == 0 {
		pollRate = DefaultPollRate
	}

	desc := Descriptor{
		Name:              cfg.Name,
		Label:             cfg.Label,
		ObjectType:        cfg.ObjectType,
		ConfigurationPath: cfg.ConfigurationPath,
		Unit:              cfg.Unit,
		Min:               cfg.Min,
		Max:               cfg.Max,
		PowerState:        cfg.PowerState,
		Slot:              cfg.Slot,
		Thresholds:        cfg.Thresholds,
	}
	base, err := newSensor(l, desc, sink, o.gate, o.log, o.thresholdDelay)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid thresholds", "Each level may be configured once, with hysteresis >= 0.")
	}

	p := &PollingSensor{
		Sensor:   base,
		opener:   o.opener,
		pollRate: pollRate,
		factor:   cfg.Factor,
		offset:   cfg.Offset,
		path:     cfg.Path,
		timer:    l.NewTimer(),
	}
	if o.overrideGate != nil {
		allowed := o.overrideGate
		p.desc.Override = func(v float64) error {
			if !allowed() {
				return ErrOverrideDenied
			}
			l.Post(func() {
				if !p.destroyed {
					p.SetExternalValue(v)
				}
			})
			return nil
		}
	}

	if err := sink.Register(p.desc); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSensor,
			"Can't publish sensor "+cfg.Name, "")
	}
	return p, nil
}

// Active reports whether the sensor holds an open source.
func (p *PollingSensor) Active() bool { return p.active }

// Path is the input file of the current (or last) activation.
func (p *PollingSensor) Path() string { return p.path }

// Device is the handle of the current activation; nil when inactive.
func (p *PollingSensor) Device() Device { return p.dev }

// Reads counts physical reads issued.
func (p *PollingSensor) Reads() int { return p.reads }

// PollRate is the wait between cycles.
func (p *PollingSensor) PollRate() time.Duration { return p.pollRate }

// Activate opens path and starts polling. An empty path reuses the last one.
// Activating an active sensor does nothing.
func (p *PollingSensor) Activate(path string, dev Device) error {
	if p.destroyed {
		return ErrDestroyed
	}
	if p.active {
		p.log.Debug("%s: already active, activate skipped", p.desc.Name)
		return nil
	}
	if path == "" {
		path = p.path
	}
	src, err := p.opener(path)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrIO,
			"Can't open "+path+" for "+p.desc.Name, "Check the device is bound and the path exists.")
	}

	p.path = path
	p.dev = dev
	p.src = src
	p.active = true
	p.failing = false
	p.gen++
	p.markAvailable(true)

	gen := p.gen
	p.timer.Reset(0, func() { p.read(gen) })
	return nil
}

// Deactivate stops polling, closes the source and marks the sensor
// unavailable. Safe to call repeatedly.
func (p *PollingSensor) Deactivate() {
	if !p.active {
		return
	}
	p.stop()
	p.markAvailable(false)
}

// stop cancels the timer and closes the source. Outstanding completions
// become stale.
func (p *PollingSensor) stop() {
	p.gen++
	p.active = false
	p.timer.Stop()
	p.checks.Stop()
	if p.src != nil {
		if err := p.src.Close(); err != nil {
			p.log.Debug("%s: closing %s: %v", p.desc.Name, p.path, err)
		}
		p.src = nil
	}
	p.dev = nil
}

// Destroy stops the sensor for good and unregisters it from its sink.
func (p *PollingSensor) Destroy() {
	if p.destroyed {
		return
	}
	p.stop()
	p.destroyed = true
	if err := p.sink.Unregister(p.desc.Name); err != nil {
		p.log.Warn("%s: unregister: %v", p.desc.Name, err)
	}
}

type readResult struct {
	n   int
	err error
}

func (p *PollingSensor) read(gen uint64) {
	if gen != p.gen {
		return
	}
	if !p.readingStateGood() {
		p.markAvailable(false)
		p.restartRead()
		return
	}

	src := p.src
	buf := make([]byte, readSize+1)
	p.reads++
	loop.Go(p.l, func() readResult {
		n, err := src.ReadAt(buf[:readSize], 0)
		return readResult{n: n, err: err}
	}, func(r readResult) {
		p.handleResponse(gen, buf, r)
	})
}

func (p *PollingSensor) handleResponse(gen uint64, buf []byte, r readResult) {
	if gen != p.gen {
		return
	}

	switch classify(r.n, r.err) {
	case outcomeCancelled:
		p.log.Debug("%s: read cancelled, stopping", p.desc.Name)
		p.stop()
		return
	case outcomeGone:
		p.log.Warn("%s: device gone (%v), deactivating", p.desc.Name, r.err)
		p.Deactivate()
		return
	case outcomeFailed:
		p.incrementError()
		if !p.failing && p.readingStateGood() {
			p.log.Warn("%s: read of %s failed: %v", p.desc.Name, p.path, readErr(r))
		}
		p.failing = true
		p.restartRead()
		return
	}

	raw, err := ParseReading(buf[:r.n])
	if err != nil {
		p.log.Warn("%s: could not parse input from %s: %v", p.desc.Name, p.path, err)
		p.incrementError()
		p.restartRead()
		return
	}

	p.raw = raw
	p.errorCount = 0
	p.failing = false
	if !p.overridden {
		p.markAvailable(true)
		p.updateValue(Convert(raw, p.factor, p.offset, p.desc.Min, p.desc.Max))
	}
	p.restartRead()
}

func (p *PollingSensor) restartRead() {
	if !p.active {
		return
	}
	gen := p.gen
	p.timer.Reset(p.pollRate, func() { p.read(gen) })
}

func readErr(r readResult) error {
	if r.err != nil {
		return r.err
	}
	return errors.New(errors.ErrIO, "zero-byte read", "")
}

// Convert applies the sensor's conversion and bounds to a raw reading.
func Convert(raw, factor, offset, min, max float64) float64 {
	return math.Min(math.Max(raw/factor+offset, min), max)
}
