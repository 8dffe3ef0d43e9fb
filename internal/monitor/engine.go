package monitor

import (
	"context"
	"math"
	"time"

	"github.com/rileyhilliard/sensord/internal/config"
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/loop"
	"github.com/rileyhilliard/sensord/internal/metrics"
	"github.com/rileyhilliard/sensord/internal/sensor"
)

// waitPoll is how often Wait checks whether every sensor has reported.
const waitPoll = 20 * time.Millisecond

// Options configures an Engine.
type Options struct {
	// Opener opens sensor inputs; defaults to the filesystem. Remote hosts
	// pass an opener that reads over SSH.
	Opener sensor.Opener
	Log    logger.Logger
	Loop   *loop.Loop

	// ThresholdDelay holds back alarm assertions, like the daemon does.
	ThresholdDelay time.Duration
}

// Engine polls sensors without a bus. It backs the read and monitor
// commands: sensor state lands in a metrics sink whose snapshots are safe
// to read from any goroutine. Power gating is not available, so every
// sensor reads regardless of its power_state.
type Engine struct {
	l       *loop.Loop
	sink    *metrics.Sink
	log     logger.Logger
	sensors []*sensor.PollingSensor
	skipped []error
}

// NewEngine creates and activates a polling sensor for every valid entry.
// Entries that fail validation or whose input can't be opened are listed
// by Skipped; the first are left out, the second stay inactive.
func NewEngine(entries []config.SensorConfig, opts Options) (*Engine, error) {
	if opts.Loop == nil {
		opts.Loop = loop.New()
	}
	if opts.Log == nil {
		opts.Log = logger.NewEnvLogger("monitor")
	}
	if opts.Opener == nil {
		opts.Opener = sensor.OpenFile
	}

	e := &Engine{
		l:    opts.Loop,
		sink: metrics.NewSink(false),
		log:  opts.Log,
	}

	cfgs, errs := config.Sensors(entries)
	e.skipped = append(e.skipped, errs...)
	if len(cfgs) == 0 {
		return nil, errors.New(errors.ErrConfig, "No usable sensors configured",
			"Add entries to the 'sensors' section, or run 'sensord init'.")
	}

	for _, sc := range cfgs {
		s, err := sensor.NewPolling(e.l, sc, e.sink,
			sensor.WithOpener(opts.Opener),
			sensor.WithLogger(opts.Log),
			sensor.WithThresholdDelay(opts.ThresholdDelay),
		)
		if err != nil {
			e.skipped = append(e.skipped, err)
			continue
		}
		e.sensors = append(e.sensors, s)
		if err := s.Activate(sc.Path, nil); err != nil {
			e.log.Debug("%s: %v", s.Name(), err)
			e.skipped = append(e.skipped, err)
		}
	}
	return e, nil
}

// Loop returns the loop the sensors run on.
func (e *Engine) Loop() *loop.Loop { return e.l }

// Run processes sensor callbacks until ctx is done, then destroys every
// sensor.
func (e *Engine) Run(ctx context.Context) error {
	err := e.l.Run(ctx)
	e.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close destroys every sensor. It must not race with the loop.
func (e *Engine) Close() {
	for _, s := range e.sensors {
		s.Destroy()
	}
	e.sensors = nil
}

// Ready reports whether every active sensor has produced a value or an
// error. Must run on the loop goroutine.
func (e *Engine) Ready() bool {
	for _, s := range e.sensors {
		if !s.Active() {
			continue
		}
		if math.IsNaN(s.Value()) && s.ErrorCount() == 0 {
			return false
		}
	}
	return true
}

// Wait blocks until Ready holds or ctx is done. The loop must be running.
func (e *Engine) Wait(ctx context.Context) error {
	ticker := time.NewTicker(waitPoll)
	defer ticker.Stop()

	ready := make(chan bool, 1)
	for {
		e.l.Post(func() { ready <- e.Ready() })
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ok := <-ready:
			if ok {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sensors returns a snapshot of every sensor, sorted by name. Safe from any
// goroutine.
func (e *Engine) Sensors() []metrics.Snapshot {
	return e.sink.Sensors()
}

// Skipped lists entries that were left out or could not be activated.
func (e *Engine) Skipped() []error {
	return append([]error(nil), e.skipped...)
}
