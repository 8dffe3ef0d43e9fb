// Package daemon wires the configuration, power tracking, sensors and their
// sinks into one running service.
package daemon

import (
	"context"
	"os"
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/rileyhilliard/sensord/internal/assoc"
	"github.com/rileyhilliard/sensord/internal/bus"
	"github.com/rileyhilliard/sensord/internal/config"
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/loop"
	"github.com/rileyhilliard/sensord/internal/power"
	"github.com/rileyhilliard/sensord/internal/publish"
	"github.com/rileyhilliard/sensord/internal/sensor"
)

// Options configures a Daemon. Config and Conn are required.
type Options struct {
	Config *config.Config
	Conn   bus.Conn
	Loop   *loop.Loop
	Log    logger.Logger

	// Opener opens sensor inputs; defaults to the filesystem.
	Opener sensor.Opener
	// Exists reports whether a sensor input is present again; used by rescans.
	Exists func(path string) bool
	// Sinks receive sensor state in addition to the bus.
	Sinks []sensor.Sink
	// PowerListeners are told about every power transition.
	PowerListeners []power.Listener
}

// Daemon owns every sensor of one process. Apart from New and Run, its
// methods must run on the loop goroutine, or before Run starts.
type Daemon struct {
	opts    Options
	cfg     *config.Config
	l       *loop.Loop
	conn    bus.Conn
	log     logger.Logger
	tracker *power.Tracker
	special *power.SpecialMode
	sink    sensor.Sink

	sensors map[string]*sensor.PollingSensor
	skipped []error
	rescan  *loop.Timer
	watches []bus.Subscription
	started bool
}

// InventoryWatch lists the interface namespaces whose changes under the
// inventory trigger an immediate rescan.
var InventoryWatch = []string{
	"xyz.openbmc_project.Configuration",
	"xyz.openbmc_project.Inventory.Item",
}

// New builds a daemon. Nothing touches the bus until Start.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Conn == nil {
		return nil, errors.New(errors.ErrConfig, "daemon needs a config and a bus connection", "")
	}
	if opts.Loop == nil {
		opts.Loop = loop.New()
	}
	if opts.Log == nil {
		opts.Log = logger.NewEnvLogger("daemon")
	}
	if opts.Opener == nil {
		opts.Opener = sensor.OpenFile
	}
	if opts.Exists == nil {
		opts.Exists = fileExists
	}

	cfg := opts.Config
	d := &Daemon{
		opts: opts,
		cfg:  cfg,
		l:    opts.Loop,
		conn: opts.Conn,
		log:  opts.Log,
		tracker: power.NewTracker(opts.Loop, opts.Conn, opts.Log, power.Config{
			Debounce:    cfg.Power.Debounce,
			RetryDelay:  cfg.Power.RetryDelay,
			Retries:     cfg.Power.Retries,
			CallTimeout: cfg.Power.CallTimeout,
		}),
		sensors: map[string]*sensor.PollingSensor{},
		rescan:  opts.Loop.NewTimer(),
	}
	if cfg.SpecialMode.Enabled {
		d.special = power.NewSpecialMode(opts.Loop, opts.Conn, opts.Log, cfg.SpecialMode.AllowValidationUnsecure)
	}

	assocs := assoc.NewPublisher(opts.Loop, opts.Conn, opts.Log)
	assocs.SetInventoryLookup(cfg.Bus.InventoryLookup)
	busSink := publish.NewBusSink(opts.Conn, assocs, opts.Log)
	d.sink = append(sensor.MultiSink{busSink}, opts.Sinks...)
	return d, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Loop returns the event loop the daemon runs on.
func (d *Daemon) Loop() *loop.Loop { return d.l }

// Tracker returns the power-state tracker.
func (d *Daemon) Tracker() *power.Tracker { return d.tracker }

// Start sets up power tracking and special mode, then creates and activates
// every configured sensor. Setup failures of individual power kinds or
// sensors are logged and skipped; only a broken special-mode subscription
// is returned.
func (d *Daemon) Start(ctx context.Context) error {
	if d.started {
		return nil
	}
	d.started = true

	for _, fn := range d.opts.PowerListeners {
		d.tracker.OnChange(fn)
	}
	if err := d.tracker.Setup(ctx); err != nil {
		d.log.Warn("power tracking incomplete: %v", err)
	}

	if d.special != nil {
		d.special.OnChange(func(active bool) {
			if !active {
				d.l.Post(d.clearOverrides)
			}
		})
		if err := d.special.Setup(ctx); err != nil {
			return errors.WrapWithCode(err, errors.ErrBus,
				"Can't follow special mode", "Disable special_mode in the config if the platform has none.")
		}
	}

	cfgs, errs := config.Sensors(d.cfg.Sensors)
	for _, err := range errs {
		d.log.Warn("skipping sensor: %v", err)
	}
	d.skipped = append(d.skipped, errs...)

	for _, sc := range cfgs {
		if err := d.addSensor(sc); err != nil {
			d.log.Warn("skipping sensor %s: %v", sc.Name, err)
			d.skipped = append(d.skipped, err)
		}
	}
	d.log.Info("%d sensor(s) created, %d skipped", len(d.sensors), len(d.skipped))

	d.watchInventory()
	d.armRescan()
	return nil
}

// watchInventory rescans as soon as inventory configuration changes, so a
// hot-plugged device does not wait for the next periodic rescan.
func (d *Daemon) watchInventory() {
	for _, rule := range bus.PropertiesChangedRules(bus.InventoryPath, InventoryWatch) {
		sub, err := d.conn.Subscribe(rule, func(*dbus.Signal) {
			d.l.Post(d.rescanNow)
		})
		if err != nil {
			d.log.Warn("can't watch inventory (%s): %v", rule.Arg0Namespace, err)
			continue
		}
		d.watches = append(d.watches, sub)
	}
}

func (d *Daemon) rescanNow() {
	d.rescan.Reset(0, func() {
		d.Rescan()
		d.armRescan()
	})
}

func (d *Daemon) addSensor(sc sensor.Config) error {
	if err := d.tracker.Validate(sc.PowerState, sc.Slot); err != nil {
		return errors.WrapWithCode(err, errors.ErrPower,
			"Power state "+sc.PowerState.String()+" isn't available for slot",
			"Check power_state and slot, and that the state service is running.")
	}

	opts := []sensor.Option{
		sensor.WithOpener(d.opts.Opener),
		sensor.WithPowerGate(d.tracker),
		sensor.WithLogger(d.log),
		sensor.WithThresholdDelay(d.cfg.Thresholds.Delay),
	}
	if d.special != nil {
		opts = append(opts, sensor.WithOverride(d.special.Active))
	}

	s, err := sensor.NewPolling(d.l, sc, d.sink, opts...)
	if err != nil {
		return err
	}
	d.sensors[s.Name()] = s

	if err := s.Activate(sc.Path, nil); err != nil {
		d.log.Warn("%s: not active yet: %v", s.Name(), err)
	}
	return nil
}

// clearOverrides hands every pinned sensor back to polling.
func (d *Daemon) clearOverrides() {
	for _, s := range d.sensors {
		s.ClearOverride()
	}
}

func (d *Daemon) armRescan() {
	if d.cfg.Rescan <= 0 {
		return
	}
	d.rescan.Reset(d.cfg.Rescan, func() {
		d.Rescan()
		d.armRescan()
	})
}

// Rescan reactivates sensors whose input has come back. It returns the
// number of sensors activated.
func (d *Daemon) Rescan() int {
	n := 0
	for _, name := range d.names() {
		s := d.sensors[name]
		if s.Active() || !d.opts.Exists(s.Path()) {
			continue
		}
		if err := s.Activate("", nil); err != nil {
			d.log.Debug("%s: rescan: %v", name, err)
			continue
		}
		d.log.Info("%s: input %s is back", name, s.Path())
		n++
	}
	return n
}

func (d *Daemon) names() []string {
	names := make([]string, 0, len(d.sensors))
	for name := range d.sensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sensors returns the created sensors sorted by name.
func (d *Daemon) Sensors() []*sensor.PollingSensor {
	out := make([]*sensor.PollingSensor, 0, len(d.sensors))
	for _, name := range d.names() {
		out = append(out, d.sensors[name])
	}
	return out
}

// Sensor returns one sensor by its escaped name.
func (d *Daemon) Sensor(name string) (*sensor.PollingSensor, bool) {
	s, ok := d.sensors[name]
	return s, ok
}

// Skipped lists why configured sensors were not created.
func (d *Daemon) Skipped() []error {
	return append([]error(nil), d.skipped...)
}

// Run starts the daemon on its loop and processes events until ctx is
// done, then tears everything down.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startErr := make(chan error, 1)
	d.l.Post(func() {
		if err := d.Start(ctx); err != nil {
			startErr <- err
			cancel()
		}
	})

	err := d.l.Run(ctx)
	d.Close()
	select {
	case err := <-startErr:
		return err
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close destroys every sensor and drops the power subscriptions. It must not
// race with the loop; Run calls it after the loop stopped.
func (d *Daemon) Close() error {
	d.rescan.Stop()
	var errs []error
	for _, w := range d.watches {
		errs = append(errs, w.Close())
	}
	d.watches = nil
	for _, s := range d.sensors {
		s.Destroy()
	}
	d.sensors = map[string]*sensor.PollingSensor{}

	if d.special != nil {
		errs = append(errs, d.special.Close())
	}
	errs = append(errs, d.tracker.Close())
	return errors.Join(errs...)
}
