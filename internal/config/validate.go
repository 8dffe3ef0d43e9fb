package config

import (
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/power"
	"github.com/rileyhilliard/sensord/internal/sensor"
	"github.com/rileyhilliard/sensord/internal/thresholds"
)

// limits are the default bounds and raw scale per unit, matching the hwmon
// ABI (millidegrees, millivolts, milliamps, microwatts, microjoules).
type limits struct {
	min, max, factor float64
}

var unitLimits = map[string]limits{
	"temperature": {-128, 127, 1000},
	"voltage":     {0, 255, 1000},
	"current":     {0, 255, 1000},
	"power":       {0, 3000, 1000000},
	"energy":      {0, math.MaxUint32, 1000000},
	"fan_tach":    {0, 25000, 1},
	"fan_pwm":     {0, 100, 1},
	"utilization": {0, 100, 1},
	"airflow":     {0, 1000, 1},
	"altitude":    {-500, 10000, 1},
	"humidity":    {0, 100, 1000},
	"pressure":    {0, 200000, 1},
}

// Validate checks the daemon settings for errors and returns structured
// error messages. Individual sensors are checked by Resolve so one bad
// entry doesn't stop the rest.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but sensord only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade sensord or lower the config version.")
	}

	if err := validatePower(cfg.Power); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'power' section in sensord.yaml.")
	}

	if cfg.Thresholds.Delay < 0 {
		return errors.New(errors.ErrConfig,
			"thresholds.delay can't be negative",
			"Use 0 to publish alarms immediately.")
	}

	if cfg.Rescan < 0 {
		return errors.New(errors.ErrConfig,
			"rescan can't be negative",
			"Use 0 to disable rescanning.")
	}

	if cfg.HTTP.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.HTTP.Listen); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("http.listen '%s' isn't a host:port address", cfg.HTTP.Listen),
				"Use something like ':9523' or '127.0.0.1:9523', or leave it empty to disable HTTP.")
		}
	}

	if err := validateMonitor(cfg.Monitor); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'monitor' section in sensord.yaml.")
	}

	if err := validateOutput(cfg.Output); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'output' section in sensord.yaml.")
	}

	for name, host := range cfg.Hosts {
		if err := validateHost(name, host); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'hosts' section in sensord.yaml.")
		}
	}

	return nil
}

func validatePower(p PowerConfig) error {
	switch {
	case p.Debounce < 0:
		return fmt.Errorf("power.debounce can't be negative (got %s)", p.Debounce)
	case p.RetryDelay < 0:
		return fmt.Errorf("power.retry_delay can't be negative (got %s)", p.RetryDelay)
	case p.Retries < 0:
		return fmt.Errorf("power.retries can't be negative (got %d)", p.Retries)
	case p.CallTimeout < 0:
		return fmt.Errorf("power.call_timeout can't be negative (got %s)", p.CallTimeout)
	}
	return nil
}

func validateMonitor(m MonitorConfig) error {
	if m.Interval != 0 && m.Interval < 100*time.Millisecond {
		return fmt.Errorf("monitor.interval %s is too short, use at least 100ms", m.Interval)
	}
	if m.History < 0 {
		return fmt.Errorf("monitor.history can't be negative")
	}
	return nil
}

func validateOutput(o OutputConfig) error {
	switch o.Color {
	case "", "auto", "always", "never":
		return nil
	}
	return fmt.Errorf("output.color '%s' isn't valid. Use 'auto', 'always', or 'never'", o.Color)
}

// validateHost checks a single host configuration.
func validateHost(name string, host Host) error {
	if len(host.SSH) == 0 {
		return fmt.Errorf("host '%s' needs at least one SSH connection (like 'root@bmc')", name)
	}
	for i, ssh := range host.SSH {
		if strings.TrimSpace(ssh) == "" {
			return fmt.Errorf("host '%s' has an empty SSH entry at position %d", name, i)
		}
	}
	return nil
}

// Resolve turns one file entry into a sensor configuration, applying the
// unit's default bounds and scale.
func Resolve(sc SensorConfig) (sensor.Config, error) {
	fail := func(format string, args ...interface{}) (sensor.Config, error) {
		label := sc.Name
		if label == "" {
			label = sc.Path
		}
		return sensor.Config{}, errors.New(errors.ErrConfig,
			fmt.Sprintf("sensor '%s': %s", label, fmt.Sprintf(format, args...)),
			"Fix or remove this entry in the 'sensors' section.")
	}

	if strings.TrimSpace(sc.Name) == "" {
		return fail("needs a name")
	}
	if sc.Path == "" {
		return fail("needs a path to read from")
	}

	unit, err := sensor.ParseUnit(sc.Unit)
	if err != nil {
		return fail("%v", err)
	}
	lim := unitLimits[unit.Name]

	req, err := power.ParseRequirement(sc.PowerState)
	if err != nil {
		return fail("%v", err)
	}
	if sc.Slot < 0 {
		return fail("slot can't be negative")
	}
	if sc.PollRate < 0 {
		return fail("poll_rate can't be negative")
	}

	cfg := sensor.Config{
		Name:              sc.Name,
		Label:             sc.Label,
		ObjectType:        sc.Type,
		ConfigurationPath: sc.Configuration,
		Unit:              unit,
		Path:              sc.Path,
		Factor:            valueOr(sc.Factor, lim.factor),
		Offset:            sc.Offset,
		Min:               valueOr(sc.Min, lim.min),
		Max:               valueOr(sc.Max, lim.max),
		PollRate:          time.Duration(sc.PollRate * float64(time.Second)),
		PowerState:        req,
		Slot:              sc.Slot,
	}

	for _, t := range sc.Thresholds {
		sev, dir, err := thresholds.ParseLevel(t.Level)
		if err != nil {
			return fail("%v", err)
		}
		cfg.Thresholds = append(cfg.Thresholds, thresholds.Threshold{
			Severity:   sev,
			Direction:  dir,
			Value:      t.Value,
			Hysteresis: t.Hysteresis,
		})
	}
	if _, err := thresholds.NewSet(cfg.Thresholds); err != nil {
		return fail("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return fail("%v", err)
	}
	return cfg, nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Sensors resolves every sensor entry. Invalid entries and duplicate names
// are left out and reported in the returned errors, in file order.
func Sensors(entries []SensorConfig) ([]sensor.Config, []error) {
	var (
		out  []sensor.Config
		errs []error
		seen = map[string]bool{}
	)
	for _, sc := range entries {
		cfg, err := Resolve(sc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		key := sensor.EscapeName(cfg.Name)
		if seen[key] {
			errs = append(errs, errors.New(errors.ErrConfig,
				fmt.Sprintf("sensor '%s' is defined more than once", cfg.Name),
				"Sensor names must be unique once spaces and punctuation become underscores."))
			continue
		}
		seen[key] = true
		out = append(out, cfg)
	}
	return out, errs
}
