package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete sensord.yaml configuration file.
type Config struct {
	Version     int               `yaml:"version" mapstructure:"version"`
	Bus         BusConfig         `yaml:"bus" mapstructure:"bus"`
	Power       PowerConfig       `yaml:"power" mapstructure:"power"`
	Thresholds  ThresholdConfig   `yaml:"thresholds" mapstructure:"thresholds"`
	SpecialMode SpecialModeConfig `yaml:"special_mode" mapstructure:"special_mode"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	// Rescan is how often inactive sensors are retried. 0 disables it.
	Rescan  time.Duration   `yaml:"rescan" mapstructure:"rescan"`
	Hosts   map[string]Host `yaml:"hosts,omitempty" mapstructure:"hosts"`
	Monitor MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Output  OutputConfig    `yaml:"output" mapstructure:"output"`
	Sensors []SensorConfig  `yaml:"sensors" mapstructure:"sensors"`
}

// BusConfig selects the object bus connection.
type BusConfig struct {
	// System uses the system bus; false uses the session bus (development).
	System bool `yaml:"system" mapstructure:"system"`

	// Name is the well-known name requested for the daemon. Empty skips the request.
	Name string `yaml:"name" mapstructure:"name"`

	// InventoryLookup resolves each sensor's chassis through the object
	// mapper. Off, sensors are linked to their configuration's parent only.
	InventoryLookup bool `yaml:"inventory_lookup" mapstructure:"inventory_lookup"`
}

// PowerConfig tunes the power-state tracker.
type PowerConfig struct {
	// Debounce delays every reported off → on transition.
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`

	// RetryDelay separates retries of a failed power-state read.
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`

	// Retries is how many extra reads follow a failed one.
	Retries int `yaml:"retries" mapstructure:"retries"`

	// CallTimeout bounds each bus call.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// ThresholdConfig controls alarm publishing.
type ThresholdConfig struct {
	// Delay holds back assertions; deassertions are published at once.
	Delay time.Duration `yaml:"delay" mapstructure:"delay"`
}

// SpecialModeConfig controls manufacturing-mode value overrides.
type SpecialModeConfig struct {
	// Enabled tracks the platform's special mode at all.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// AllowValidationUnsecure also accepts ValidationUnsecure mode.
	AllowValidationUnsecure bool `yaml:"allow_validation_unsecure" mapstructure:"allow_validation_unsecure"`
}

// HTTPConfig is the metrics and JSON API listener.
type HTTPConfig struct {
	// Listen is the address to serve on, e.g. ":9523". Empty disables HTTP.
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// Host is a remote machine whose sensors can be read over SSH.
type Host struct {
	// SSH connection strings, tried in order until one succeeds.
	// Can be: hostname, user@hostname, or SSH config alias.
	SSH []string `yaml:"ssh" mapstructure:"ssh"`

	// Sensors overrides the sensor list for this host. Empty uses the top-level list.
	Sensors []SensorConfig `yaml:"sensors,omitempty" mapstructure:"sensors"`
}

// MonitorConfig controls the terminal dashboard.
type MonitorConfig struct {
	// Interval is the dashboard refresh rate.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// History is how many samples each sparkline keeps.
	History int `yaml:"history" mapstructure:"history"`
}

// OutputConfig controls terminal output formatting.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	// "auto" disables color when output is piped.
	Color string `yaml:"color" mapstructure:"color"`
}

// SensorConfig is one sensor entry as written in the file.
// Pointer fields are optional and fall back to per-unit defaults.
type SensorConfig struct {
	Name string `yaml:"name" mapstructure:"name"`

	// Label is a human description, e.g. the hwmon label.
	Label string `yaml:"label,omitempty" mapstructure:"label"`

	// Path is the input file polled for raw readings.
	Path string `yaml:"path" mapstructure:"path"`

	// Configuration is the inventory object the sensor was configured from;
	// its parent is used for associations.
	Configuration string `yaml:"configuration,omitempty" mapstructure:"configuration"`

	// Type is the configuration object type, e.g. "pmbus".
	Type string `yaml:"type,omitempty" mapstructure:"type"`

	// Unit is the measured quantity, e.g. "temperature" or "voltage".
	Unit string `yaml:"unit" mapstructure:"unit"`

	// Factor divides the raw reading. Defaults to the unit's scale.
	Factor *float64 `yaml:"factor,omitempty" mapstructure:"factor"`
	Offset float64  `yaml:"offset,omitempty" mapstructure:"offset"`
	Min    *float64 `yaml:"min,omitempty" mapstructure:"min"`
	Max    *float64 `yaml:"max,omitempty" mapstructure:"max"`

	// PollRate is the read interval in seconds. 0 uses the default of 1s.
	PollRate float64 `yaml:"poll_rate,omitempty" mapstructure:"poll_rate"`

	// PowerState gates reading: always, on, biosPost or chassisOn.
	PowerState string `yaml:"power_state,omitempty" mapstructure:"power_state"`

	// Slot selects the host or chassis instance for PowerState.
	Slot int `yaml:"slot,omitempty" mapstructure:"slot"`

	Thresholds []ThresholdEntry `yaml:"thresholds,omitempty" mapstructure:"thresholds"`
}

// ThresholdEntry is one threshold level of a sensor.
type ThresholdEntry struct {
	// Level is warning_low, warning_high, critical_low or critical_high.
	Level      string  `yaml:"level" mapstructure:"level"`
	Value      float64 `yaml:"value" mapstructure:"value"`
	Hysteresis float64 `yaml:"hysteresis,omitempty" mapstructure:"hysteresis"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Bus: BusConfig{
			System:          true,
			Name:            DefaultBusName,
			InventoryLookup: true,
		},
		Power: PowerConfig{
			Debounce:    10 * time.Second,
			RetryDelay:  15 * time.Second,
			Retries:     2,
			CallTimeout: 5 * time.Second,
		},
		Thresholds: ThresholdConfig{
			Delay: 5 * time.Second,
		},
		SpecialMode: SpecialModeConfig{
			Enabled: true,
		},
		HTTP: HTTPConfig{
			Listen: DefaultListen,
		},
		Rescan: 30 * time.Second,
		Hosts:  make(map[string]Host),
		Monitor: MonitorConfig{
			Interval: time.Second,
			History:  60,
		},
		Output: OutputConfig{
			Color: "auto",
		},
		Sensors: []SensorConfig{},
	}
}
