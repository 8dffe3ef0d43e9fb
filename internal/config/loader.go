package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rileyhilliard/sensord/internal/errors"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "sensord.yaml"
	// EnvPrefix prefixes environment overrides, e.g. SENSORD_HTTP_LISTEN.
	EnvPrefix = "SENSORD"
	// DefaultBusName is the well-known bus name the daemon requests.
	DefaultBusName = "xyz.openbmc_project.Sensord"
	// DefaultListen is the default metrics address.
	DefaultListen = ":9523"
)

// SystemConfigPath is the system-wide config location.
var SystemConfigPath = "/etc/sensord/" + ConfigFileName

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(ExpandTilde(path))

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'sensord init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. sensord.yaml in current directory
// 3. /etc/sensord/sensord.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		explicit = ExpandTilde(explicit)
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}
	for _, candidate := range []string{filepath.Join(cwd, ConfigFileName), SystemConfigPath} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// LoadOrDefault loads config from the found path, or returns defaults if not
// found. Environment overrides apply either way.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		cfg, err := parseConfig(newViper(), "environment")
		return cfg, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}
	if cfg.Hosts == nil {
		cfg.Hosts = make(map[string]Host)
	}

	for i := range cfg.Sensors {
		cfg.Sensors[i].Path = ExpandTilde(cfg.Sensors[i].Path)
	}
	return cfg, nil
}

// setDefaults registers every scalar key so environment overrides are seen
// by Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("bus.system", d.Bus.System)
	v.SetDefault("bus.name", d.Bus.Name)
	v.SetDefault("bus.inventory_lookup", d.Bus.InventoryLookup)
	v.SetDefault("power.debounce", d.Power.Debounce)
	v.SetDefault("power.retry_delay", d.Power.RetryDelay)
	v.SetDefault("power.retries", d.Power.Retries)
	v.SetDefault("power.call_timeout", d.Power.CallTimeout)
	v.SetDefault("thresholds.delay", d.Thresholds.Delay)
	v.SetDefault("special_mode.enabled", d.SpecialMode.Enabled)
	v.SetDefault("special_mode.allow_validation_unsecure", d.SpecialMode.AllowValidationUnsecure)
	v.SetDefault("http.listen", d.HTTP.Listen)
	v.SetDefault("rescan", d.Rescan)
	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.history", d.Monitor.History)
	v.SetDefault("output.color", d.Output.Color)
}

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Does not support ~username syntax - just ~ for the current user.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
