package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/rileyhilliard/sensord/internal/config"
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/sensor"
	"github.com/rileyhilliard/sensord/internal/ui"
	"github.com/rileyhilliard/sensord/pkg/sshutil"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Path           string // Config path; defaults to ./sensord.yaml
	SSH            string // SSH alias of a remote host to add
	Overwrite      bool   // Overwrite existing config without asking
	NonInteractive bool   // Skip prompts, use defaults
}

// initAnswers is what the init form collects.
type initAnswers struct {
	SessionBus bool
	Listen     string
	HostName   string
	HostSSH    string
	Sensor     *config.SensorConfig
}

const noHost = "(none)"

func initCommand(opts InitOptions) error {
	path := opts.Path
	if path == "" {
		path = config.ConfigFileName
	}

	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", path),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", path)).
				Value(&overwrite),
		))
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	answers := initAnswers{Listen: config.DefaultListen}
	if opts.SSH != "" {
		answers.HostName = opts.SSH
		answers.HostSSH = opts.SSH
	}
	if !opts.NonInteractive {
		if err := askInit(&answers); err != nil {
			return err
		}
	}

	if answers.HostSSH != "" {
		if err := probeHost(answers.HostSSH, opts.NonInteractive); err != nil {
			return err
		}
	}

	if err := writeInitConfig(path, answers); err != nil {
		return err
	}

	fmt.Printf("%s Created %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), path)
	fmt.Println(ui.MutedStyle().Render("Next: add sensors, then run 'sensord check'."))
	return nil
}

// askInit runs the interactive form. Pre-filled answers are kept as defaults.
func askInit(a *initAnswers) error {
	hostChoice := a.HostSSH
	if hostChoice == "" {
		hostChoice = noHost
	}
	var addSensor bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Use the session bus?").
				Description("Pick yes for development; the daemon normally runs on the system bus.").
				Value(&a.SessionBus),
			huh.NewInput().
				Title("Metrics listen address").
				Description("Leave empty to disable the HTTP server").
				Placeholder(config.DefaultListen).
				Value(&a.Listen),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Remote host for 'read --host' and 'monitor --host'").
				Options(hostOptions()...).
				Value(&hostChoice),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Add a first sensor now?").
				Value(&addSensor),
		),
	)
	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or use --non-interactive flag")
	}

	if hostChoice != noHost {
		a.HostSSH = hostChoice
		if a.HostName == "" {
			a.HostName = hostChoice
		}
	}

	if addSensor {
		sc, err := askSensor()
		if err != nil {
			return err
		}
		a.Sensor = sc
	}
	return nil
}

func hostOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption(noHost, noHost)}
	hosts, err := sshutil.ConfigHosts()
	if err != nil {
		return opts
	}
	for _, h := range hosts {
		opts = append(opts, huh.NewOption(h.Alias+" ("+h.Description()+")", h.Alias))
	}
	return opts
}

func askSensor() (*config.SensorConfig, error) {
	sc := &config.SensorConfig{Unit: "temperature"}

	unitOpts := make([]huh.Option[string], 0)
	for _, u := range sensor.UnitNames() {
		unitOpts = append(unitOpts, huh.NewOption(u, u))
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Sensor name").
			Placeholder("CPU0_Temp").
			Value(&sc.Name).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("name is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Input file").
			Placeholder("/sys/class/hwmon/hwmon0/temp1_input").
			Value(&sc.Path).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("path is required")
				}
				return nil
			}),
		huh.NewSelect[string]().
			Title("Unit").
			Options(unitOpts...).
			Value(&sc.Unit),
	))
	if err := form.Run(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Add sensors to sensord.yaml by hand instead")
	}
	return sc, nil
}

// probeHost checks that alias is reachable. Interactive runs may keep the
// host anyway.
func probeHost(alias string, nonInteractive bool) error {
	fmt.Printf("Testing connection to %s...\n", alias)
	runner, err := dialer([]string{alias})
	if err == nil {
		runner.Close()
		fmt.Printf("%s Connected\n", ui.SuccessStyle().Render(ui.SymbolSuccess))
		return nil
	}

	failed := errors.WrapWithCode(err, errors.ErrSSH,
		fmt.Sprintf("Connection to '%s' failed", alias),
		"Check that the host is reachable: ssh "+alias)
	if nonInteractive {
		return failed
	}

	fmt.Printf("\n%s Connection to '%s' failed: %s\n\n", ui.SymbolFail, alias, summarize(err))
	var saveAnyway bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Save config anyway? (You can fix the connection later)").
			Value(&saveAnyway),
	))
	if formErr := form.Run(); formErr != nil || !saveAnyway {
		return failed
	}
	return nil
}

// writeInitConfig writes the default config adjusted by a.
func writeInitConfig(path string, a initAnswers) error {
	cfg := config.DefaultConfig()
	if a.SessionBus {
		cfg.Bus.System = false
	}
	cfg.HTTP.Listen = strings.TrimSpace(a.Listen)
	if a.HostSSH != "" {
		name := a.HostName
		if name == "" {
			name = a.HostSSH
		}
		cfg.Hosts[name] = config.Host{SSH: []string{a.HostSSH}}
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if a.Sensor != nil {
		if _, err := config.Resolve(*a.Sensor); err != nil {
			return err
		}
	}

	if err := config.Write(path, cfg); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to write config file",
			"Check write permissions for "+path)
	}
	if a.Sensor != nil {
		if err := config.AddSensor(path, *a.Sensor); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to add sensor",
				"Add it to the 'sensors' section by hand")
		}
	}
	return nil
}
