package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sensord/internal/errors"
)

// Command-specific flags
var (
	readHostFlag        string
	readTimeoutFlag     time.Duration
	monitorHostFlag     string
	monitorIntervalFlag time.Duration
	initForce           bool
	initNonInteractive  bool
	initSSHFlag         string
)

// runCmd starts the daemon
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor daemon",
	Long: `Poll every configured sensor, evaluate thresholds and publish the results
on the bus until interrupted.

Sensors whose input file is missing stay inactive and are retried every
'rescan' interval. Sensors gated on host power read only while the host is
in the required state.

Metrics are served on http.listen (default :9523) unless it is empty.

Examples:
  sensord run
  sensord run --config /etc/sensord/sensord.yaml --debug
  SENSORD_BUS_SYSTEM=false sensord run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd.Context())
	},
}

// readCmd prints sensor values once
var readCmd = &cobra.Command{
	Use:   "read [sensor...]",
	Short: "Read sensors once and print a table",
	Long: `Read every configured sensor once, without the bus, and print the values
with their alarm state. Name arguments limit the output to those sensors.

With --host the inputs are read over SSH from a configured host. Power
gating is not applied.

Examples:
  sensord read
  sensord read CPU0_Temp Fan1
  sensord read --host bmc1
  sensord read --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return readCommand(cmd.Context(), args, readHostFlag, readTimeoutFlag)
	},
}

// monitorCmd starts the TUI dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live sensor dashboard",
	Long: `Start an interactive dashboard showing live sensor values, alarm state and
a short history per sensor.

Keyboard shortcuts:
  q / Ctrl+C  Quit
  r           Refresh now
  s           Cycle sort order (name/value/alarm)
  up/k        Select previous sensor
  down/j      Select next sensor
  Enter       Sensor detail
  Esc         Back
  ?           Show help

Examples:
  sensord monitor
  sensord monitor --host bmc1
  sensord monitor --interval 5s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if monitorIntervalFlag != 0 && monitorIntervalFlag < 100*time.Millisecond {
			return errors.New(errors.ErrConfig,
				"Interval too short",
				"Minimum interval is 100ms.")
		}
		return monitorCommand(cmd.Context(), monitorHostFlag, monitorIntervalFlag)
	},
}

// checkCmd validates the config
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file",
	Long: `Load and validate the config file, then list every sensor entry with the
reason it would be skipped, if any. Exits non-zero when the daemon settings
are invalid or no sensor is usable.

Examples:
  sensord check
  sensord check --config ./sensord.yaml --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkCommand(cmd.OutOrStdout())
	},
}

// initCmd creates sensord.yaml
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create sensord.yaml",
	Long: `Create a config file with sensible defaults. The interactive form can also
add a remote host for 'read --host' and 'monitor --host', picked from your
SSH config.

Examples:
  sensord init
  sensord init --force
  sensord init --non-interactive --ssh bmc1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand(InitOptions{
			Path:           cfgFile,
			SSH:            initSSHFlag,
			Overwrite:      initForce,
			NonInteractive: initNonInteractive,
		})
	},
}

// completionCmd generates shell completion scripts
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for sensord.

Examples:
  # Bash
  sensord completion bash > /etc/bash_completion.d/sensord

  # Zsh
  sensord completion zsh > "${fpath[1]}/_sensord"

  # Fish
  sensord completion fish > ~/.config/fish/completions/sensord.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		default:
			return errors.New(errors.ErrConfig,
				"Unknown shell: "+args[0],
				"Supported shells: bash, zsh, fish, powershell")
		}
	},
}

func init() {
	readCmd.Flags().StringVar(&readHostFlag, "host", "", "read over SSH from a host in the config")
	readCmd.Flags().DurationVar(&readTimeoutFlag, "timeout", 10*time.Second, "how long to wait for every sensor to report")
	readCmd.Flags().BoolVar(&machineMode, "json", false, "print JSON instead of a table")

	monitorCmd.Flags().StringVar(&monitorHostFlag, "host", "", "watch a host in the config over SSH")
	monitorCmd.Flags().DurationVar(&monitorIntervalFlag, "interval", 0, "refresh interval (default monitor.interval)")

	checkCmd.Flags().BoolVar(&machineMode, "json", false, "print JSON instead of text")

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "skip prompts and write defaults")
	initCmd.Flags().StringVar(&initSSHFlag, "ssh", "", "add a remote host reached with this SSH alias")

	rootCmd.AddCommand(runCmd, readCmd, monitorCmd, checkCmd, initCmd, completionCmd)
}
