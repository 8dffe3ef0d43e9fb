package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sensord/internal/config"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/ui"
)

// Global flags
var (
	cfgFile   string
	debugFlag bool
	colorFlag string
)

var rootCmd = &cobra.Command{
	Use:   "sensord",
	Short: "Hardware sensor daemon and tools",
	Long: `sensord polls hardware sensor inputs, evaluates threshold alarms and
publishes the results on the system bus and as Prometheus metrics.

Besides the daemon ('sensord run') it can read sensors once, show them in a
live dashboard, and check or create configuration files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// SuggestionsFor only matches by prefix until this is set.
	SuggestionsMinimumDistance: 2,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetDebug(debugFlag)
		return applyColor(colorFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./sensord.yaml or "+config.SystemConfigPath+")")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging (same as "+logger.DebugEnv+"=1)")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "", "color output: auto, always or never (default from config)")
}

// applyColor sets the color mode from the flag, falling back to the config
// file. A config that fails to load is reported by the command itself.
func applyColor(flag string) error {
	mode := flag
	if mode == "" {
		mode = "auto"
		if cfg, _, err := config.LoadOrDefault(cfgFile); err == nil && cfg.Output.Color != "" {
			mode = cfg.Output.Color
		}
	}
	return ui.SetColorMode(mode)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if MachineMode() {
			_ = WriteJSONFromError(os.Stdout, err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		if isUnknownCommandError(err) {
			if s := rootCmd.SuggestionsFor(extractUnknownCommand(err)); len(s) > 0 {
				fmt.Fprintf(os.Stderr, "Did you mean '%s'?\n", s[0])
			}
			fmt.Fprintln(os.Stderr, "Run 'sensord --help' for the list of commands.")
		}
		os.Exit(1)
	}
}

// isUnknownCommandError reports whether cobra rejected the command line.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag")
}

// extractUnknownCommand returns the command name from cobra's
// `unknown command "x" for "sensord"` error, or "".
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
