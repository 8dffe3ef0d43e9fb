package cli

import (
	"context"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/monitor"
)

// monitorCommand starts the TUI dashboard.
func monitorCommand(ctx context.Context, host string, interval time.Duration) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if interval == 0 {
		interval = cfg.Monitor.Interval
	}

	tgt, err := openTarget(cfg, host)
	if err != nil {
		return err
	}
	defer tgt.close()

	engine, err := monitor.NewEngine(tgt.entries, monitor.Options{
		Opener:         tgt.opener,
		Log:            logger.NewEnvLogger("monitor"),
		ThresholdDelay: cfg.Thresholds.Delay,
	})
	if err != nil {
		return err
	}

	// log lines would tear the alt screen
	logger.SetOutput(io.Discard)
	defer logger.SetOutput(os.Stderr)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(runCtx) }()

	model := monitor.NewModel(engine, tgt.name, interval, cfg.Monitor.History)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()

	cancel()
	<-done

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
