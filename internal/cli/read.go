package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/metrics"
	"github.com/rileyhilliard/sensord/internal/monitor"
	"github.com/rileyhilliard/sensord/internal/sensor"
	"github.com/rileyhilliard/sensord/internal/ui"
)

// readOutput is the --json payload of 'sensord read'.
type readOutput struct {
	Target  string             `json:"target"`
	Sensors []metrics.Snapshot `json:"sensors"`
	Skipped []string           `json:"skipped,omitempty"`
}

func readCommand(ctx context.Context, names []string, host string, timeout time.Duration) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	tgt, err := openTarget(cfg, host)
	if err != nil {
		return err
	}
	defer tgt.close()

	log := logger.NewEnvLogger("read")
	engine, err := monitor.NewEngine(tgt.entries, monitor.Options{Opener: tgt.opener, Log: log})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(runCtx) }()

	waitCtx, waitCancel := context.WithTimeout(runCtx, timeout)
	waitErr := engine.Wait(waitCtx)
	waitCancel()
	snaps := engine.Sensors()
	cancel()
	<-done

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		log.Warn("not every sensor reported within %s", timeout)
	}

	snaps, err = filterSnapshots(snaps, names)
	if err != nil {
		return err
	}

	skipped := make([]string, 0, len(engine.Skipped()))
	for _, e := range engine.Skipped() {
		skipped = append(skipped, summarize(e))
	}

	if MachineMode() {
		return WriteJSONSuccess(os.Stdout, readOutput{Target: tgt.name, Sensors: snaps, Skipped: skipped})
	}
	renderReadings(os.Stdout, snaps)
	renderSkipped(os.Stdout, skipped)
	return nil
}

// filterSnapshots keeps the named sensors, in the order given. Names are
// matched after escaping, so "CPU0 Temp" finds CPU0_Temp.
func filterSnapshots(snaps []metrics.Snapshot, names []string) ([]metrics.Snapshot, error) {
	if len(names) == 0 {
		return snaps, nil
	}
	byName := make(map[string]metrics.Snapshot, len(snaps))
	for _, s := range snaps {
		byName[s.Name] = s
	}

	out := make([]metrics.Snapshot, 0, len(names))
	var missing []string
	for _, n := range names {
		s, ok := byName[sensor.EscapeName(n)]
		if !ok {
			missing = append(missing, n)
			continue
		}
		out = append(out, s)
	}
	if len(missing) > 0 {
		return nil, errors.New(errors.ErrSensor,
			"Unknown sensor: "+strings.Join(missing, ", "),
			"Run 'sensord read' without arguments to list every sensor.")
	}
	return out, nil
}

// summarize returns the one-line message of err.
func summarize(err error) string {
	var sErr *errors.Error
	if errors.As(err, &sErr) {
		return sErr.Message
	}
	return err.Error()
}

func renderReadings(w io.Writer, snaps []metrics.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, ui.MutedStyle().Render("No sensors"))
		return
	}

	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		st := monitor.SensorStatus(s)
		rows = append(rows, []string{
			monitor.StatusGlyph(st),
			s.Name,
			monitor.FormatValue(s),
			formatRange(s),
			strings.Join(monitor.ActiveAlarms(s), ","),
		})
	}

	cols := []ui.TableColumn{
		{Title: "", Width: 2},
		{Title: "Sensor", Width: columnWidth(snaps, func(s metrics.Snapshot) string { return s.Name }, 6)},
		{Title: "Value", Width: columnWidth(snaps, monitor.FormatValue, 5)},
		{Title: "Range", Width: columnWidth(snaps, formatRange, 5)},
		{Title: "Alarms", Width: 26},
	}
	fmt.Fprintln(w, ui.RenderSimpleTable(cols, rows))
}

func renderSkipped(w io.Writer, skipped []string) {
	for _, s := range skipped {
		fmt.Fprintf(w, "%s %s\n", ui.WarningStyle().Render(ui.SymbolWarning), ui.MutedStyle().Render(s))
	}
}

func formatRange(s metrics.Snapshot) string {
	return strconv.FormatFloat(s.Min, 'g', -1, 64) + ".." + strconv.FormatFloat(s.Max, 'g', -1, 64)
}

func columnWidth(snaps []metrics.Snapshot, text func(metrics.Snapshot) string, minWidth int) int {
	width := minWidth
	for _, s := range snaps {
		if n := lipgloss.Width(text(s)); n > width {
			width = n
		}
	}
	return width + 1
}
