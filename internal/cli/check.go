package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rileyhilliard/sensord/internal/config"
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/sensor"
	"github.com/rileyhilliard/sensord/internal/ui"
	"github.com/rileyhilliard/sensord/internal/util"
)

// checkResult is the --json payload of 'sensord check'.
type checkResult struct {
	Config  string          `json:"config"`
	Sensors []checkedSensor `json:"sensors"`
	Usable  int             `json:"usable"`
}

type checkedSensor struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Unit    string `json:"unit,omitempty"`
	OK      bool   `json:"ok"`
	Present bool   `json:"present"`
	Problem string `json:"problem,omitempty"`
}

// pathExists is swapped in tests.
var pathExists = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func checkCommand(w io.Writer) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	res := checkSensors(cfg.Sensors)
	res.Config = path

	if MachineMode() {
		if err := WriteJSONSuccess(w, res); err != nil {
			return err
		}
	} else {
		renderCheck(w, res)
	}

	if res.Usable == 0 {
		return errors.New(errors.ErrConfig,
			"No usable sensors configured",
			"Add entries under 'sensors' in sensord.yaml.")
	}
	return nil
}

// checkSensors resolves every entry the same way the daemon does. A
// missing input file is reported but does not make an entry unusable;
// the daemon picks it up on a later rescan.
func checkSensors(entries []config.SensorConfig) checkResult {
	res := checkResult{Sensors: make([]checkedSensor, 0, len(entries))}
	seen := map[string]bool{}

	for _, sc := range entries {
		cs := checkedSensor{Name: sc.Name, Path: sc.Path, Unit: sc.Unit}
		resolved, err := config.Resolve(sc)
		switch {
		case err != nil:
			cs.Problem = summarize(err)
		case seen[sensor.EscapeName(resolved.Name)]:
			cs.Problem = "defined more than once"
		default:
			seen[sensor.EscapeName(resolved.Name)] = true
			cs.OK = true
			cs.Unit = resolved.Unit.Name
			res.Usable++
		}
		if sc.Path != "" {
			cs.Present = pathExists(sc.Path)
		}
		res.Sensors = append(res.Sensors, cs)
	}
	return res
}

func renderCheck(w io.Writer, res checkResult) {
	if res.Config != "" {
		fmt.Fprintf(w, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), "Config: "+res.Config)
	} else {
		fmt.Fprintf(w, "%s %s\n", ui.WarningStyle().Render(ui.SymbolWarning), "No config file found, using defaults")
	}

	for _, s := range res.Sensors {
		switch {
		case !s.OK:
			fmt.Fprintf(w, "  %s %s\n", ui.ErrorStyle().Render(ui.SymbolFail), s.Problem)
		case !s.Present:
			fmt.Fprintf(w, "  %s %s %s\n", ui.WarningStyle().Render(ui.SymbolWarning), s.Name,
				ui.MutedStyle().Render("("+s.Path+" not present yet)"))
		default:
			fmt.Fprintf(w, "  %s %s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), s.Name,
				ui.MutedStyle().Render(s.Unit))
		}
	}
	fmt.Fprintf(w, "%d of %s usable\n", res.Usable, util.Count(len(res.Sensors), "sensor"))
}
