package sensor

import (
	"fmt"
	"sort"
	"strings"
)

// Unit is a sensor's measured quantity.
type Unit struct {
	// Name is the config spelling and the object path segment, e.g. "temperature".
	Name string
	// BusUnit is the Sensor.Value Unit enumeration value.
	BusUnit string
	// Symbol is used for terminal output.
	Symbol string
}

const unitPrefix = "xyz.openbmc_project.Sensor.Value.Unit."

var units = map[string]Unit{
	"temperature": {"temperature", unitPrefix + "DegreesC", "°C"},
	"voltage":     {"voltage", unitPrefix + "Volts", "V"},
	"current":     {"current", unitPrefix + "Amperes", "A"},
	"power":       {"power", unitPrefix + "Watts", "W"},
	"energy":      {"energy", unitPrefix + "Joules", "J"},
	"fan_tach":    {"fan_tach", unitPrefix + "RPMS", "RPM"},
	"fan_pwm":     {"fan_pwm", unitPrefix + "Percent", "%"},
	"utilization": {"utilization", unitPrefix + "Percent", "%"},
	"airflow":     {"airflow", unitPrefix + "CFM", "CFM"},
	"altitude":    {"altitude", unitPrefix + "Meters", "m"},
	"humidity":    {"humidity", unitPrefix + "PercentRH", "%RH"},
	"pressure":    {"pressure", unitPrefix + "Pascals", "Pa"},
}

var unitAliases = map[string]string{
	"degreesc": "temperature",
	"volts":    "voltage",
	"amperes":  "current",
	"watts":    "power",
	"joules":   "energy",
	"rpms":     "fan_tach",
	"rpm":      "fan_tach",
	"percent":  "utilization",
	"cfm":      "airflow",
	"meters":   "altitude",
}

// ParseUnit resolves a unit from its path name, its bus enumeration value
// or a short alias.
func ParseUnit(s string) (Unit, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), unitPrefix))
	if u, ok := units[key]; ok {
		return u, nil
	}
	if name, ok := unitAliases[key]; ok {
		return units[name], nil
	}
	return Unit{}, fmt.Errorf("unknown unit %q (known: %s)", s, strings.Join(UnitNames(), ", "))
}

// UnitNames lists the accepted unit path names.
func UnitNames() []string {
	names := make([]string, 0, len(units))
	for n := range units {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EscapeName turns a sensor name into a valid object path element.
func EscapeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
