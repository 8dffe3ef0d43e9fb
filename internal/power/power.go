// Package power tracks host power, BIOS POST and chassis power per slot,
// and the platform's manufacturing (special) mode.
package power

import (
	"fmt"
	"strings"
	"time"
)

// Kind is one tracked power signal.
type Kind int

const (
	KindHost Kind = iota
	KindPost
	KindChassis
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindPost:
		return "post"
	case KindChassis:
		return "chassis"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// StateNamespace is where the mapper is asked for host and chassis objects.
const StateNamespace = "/xyz/openbmc_project/state"

const postInactive = "xyz.openbmc_project.State.OperatingSystem.Status.OSStatus.Inactive"

type kindInfo struct {
	busName    string // slot number appended
	pathPrefix string // slot number appended
	iface      string
	property   string
	on         func(string) bool
}

var kinds = map[Kind]kindInfo{
	KindHost: {
		busName:    "xyz.openbmc_project.State.Host",
		pathPrefix: StateNamespace + "/host",
		iface:      "xyz.openbmc_project.State.Host",
		property:   "CurrentHostState",
		on:         func(s string) bool { return strings.HasSuffix(s, ".Running") },
	},
	KindPost: {
		busName:    "xyz.openbmc_project.State.OperatingSystem",
		pathPrefix: StateNamespace + "/host",
		iface:      "xyz.openbmc_project.State.OperatingSystem.Status",
		property:   "OperatingSystemState",
		on:         func(s string) bool { return s != "Inactive" && s != postInactive },
	},
	KindChassis: {
		busName:    "xyz.openbmc_project.State.Chassis",
		pathPrefix: StateNamespace + "/chassis",
		iface:      "xyz.openbmc_project.State.Chassis",
		property:   "CurrentPowerState",
		on:         func(s string) bool { return strings.HasSuffix(s, ".On") },
	},
}

// Interface returns the bus interface carrying k's state property.
func Interface(k Kind) string {
	return kinds[k].iface
}

// Property returns the name of k's state property.
func Property(k Kind) string {
	return kinds[k].property
}

// IsOn interprets a state property value of kind k.
func IsOn(k Kind, value string) bool {
	info, ok := kinds[k]
	if !ok {
		return false
	}
	return info.on(value)
}

// Requirement is the power condition a sensor needs before it is read.
type Requirement int

const (
	Always Requirement = iota
	On
	BiosPost
	ChassisOn
)

func (r Requirement) String() string {
	switch r {
	case Always:
		return "always"
	case On:
		return "on"
	case BiosPost:
		return "biosPost"
	case ChassisOn:
		return "chassisOn"
	}
	return fmt.Sprintf("Requirement(%d)", int(r))
}

// ParseRequirement accepts the config spellings of a requirement.
// The empty string means Always.
func ParseRequirement(s string) (Requirement, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(s)))
	switch norm {
	case "", "always", "none":
		return Always, nil
	case "on":
		return On, nil
	case "biospost":
		return BiosPost, nil
	case "chassison":
		return ChassisOn, nil
	}
	return Always, fmt.Errorf("unknown power state %q (want always, on, biosPost or chassisOn)", s)
}

// kindsFor lists the tracked states a requirement depends on.
func kindsFor(r Requirement) []Kind {
	switch r {
	case On:
		return []Kind{KindHost}
	case BiosPost:
		return []Kind{KindPost, KindHost}
	case ChassisOn:
		return []Kind{KindChassis}
	}
	return nil
}

// Config holds the tracker's timing.
type Config struct {
	// Debounce delays every off → on transition reported by a signal.
	Debounce time.Duration
	// RetryDelay separates failed property reads.
	RetryDelay time.Duration
	// Retries is how many extra reads follow a failed one.
	Retries int
	// CallTimeout bounds each bus call.
	CallTimeout time.Duration
}

// DefaultConfig returns the stock timing.
func DefaultConfig() Config {
	return Config{
		Debounce:    10 * time.Second,
		RetryDelay:  15 * time.Second,
		Retries:     2,
		CallTimeout: 5 * time.Second,
	}
}
