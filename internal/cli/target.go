package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/rileyhilliard/sensord/internal/config"
	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/sensor"
	"github.com/rileyhilliard/sensord/internal/util"
	"github.com/rileyhilliard/sensord/pkg/sshutil"
)

const dialTimeout = 10 * time.Second

// target is where read and monitor get their sensor inputs from.
type target struct {
	name    string
	entries []config.SensorConfig
	opener  sensor.Opener
	close   func() error
}

// dialer is swapped in tests.
var dialer = func(hosts []string) (sshutil.Runner, error) {
	c, err := sshutil.DialAny(hosts, dialTimeout)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// openTarget returns the local machine when host is empty, otherwise the
// configured host reached over SSH. A host without its own sensor list
// uses the top-level one.
func openTarget(cfg *config.Config, host string) (*target, error) {
	if host == "" {
		return &target{
			name:    "local",
			entries: cfg.Sensors,
			opener:  sensor.OpenFile,
			close:   func() error { return nil },
		}, nil
	}

	h, ok := cfg.Hosts[host]
	if !ok {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("No host named '%s' in the config", host),
			hostsSuggestion(cfg))
	}

	runner, err := dialer(h.SSH)
	if err != nil {
		return nil, err
	}
	remote := sshutil.NewRemote(runner)

	entries := h.Sensors
	if len(entries) == 0 {
		entries = cfg.Sensors
	}
	return &target{
		name:    host + " via " + remote.Host(),
		entries: entries,
		opener:  remoteOpener(remote),
		close:   remote.Close,
	}, nil
}

// remoteOpener adapts Remote.Open to sensor.Opener. A failed open must
// return a nil interface, not a nil *File.
func remoteOpener(r *sshutil.Remote) sensor.Opener {
	return func(path string) (sensor.Source, error) {
		f, err := r.Open(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func hostsSuggestion(cfg *config.Config) string {
	if len(cfg.Hosts) == 0 {
		return "Add a host under 'hosts' in sensord.yaml, or run 'sensord init --ssh <alias>'."
	}
	names := make([]string, 0, len(cfg.Hosts))
	for name := range cfg.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return "Configured hosts: " + util.JoinOrDefault(names, "(none)")
}
