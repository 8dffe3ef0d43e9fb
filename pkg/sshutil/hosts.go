package sshutil

import (
	"os"
	"sort"
	"strings"
)

// HostEntry is a concrete Host block from an ssh config.
type HostEntry struct {
	Alias    string
	Hostname string
	User     string
	Port     string
}

// Description renders the entry for pickers, e.g. "10.0.0.5, user: root".
func (h HostEntry) Description() string {
	var parts []string
	if h.Hostname != "" && h.Hostname != h.Alias {
		parts = append(parts, h.Hostname)
	}
	if h.User != "" {
		parts = append(parts, "user: "+h.User)
	}
	if h.Port != "" && h.Port != "22" {
		parts = append(parts, "port: "+h.Port)
	}
	if len(parts) == 0 {
		return h.Alias
	}
	return strings.Join(parts, ", ")
}

// ConfigHosts lists the aliases in ~/.ssh/config.
func ConfigHosts() ([]HostEntry, error) {
	return ConfigHostsFrom(sshConfigPath())
}

// ConfigHostsFrom lists the non-wildcard aliases of the ssh config at path,
// sorted. A missing file yields no hosts.
func ConfigHostsFrom(path string) ([]HostEntry, error) {
	cfg, err := decodeConfig(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var hosts []HostEntry
	seen := map[string]bool{}
	for _, h := range cfg.Hosts {
		for _, p := range h.Patterns {
			alias := p.String()
			if strings.ContainsAny(alias, "*?!") || seen[alias] {
				continue
			}
			seen[alias] = true
			e := HostEntry{Alias: alias}
			e.Hostname, _ = cfg.Get(alias, "HostName")
			e.User, _ = cfg.Get(alias, "User")
			e.Port, _ = cfg.Get(alias, "Port")
			hosts = append(hosts, e)
		}
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Alias < hosts[j].Alias })
	return hosts, nil
}
