package bus

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// MatchRule selects signals. Empty fields match anything.
type MatchRule struct {
	Sender        string
	Path          dbus.ObjectPath
	PathNamespace dbus.ObjectPath
	Interface     string
	Member        string

	// Arg0 must equal the first body argument (a string).
	Arg0 string
	// Arg0Namespace matches a first string argument equal to it or below it
	// in dotted-name terms.
	Arg0Namespace string
	// Arg0Path matches a first argument object path equal to it.
	Arg0Path dbus.ObjectPath
}

// PropertiesChanged matches PropertiesChanged signals for iface on path.
func PropertiesChanged(path dbus.ObjectPath, iface string) MatchRule {
	return MatchRule{
		Path:      path,
		Interface: PropertiesInterface,
		Member:    "PropertiesChanged",
		Arg0:      iface,
	}
}

// InterfacesAdded matches ObjectManager.InterfacesAdded signals announcing path.
func InterfacesAdded(path dbus.ObjectPath) MatchRule {
	return MatchRule{
		Interface: ObjectManagerInterface,
		Member:    "InterfacesAdded",
		Arg0Path:  path,
	}
}

// PropertiesChangedRules builds one PropertiesChanged rule per interface
// name, each scoped to namespace.
func PropertiesChangedRules(namespace dbus.ObjectPath, ifaces []string) []MatchRule {
	rules := make([]MatchRule, 0, len(ifaces))
	for _, iface := range ifaces {
		rules = append(rules, MatchRule{
			PathNamespace: namespace,
			Interface:     PropertiesInterface,
			Member:        "PropertiesChanged",
			Arg0Namespace: iface,
		})
	}
	return rules
}

// String renders the rule in D-Bus match-rule syntax.
func (r MatchRule) String() string {
	parts := []string{"type='signal'"}
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s='%s'", key, value))
		}
	}
	add("sender", r.Sender)
	add("interface", r.Interface)
	add("member", r.Member)
	add("path", string(r.Path))
	add("path_namespace", string(r.PathNamespace))
	add("arg0", r.Arg0)
	add("arg0namespace", r.Arg0Namespace)
	add("arg0path", string(r.Arg0Path))
	return strings.Join(parts, ",")
}

// Matches reports whether sig satisfies the rule.
func (r MatchRule) Matches(sig *dbus.Signal) bool {
	if sig == nil {
		return false
	}
	if r.Sender != "" && sig.Sender != r.Sender {
		return false
	}
	if r.Path != "" && sig.Path != r.Path {
		return false
	}
	if r.PathNamespace != "" && !inPathNamespace(sig.Path, r.PathNamespace) {
		return false
	}

	iface, member := splitSignalName(sig.Name)
	if r.Interface != "" && iface != r.Interface {
		return false
	}
	if r.Member != "" && member != r.Member {
		return false
	}

	if r.Arg0 != "" || r.Arg0Namespace != "" {
		if len(sig.Body) == 0 {
			return false
		}
		arg0, ok := sig.Body[0].(string)
		if !ok {
			return false
		}
		if r.Arg0 != "" && arg0 != r.Arg0 {
			return false
		}
		if r.Arg0Namespace != "" && arg0 != r.Arg0Namespace && !strings.HasPrefix(arg0, r.Arg0Namespace+".") {
			return false
		}
	}
	if r.Arg0Path != "" {
		if len(sig.Body) == 0 {
			return false
		}
		p, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || p != r.Arg0Path {
			return false
		}
	}
	return true
}

func (r MatchRule) options() []dbus.MatchOption {
	var opts []dbus.MatchOption
	if r.Sender != "" {
		opts = append(opts, dbus.WithMatchSender(r.Sender))
	}
	if r.Path != "" {
		opts = append(opts, dbus.WithMatchObjectPath(r.Path))
	}
	if r.PathNamespace != "" {
		opts = append(opts, dbus.WithMatchPathNamespace(r.PathNamespace))
	}
	if r.Interface != "" {
		opts = append(opts, dbus.WithMatchInterface(r.Interface))
	}
	if r.Member != "" {
		opts = append(opts, dbus.WithMatchMember(r.Member))
	}
	if r.Arg0 != "" {
		opts = append(opts, dbus.WithMatchArg(0, r.Arg0))
	}
	if r.Arg0Namespace != "" {
		opts = append(opts, dbus.WithMatchOption("arg0namespace", r.Arg0Namespace))
	}
	if r.Arg0Path != "" {
		opts = append(opts, dbus.WithMatchArgPath(0, string(r.Arg0Path)))
	}
	return opts
}

func inPathNamespace(p, ns dbus.ObjectPath) bool {
	if ns == "/" || p == ns {
		return true
	}
	return strings.HasPrefix(string(p), string(ns)+"/")
}

func splitSignalName(name string) (iface, member string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}
