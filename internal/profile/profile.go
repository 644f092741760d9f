// Package profile defines incident profiles that modulate role prompt
// construction. Each profile provides the planner persona, an addendum for the
// critic, and the diagnostic command offered when no plan can be produced.
package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Profile describes how a class of incidents should be reasoned about.
type Profile struct {
	Name        string
	Description string
	// Persona opens the planner system prompt.
	Persona string
	// CriticAddendum is appended to the critic system prompt.
	CriticAddendum string
	// DiagnosticCommand is the standard evidence-collection command suggested
	// when the planner output is unusable.
	DiagnosticCommand string
}

// DefaultName is the profile used when none is configured.
const DefaultName = "kubernetes"

// builtins is the registry of built-in profiles keyed by name.
var builtins = map[string]Profile{
	"kubernetes": {
		Name:        "kubernetes",
		Description: "Kubernetes workloads; plans use kubectl and cluster-scoped diagnostics.",
		Persona:     "You are a senior Kubernetes SRE assistant.",
		CriticAddendum: "Prefer kubectl commands that are namespaced and scoped to the affected " +
			"workload. Reject plans that delete namespaces, nodes or persistent volumes.",
		DiagnosticCommand: "Provide full pod name/namespace and 200 lines around the error, " +
			"plus 'kubectl describe pod <pod> -n <namespace>'",
	},
	"linux-host": {
		Name:        "linux-host",
		Description: "Single Linux hosts; plans use systemd, journald and coreutils.",
		Persona:     "You are a senior Linux systems engineer on call for a production host.",
		CriticAddendum: "Prefer read-only inspection (journalctl, systemctl status, df, free) " +
			"before any restart. Reject plans that modify disks or partitions.",
		DiagnosticCommand: "Provide 200 lines around the error plus the output of " +
			"'journalctl -u <service> --since \"-30min\" --no-pager'",
	},
	"generic": {
		Name:        "generic",
		Description: "Platform-neutral incident triage.",
		Persona:     "You are a senior incident responder.",
		CriticAddendum: "Every command must be specific to the system named in the log; " +
			"replace placeholders you cannot ground with info_requests.",
		DiagnosticCommand: "Provide a larger log excerpt (at least 200 lines around the error) " +
			"and the exact component, version and host involved",
	},
}

// Load returns the named built-in profile or an error if the name is unknown.
// An empty name selects DefaultName.
func Load(name string) (Profile, error) {
	if name == "" {
		name = DefaultName
	}
	p, ok := builtins[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile: unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names returns the built-in profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
