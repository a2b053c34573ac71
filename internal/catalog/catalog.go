// Package catalog holds the process-wide tool registry: every scanner the
// orchestrator knows how to invoke registers itself here via init(),
// mirroring the scanner-catalog registration idiom elsewhere in this
// codebase's ancestry.
package catalog

import (
	"github.com/jmo-security/jmo/internal/findings"
	"github.com/jmo-security/jmo/internal/layout"
)

// Target is one scan target resolved from CLI/config input.
type Target struct {
	Kind        layout.TargetType
	DisplayName string
	Path        string // repo path, IaC file, Dockerfile context, etc.
	Ref         string // image reference, URL, or k8s manifest path
}

// PreCheck evaluates whether a tool applies to a target before attempting
// to run it (e.g. hadolint requires a Dockerfile to be present).
type PreCheck func(t Target) bool

// BuildArgv constructs the subprocess argument vector for a target, given
// the resolved output artifact path and any per-tool flag overrides.
type BuildArgv func(t Target, artifactPath string, extraFlags []string) []string

// Tool is one entry in the catalog: everything the orchestrator needs to
// invoke a scanner and interpret its result.
type Tool struct {
	Name string

	// TargetKinds lists the target types this tool applies to.
	TargetKinds []layout.TargetType

	// OkRCs is the set of process exit codes that count as success. Many
	// scanners exit non-zero when findings exist; that is still success.
	OkRCs map[int]bool

	// CaptureStdout is true when the tool emits its JSON report on stdout
	// rather than to a file the caller names.
	CaptureStdout bool

	// PreCheck, if set, gates whether the tool runs at all for a target.
	PreCheck PreCheck

	BuildArgv BuildArgv
	Parse     findings.Adapter

	// TwoPhase marks the secret-scanner-with-datastore special case (spec
	// §4.1): Phases holds the ordered subcommands sharing one scratch
	// datastore, and ContainerFallback names an equivalent container
	// invocation tried when the local binary or both phases fail.
	TwoPhase          bool
	Phases            []string
	ContainerFallback []string

	// PhaseArgv builds the argv for one phase of a TwoPhase tool. datastore
	// is the scratch directory shared by both phases; phase is one of
	// Phases ("scan" or "report"). Only consulted when TwoPhase is set.
	PhaseArgv func(phase string, t Target, datastore, artifactPath string, extraFlags []string) []string
}

var registry = map[string]Tool{}

// Register adds a tool to the process-wide catalog. Intended to be called
// from package-level init() functions in sibling files.
func Register(t Tool) {
	registry[t.Name] = t
}

// Get returns a registered tool by name.
func Get(name string) (Tool, bool) {
	t, ok := registry[name]
	return t, ok
}

// Names returns every registered tool name.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// AppliesTo reports whether a tool is declared for a target's kind.
func (t Tool) AppliesTo(kind layout.TargetType) bool {
	for _, k := range t.TargetKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Validate checks that every name in tools is a known catalog entry,
// satisfying the "unknown tool names are rejected at configuration
// resolution time, not scan time" requirement.
func Validate(tools []string) []string {
	var unknown []string
	for _, name := range tools {
		if _, ok := registry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
