package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmo-security/jmo/internal/findings"
	"github.com/jmo-security/jmo/internal/layout"
)

// defaultOkRCs is success-or-findings-found, the common case for
// scanners that exit non-zero purely to signal "findings exist".
var defaultOkRCs = map[int]bool{0: true, 1: true}

func init() {
	Register(Tool{
		Name:          "semgrep",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         defaultOkRCs,
		CaptureStdout: true,
		BuildArgv: func(t Target, artifactPath string, extraFlags []string) []string {
			argv := []string{"--json", "--quiet", "--config=auto"}
			argv = append(argv, extraFlags...)
			argv = append(argv, t.Path)
			return argv
		},
		Parse: findings.AdapterFor("semgrep"),
	})

	Register(Tool{
		Name:          "trivy",
		TargetKinds:   []layout.TargetType{layout.TargetRepo, layout.TargetImage, layout.TargetIaC},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: true,
		BuildArgv: func(t Target, artifactPath string, extraFlags []string) []string {
			sub := "fs"
			target := t.Path
			if t.Kind == layout.TargetImage {
				sub, target = "image", t.Ref
			}
			argv := []string{sub, "--format", "json", "--quiet"}
			argv = append(argv, extraFlags...)
			argv = append(argv, target)
			return argv
		},
		Parse: findings.AdapterFor("trivy"),
	})

	Register(Tool{
		Name:          "checkov",
		TargetKinds:   []layout.TargetType{layout.TargetIaC},
		OkRCs:         defaultOkRCs,
		CaptureStdout: true,
		BuildArgv: func(t Target, artifactPath string, extraFlags []string) []string {
			argv := []string{"-d", filepath.Dir(t.Path), "-o", "json", "--compact"}
			return append(argv, extraFlags...)
		},
		Parse: findings.AdapterFor("checkov"),
	})

	Register(Tool{
		Name:        "hadolint",
		TargetKinds: []layout.TargetType{layout.TargetRepo},
		OkRCs:       defaultOkRCs,
		PreCheck: func(t Target) bool {
			_, err := os.Stat(filepath.Join(t.Path, "Dockerfile"))
			return err == nil
		},
		CaptureStdout: true,
		BuildArgv: func(t Target, artifactPath string, extraFlags []string) []string {
			argv := []string{"--format", "json"}
			argv = append(argv, extraFlags...)
			argv = append(argv, filepath.Join(t.Path, "Dockerfile"))
			return argv
		},
		Parse: findings.AdapterFor("hadolint"),
	})

	Register(Tool{
		Name:          "trufflehog",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true, 183: true},
		CaptureStdout: true,
		TwoPhase:      true,
		Phases:        []string{"scan", "report"},
		// BuildArgv is kept for callers that don't special-case TwoPhase
		// tools; PhaseArgv is what the orchestrator actually uses for the
		// local two-phase run (spec §4.1), and the container fallback uses
		// the ContainerFallback template instead.
		BuildArgv: func(t Target, artifactPath string, extraFlags []string) []string {
			argv := []string{"filesystem", "--json", "--no-update"}
			argv = append(argv, extraFlags...)
			argv = append(argv, t.Path)
			return argv
		},
		PhaseArgv: func(phase string, t Target, datastore, artifactPath string, extraFlags []string) []string {
			switch phase {
			case "scan":
				argv := []string{"scan", "filesystem", "--no-update", "--datastore", datastore}
				argv = append(argv, extraFlags...)
				argv = append(argv, t.Path)
				return argv
			case "report":
				return []string{"report", "--format", "json", "--datastore", datastore}
			default:
				return nil
			}
		},
		ContainerFallback: []string{"docker", "run", "--rm", "-v", "{path}:/scan", "trufflesecurity/trufflehog:latest", "filesystem", "--json", "/scan"},
		Parse:             findings.AdapterFor("trufflehog"),
	})
}

// FormatContainerFallback substitutes {path} in a tool's container fallback
// argv template with the target's real path.
func FormatContainerFallback(argv []string, path string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, "{path}", path)
	}
	return out
}

// ArtifactPathFor is a thin wrapper kept local to this package so catalog
// consumers don't need to import layout just to name an artifact file.
func ArtifactPathFor(resultsDir string, t Target, toolName string) string {
	return layout.ArtifactPath(resultsDir, t.Kind, t.DisplayName, toolName)
}

// UnknownToolError formats the configuration-resolution rejection message
// for an unrecognized tool name.
func UnknownToolError(name string) error {
	return fmt.Errorf("unknown tool %q: not registered in catalog", name)
}
