// Package layout defines the on-disk results-directory conventions shared
// by the orchestrator (writer), the normalization pipeline (reader), and the
// historical store (target-type detector) — spec §4.1 "Filesystem layout".
package layout

import (
	"os"
	"path/filepath"
	"strings"
)

// TargetType is one of the six closed target kinds.
type TargetType string

const (
	TargetRepo    TargetType = "repo"
	TargetImage   TargetType = "image"
	TargetIaC     TargetType = "iac"
	TargetURL     TargetType = "url"
	TargetGitLab  TargetType = "gitlab"
	TargetK8s     TargetType = "k8s"
	TargetUnknown TargetType = "unknown"
)

// subdirByType maps each target type to its results subdirectory name, in
// the priority order used by DetectTargetType.
var subdirByType = []struct {
	t   TargetType
	dir string
}{
	{TargetRepo, "individual-repos"},
	{TargetImage, "individual-images"},
	{TargetIaC, "individual-iac"},
	{TargetURL, "individual-web"},
	{TargetGitLab, "individual-gitlab"},
	{TargetK8s, "individual-k8s"},
}

// SubdirFor returns the results subdirectory name for a target type.
func SubdirFor(t TargetType) string {
	for _, e := range subdirByType {
		if e.t == t {
			return e.dir
		}
	}
	return "individual-unknown"
}

// DetectTargetType inspects resultsDir for the first existing (possibly
// empty) target-kind subdirectory, in priority order repo > image > iac > url >
// gitlab > k8s (spec §4.3 "Detect target type from the directory structure").
func DetectTargetType(resultsDir string) TargetType {
	for _, e := range subdirByType {
		if dirExists(filepath.Join(resultsDir, e.dir)) {
			return e.t
		}
	}
	return TargetUnknown
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CollectTargets lists the target display names under resultsDir's
// detected target-type subdirectory.
func CollectTargets(resultsDir string) ([]string, error) {
	t := DetectTargetType(resultsDir)
	if t == TargetUnknown {
		return nil, nil
	}
	dir := filepath.Join(resultsDir, SubdirFor(t))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Sanitize maps any character outside [A-Za-z0-9._-] to '_', for use in
// filesystem path components derived from arbitrary target identifiers
// (image references, URLs, cluster contexts).
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ArtifactPath returns the per-tool artifact path for a target.
func ArtifactPath(resultsDir string, t TargetType, targetName, toolName string) string {
	return filepath.Join(resultsDir, SubdirFor(t), Sanitize(targetName), toolName+".json")
}

// TargetDir returns the per-target output directory.
func TargetDir(resultsDir string, t TargetType, targetName string) string {
	return filepath.Join(resultsDir, SubdirFor(t), Sanitize(targetName))
}
