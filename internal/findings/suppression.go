package findings

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SuppressionRule matches findings by any subset of {tool, rule_id, path,
// fingerprint}. An unset field is not part of the match condition.
type SuppressionRule struct {
	Tool        string `yaml:"tool,omitempty"`
	RuleID      string `yaml:"rule_id,omitempty"`
	Path        string `yaml:"path,omitempty"`
	Fingerprint string `yaml:"fingerprint,omitempty"`
	Reason      string `yaml:"reason,omitempty"`
}

// Suppressions is the parsed shape of a suppressions YAML file.
type Suppressions struct {
	Rules []SuppressionRule `yaml:"rules"`
}

// LoadSuppressions loads a suppressions.yaml from resultsDir, falling back
// to the working directory, per spec §4.2. Returns an empty Suppressions
// (not an error) when no file is present.
func LoadSuppressions(resultsDir string) (*Suppressions, error) {
	candidates := []string{
		filepath.Join(resultsDir, "suppressions.yaml"),
		filepath.Join(resultsDir, "suppressions.yml"),
		"suppressions.yaml",
		"suppressions.yml",
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var s Suppressions
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}

	return &Suppressions{}, nil
}

// matches reports whether rule applies to f: every populated field of the
// rule must match the corresponding finding field (conjunction over the
// populated subset).
func (r SuppressionRule) matches(f CommonFinding) bool {
	matchedAny := false

	if r.Tool != "" {
		if r.Tool != f.Tool.Name {
			return false
		}
		matchedAny = true
	}
	if r.RuleID != "" {
		if r.RuleID != f.RuleID {
			return false
		}
		matchedAny = true
	}
	if r.Path != "" {
		ok, _ := filepath.Match(r.Path, f.Path)
		if !ok {
			return false
		}
		matchedAny = true
	}
	if r.Fingerprint != "" {
		if r.Fingerprint != f.Fingerprint {
			return false
		}
		matchedAny = true
	}

	return matchedAny
}

// Filter splits findingsList into (retained, suppressedFingerprints) using
// the suppression rules. Order of retained findings is preserved.
func (s *Suppressions) Filter(findingsList []CommonFinding) (retained []CommonFinding, suppressed []string) {
	if s == nil || len(s.Rules) == 0 {
		return findingsList, nil
	}

	retained = make([]CommonFinding, 0, len(findingsList))
	for _, f := range findingsList {
		suppressedByRule := false
		for _, rule := range s.Rules {
			if rule.matches(f) {
				suppressedByRule = true
				break
			}
		}
		if suppressedByRule {
			suppressed = append(suppressed, f.Fingerprint)
			continue
		}
		retained = append(retained, f)
	}
	return retained, suppressed
}
