package findings

import (
	"fmt"
	"sort"
	"strings"
)

// clusterKey is the secondary key used to group cross-tool duplicates:
// (canonicalized_rule_id, canonical_path, start_line).
type clusterKey struct {
	ruleID    string
	path      string
	startLine int
}

func canonicalRuleID(ruleID string) string {
	return strings.ToLower(strings.TrimSpace(ruleID))
}

func keyFor(f CommonFinding) clusterKey {
	return clusterKey{
		ruleID:    canonicalRuleID(f.RuleID),
		path:      normalizePath(f.Path),
		startLine: f.StartLine,
	}
}

// Cluster groups findings that share a secondary (rule, path, line) key and
// collapses each group to one representative, attaching the others'
// fingerprints to the representative's RelatedFindings list (spec §4.2
// cross-tool clustering). The representative is the highest-severity member
// of the group; ties are broken by lexicographically smallest fingerprint.
// Input order is otherwise preserved for the surviving representatives.
func Cluster(findingsList []CommonFinding) []CommonFinding {
	groups := make(map[clusterKey][]int)
	order := make([]clusterKey, 0)

	for i, f := range findingsList {
		k := keyFor(f)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	out := make([]CommonFinding, 0, len(order))
	for _, k := range order {
		idxs := groups[k]
		repIdx := idxs[0]
		for _, idx := range idxs[1:] {
			if isBetterRepresentative(findingsList[idx], findingsList[repIdx]) {
				repIdx = idx
			}
		}

		rep := findingsList[repIdx]
		if len(idxs) > 1 {
			related := make([]string, 0, len(idxs)-1)
			for _, idx := range idxs {
				if idx == repIdx {
					continue
				}
				related = append(related, findingsList[idx].Fingerprint)
			}
			sort.Strings(related)
			rep.RelatedFindings = related
		}
		out = append(out, rep)
	}

	return out
}

// isBetterRepresentative reports whether candidate should replace current
// as the cluster representative: higher severity wins; ties broken by
// lexicographically smaller fingerprint.
func isBetterRepresentative(candidate, current CommonFinding) bool {
	if candidate.Severity.Rank() != current.Severity.Rank() {
		return candidate.Severity.Rank() > current.Severity.Rank()
	}
	return candidate.Fingerprint < current.Fingerprint
}

// String implements fmt.Stringer for debugging/logging of cluster keys.
func (k clusterKey) String() string {
	return fmt.Sprintf("%s@%s:%d", k.ruleID, k.path, k.startLine)
}
