// Package diff implements fingerprint-set comparison between two stored
// scans (spec §4.4 "Diff contract").
package diff

import (
	"context"
	"fmt"

	"github.com/jmo-security/jmo/internal/findings"
)

// Store is the subset of *history.Store the diff engine depends on.
type Store interface {
	ResolveScanRef(ctx context.Context, ref string) (string, error)
	GetFindings(ctx context.Context, scanID string, decryptKey []byte) ([]findings.CommonFinding, error)
}

// Result holds the three disjoint finding lists produced by comparing two
// scans by fingerprint (spec §4.4, §8 invariant "diff(A,A)").
type Result struct {
	BaselineScanID string                   `json:"baselineScanId"`
	CurrentScanID  string                   `json:"currentScanId"`
	New            []findings.CommonFinding `json:"new"`
	Resolved       []findings.CommonFinding `json:"resolved"`
	Unchanged      []findings.CommonFinding `json:"unchanged"`
}

// Compute resolves baselineRef and currentRef (exact id or unique prefix),
// loads each scan's findings, and returns the three-way split.
//
// new: present in current, absent in baseline (full record from current).
// resolved: present in baseline, absent in current (full record from baseline).
// unchanged: present in both (full record from current).
func Compute(ctx context.Context, store Store, baselineRef, currentRef string) (Result, error) {
	baselineID, err := store.ResolveScanRef(ctx, baselineRef)
	if err != nil {
		return Result{}, fmt.Errorf("resolving baseline scan %q: %w", baselineRef, err)
	}
	currentID, err := store.ResolveScanRef(ctx, currentRef)
	if err != nil {
		return Result{}, fmt.Errorf("resolving current scan %q: %w", currentRef, err)
	}

	baselineFindings, err := store.GetFindings(ctx, baselineID, nil)
	if err != nil {
		return Result{}, fmt.Errorf("loading baseline findings: %w", err)
	}
	currentFindings, err := store.GetFindings(ctx, currentID, nil)
	if err != nil {
		return Result{}, fmt.Errorf("loading current findings: %w", err)
	}

	baselineByFP := make(map[string]findings.CommonFinding, len(baselineFindings))
	for _, f := range baselineFindings {
		baselineByFP[f.Fingerprint] = f
	}
	currentByFP := make(map[string]findings.CommonFinding, len(currentFindings))
	for _, f := range currentFindings {
		currentByFP[f.Fingerprint] = f
	}

	result := Result{BaselineScanID: baselineID, CurrentScanID: currentID}

	for fp, f := range currentByFP {
		if _, ok := baselineByFP[fp]; ok {
			result.Unchanged = append(result.Unchanged, f)
		} else {
			result.New = append(result.New, f)
		}
	}
	for fp, f := range baselineByFP {
		if _, ok := currentByFP[fp]; !ok {
			result.Resolved = append(result.Resolved, f)
		}
	}

	return result, nil
}
