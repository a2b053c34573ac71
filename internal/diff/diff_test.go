package diff

import (
	"context"
	"testing"

	"github.com/jmo-security/jmo/internal/findings"
)

type fakeStore struct {
	refs     map[string]string
	byScanID map[string][]findings.CommonFinding
}

func (f *fakeStore) ResolveScanRef(ctx context.Context, ref string) (string, error) {
	if id, ok := f.refs[ref]; ok {
		return id, nil
	}
	return ref, nil
}

func (f *fakeStore) GetFindings(ctx context.Context, scanID string, decryptKey []byte) ([]findings.CommonFinding, error) {
	return f.byScanID[scanID], nil
}

func TestCompute_NewResolvedUnchanged(t *testing.T) {
	store := &fakeStore{
		refs: map[string]string{"baseline": "scan-a", "current": "scan-b"},
		byScanID: map[string][]findings.CommonFinding{
			"scan-a": {
				{Fingerprint: "fp1", Message: "still here"},
				{Fingerprint: "fp2", Message: "fixed since"},
			},
			"scan-b": {
				{Fingerprint: "fp1", Message: "still here"},
				{Fingerprint: "fp3", Message: "brand new"},
			},
		},
	}

	result, err := Compute(context.Background(), store, "baseline", "current")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.New) != 1 || result.New[0].Fingerprint != "fp3" {
		t.Errorf("expected fp3 as new, got %v", result.New)
	}
	if len(result.Resolved) != 1 || result.Resolved[0].Fingerprint != "fp2" {
		t.Errorf("expected fp2 as resolved, got %v", result.Resolved)
	}
	if len(result.Unchanged) != 1 || result.Unchanged[0].Fingerprint != "fp1" {
		t.Errorf("expected fp1 as unchanged, got %v", result.Unchanged)
	}
}

func TestCompute_DiffAgainstSelfIsEmpty(t *testing.T) {
	store := &fakeStore{
		refs: map[string]string{"scan-a": "scan-a"},
		byScanID: map[string][]findings.CommonFinding{
			"scan-a": {
				{Fingerprint: "fp1"},
				{Fingerprint: "fp2"},
			},
		},
	}

	result, err := Compute(context.Background(), store, "scan-a", "scan-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.New) != 0 || len(result.Resolved) != 0 {
		t.Errorf("diff(A,A) should yield no new/resolved findings, got new=%v resolved=%v", result.New, result.Resolved)
	}
	if len(result.Unchanged) != 2 {
		t.Errorf("diff(A,A) should report every finding unchanged, got %v", result.Unchanged)
	}
}
