package history

import (
	"context"
	"testing"

	"github.com/jmo-security/jmo/internal/gitctx"
)

func TestDatabaseStats(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, branch := range []string{"main", "feature"} {
		if _, err := store.StoreScan(ctx, StoreScanInput{
			ResultsDir: t.TempDir(),
			Profile:    "fast",
			Document:   testDocument("x"),
			GitContext: gitctx.Context{Branch: branch},
		}); err != nil {
			t.Fatalf("StoreScan failed: %v", err)
		}
	}

	stats, err := store.DatabaseStats(ctx)
	if err != nil {
		t.Fatalf("DatabaseStats failed: %v", err)
	}
	if stats.TotalScans != 2 {
		t.Errorf("TotalScans = %d, want 2", stats.TotalScans)
	}
	if stats.ScansByBranch["main"] != 1 || stats.ScansByBranch["feature"] != 1 {
		t.Errorf("unexpected ScansByBranch: %+v", stats.ScansByBranch)
	}
	if stats.ScansByProfile["fast"] != 2 {
		t.Errorf("unexpected ScansByProfile: %+v", stats.ScansByProfile)
	}
	if stats.SizeBytes == 0 {
		t.Error("expected a non-zero database file size")
	}
	if stats.SchemaVersionCount == 0 {
		t.Error("expected at least one recorded schema version")
	}
}

func TestOptimize_RunsWithoutError(t *testing.T) {
	store := testStore(t)
	if err := store.Optimize(context.Background()); err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
}

func TestRunMigrations_NoopOnFreshStore(t *testing.T) {
	store := testStore(t)
	result, err := store.RunMigrations(context.Background(), "")
	if err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	if len(result.Applied) != 0 {
		t.Errorf("expected no pending migrations on a freshly initialized store, got %+v", result.Applied)
	}
}
