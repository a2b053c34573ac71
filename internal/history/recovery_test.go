package history

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRecover_PreservesData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	ctx := context.Background()
	id, err := store.StoreScan(ctx, StoreScanInput{
		ResultsDir: t.TempDir(),
		Profile:    "fast",
		Document:   testDocument("x"),
	})
	if err != nil {
		t.Fatalf("StoreScan failed: %v", err)
	}
	store.Close()

	result, recovered, err := Recover(ctx, dbPath)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	defer recovered.Close()

	if !result.Success {
		t.Fatalf("expected recovery success, got errors=%v", result.Errors)
	}

	row, err := recovered.GetScan(ctx, id)
	if err != nil {
		t.Fatalf("expected the recovered store to still contain the scan: %v", err)
	}
	if row.ID != id {
		t.Errorf("ID = %q, want %q", row.ID, id)
	}
}
