package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmo-security/jmo/internal/findings"
	"github.com/jmo-security/jmo/internal/gitctx"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testDocument(scanID string, findingsList ...findings.CommonFinding) *findings.Document {
	return &findings.Document{
		Meta: findings.Meta{
			ScanID:       scanID,
			Tools:        []string{"semgrep"},
			FindingCount: len(findingsList),
		},
		Findings: findingsList,
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	store := testStore(t)
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ScansCount != 0 || stats.FindingsCount != 0 {
		t.Errorf("expected empty store, got %+v", stats)
	}
}

func TestStoreScan_RoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	resultsDir := t.TempDir()

	doc := testDocument("ignored", findings.CommonFinding{
		Fingerprint: "fp1",
		Severity:    findings.SeverityHigh,
		RuleID:      "R1",
		Tool:        findings.Tool{Name: "semgrep"},
		Path:        "a.go",
		Message:     "something bad",
	})

	id, err := store.StoreScan(ctx, StoreScanInput{
		ResultsDir: resultsDir,
		Profile:    "balanced",
		Document:   doc,
		JmoVersion: "1.0.0",
		GitContext: gitctx.Context{Branch: "main", CommitHash: "abc123"},
	})
	if err != nil {
		t.Fatalf("StoreScan failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty scan id")
	}

	row, err := store.GetScan(ctx, id)
	if err != nil {
		t.Fatalf("GetScan failed: %v", err)
	}
	if row.Branch != "main" || row.Profile != "balanced" {
		t.Errorf("unexpected scan row: %+v", row)
	}

	got, err := store.GetFindings(ctx, id, nil)
	if err != nil {
		t.Fatalf("GetFindings failed: %v", err)
	}
	if len(got) != 1 || got[0].Fingerprint != "fp1" {
		t.Fatalf("unexpected findings: %+v", got)
	}
	if got[0].Message != "something bad" {
		t.Errorf("Message = %q, want %q", got[0].Message, "something bad")
	}
}

func TestStoreScan_MetadataNotCollectedByDefault(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	doc := testDocument("ignored")
	id, err := store.StoreScan(ctx, StoreScanInput{
		ResultsDir: t.TempDir(),
		Profile:    "balanced",
		Document:   doc,
		JmoVersion: "1.0.0",
		// CollectMetadata left false (the default): spec §3.3 requires
		// hostname/username/ci_provider/ci_build_id to stay NULL unless
		// metadata collection is explicitly opted in.
	})
	if err != nil {
		t.Fatalf("StoreScan failed: %v", err)
	}

	row, err := store.GetScan(ctx, id)
	if err != nil {
		t.Fatalf("GetScan failed: %v", err)
	}
	if row.Hostname != "" || row.Username != "" {
		t.Errorf("expected hostname/username to be empty by default, got hostname=%q username=%q", row.Hostname, row.Username)
	}
}

func TestStoreScan_MetadataCollectedWhenOptedIn(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	doc := testDocument("ignored")
	id, err := store.StoreScan(ctx, StoreScanInput{
		ResultsDir:      t.TempDir(),
		Profile:         "balanced",
		Document:        doc,
		JmoVersion:      "1.0.0",
		CollectMetadata: true,
	})
	if err != nil {
		t.Fatalf("StoreScan failed: %v", err)
	}

	row, err := store.GetScan(ctx, id)
	if err != nil {
		t.Fatalf("GetScan failed: %v", err)
	}
	if row.Hostname == "" {
		t.Error("expected hostname to be populated when CollectMetadata is true")
	}
}

func TestStoreScan_RejectsInvalidProfile(t *testing.T) {
	store := testStore(t)
	_, err := store.StoreScan(context.Background(), StoreScanInput{
		ResultsDir: t.TempDir(),
		Profile:    "not-a-profile",
		Document:   testDocument("x"),
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognized profile")
	}
}

func TestResolveScanRef_PrefixAndAmbiguity(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, err := store.StoreScan(ctx, StoreScanInput{
		ResultsDir: t.TempDir(),
		Profile:    "fast",
		Document:   testDocument("x"),
	})
	if err != nil {
		t.Fatalf("StoreScan failed: %v", err)
	}

	resolved, err := store.ResolveScanRef(ctx, id[:8])
	if err != nil {
		t.Fatalf("ResolveScanRef by prefix failed: %v", err)
	}
	if resolved != id {
		t.Errorf("resolved = %q, want %q", resolved, id)
	}

	if _, err := store.ResolveScanRef(ctx, "not-a-known-ref"); err == nil {
		t.Error("expected an error resolving an unknown ref")
	}
}

func TestListScans_FilterByBranch(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, branch := range []string{"main", "main", "feature"} {
		if _, err := store.StoreScan(ctx, StoreScanInput{
			ResultsDir: t.TempDir(),
			Profile:    "fast",
			Document:   testDocument("x"),
			GitContext: gitctx.Context{Branch: branch},
		}); err != nil {
			t.Fatalf("StoreScan failed: %v", err)
		}
	}

	rows, err := store.ListScans(ctx, ListFilter{Branch: "main"})
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 scans on main, got %d", len(rows))
	}
}

func TestPrune_KeepsMostRecent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.StoreScan(ctx, StoreScanInput{
			ResultsDir: t.TempDir(),
			Profile:    "fast",
			Document:   testDocument("x"),
			GitContext: gitctx.Context{Branch: "main"},
		})
		if err != nil {
			t.Fatalf("StoreScan failed: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(time.Millisecond)
	}

	deleted, err := store.Prune(ctx, PruneFilter{Branch: "main", Keep: 1})
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("expected 2 scans pruned, got %d: %v", len(deleted), deleted)
	}

	rows, err := store.ListScans(ctx, ListFilter{Branch: "main"})
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 scan remaining, got %d", len(rows))
	}
}

func TestVerify_CleanDatabaseIsValid(t *testing.T) {
	store := testStore(t)
	report, err := store.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !report.IsValid {
		t.Errorf("expected a clean database to verify valid, got errors=%v", report.Errors)
	}
}

// TestConcurrentWrites exercises many goroutines storing scans against the
// same store concurrently; SQLite under WAL serializes writers via the
// single-connection pool, so every write should eventually succeed.
func TestConcurrentWrites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	const writers = 10
	const perWriter = 5

	var wg sync.WaitGroup
	errCh := make(chan error, writers*perWriter)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := store.StoreScan(ctx, StoreScanInput{
					ResultsDir: t.TempDir(),
					Profile:    "fast",
					Document:   testDocument("x"),
					GitContext: gitctx.Context{Branch: "main"},
				})
				if err != nil {
					errCh <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent StoreScan failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ScansCount != writers*perWriter {
		t.Errorf("ScansCount = %d, want %d", stats.ScansCount, writers*perWriter)
	}
}
