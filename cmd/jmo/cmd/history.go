package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmo-security/jmo/internal/errs"
	"github.com/jmo-security/jmo/internal/findings"
	"github.com/jmo-security/jmo/internal/gitctx"
	"github.com/jmo-security/jmo/internal/history"
)

var historyFlags struct {
	dbPath     string
	asJSON     bool
	branch     string
	tag        string
	targetType string
	profile    string
	limit      int
	olderThan  string
	keep       int
	dryRun     bool
	force      bool
	exportPath string

	storeProfile         string
	storeEncryptFindings bool
	storeNoStoreRaw      bool
	storeCollectMetadata bool
	storeGitPath         string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "inspect and manage the historical store",
}

func init() {
	pf := historyCmd.PersistentFlags()
	pf.StringVar(&historyFlags.dbPath, "db", history.DefaultDBPath, "historical store path")
	pf.BoolVar(&historyFlags.asJSON, "json", false, "emit machine-readable JSON")

	listCmd := &cobra.Command{Use: "list", Short: "list stored scans", RunE: runHistoryList}
	listCmd.Flags().StringVar(&historyFlags.branch, "branch", "", "filter by branch")
	listCmd.Flags().StringVar(&historyFlags.tag, "tag", "", "filter by tag")
	listCmd.Flags().StringVar(&historyFlags.targetType, "target-type", "", "filter by target type")
	listCmd.Flags().StringVar(&historyFlags.profile, "profile", "", "filter by profile")
	listCmd.Flags().IntVar(&historyFlags.limit, "limit", 0, "maximum scans to return")

	showCmd := &cobra.Command{Use: "show <scan-ref>", Short: "show one scan's metadata", Args: cobra.ExactArgs(1), RunE: runHistoryShow}
	queryCmd := &cobra.Command{Use: "query <scan-ref>", Short: "list a scan's findings", Args: cobra.ExactArgs(1), RunE: runHistoryQuery}

	pruneCmd := &cobra.Command{Use: "prune", Short: "delete old scans", RunE: runHistoryPrune}
	pruneCmd.Flags().StringVar(&historyFlags.olderThan, "older-than", "", "prune scans older than this duration (e.g. 720h)")
	pruneCmd.Flags().StringVar(&historyFlags.branch, "branch", "", "restrict pruning to this branch")
	pruneCmd.Flags().IntVar(&historyFlags.keep, "keep", 0, "always keep the N most recent matching scans")
	pruneCmd.Flags().BoolVar(&historyFlags.dryRun, "dry-run", false, "report what would be deleted without deleting")
	pruneCmd.Flags().BoolVar(&historyFlags.force, "force", false, "skip the confirmation that dry-run would otherwise require")

	exportCmd := &cobra.Command{Use: "export <scan-ref>", Short: "export one scan's findings as JSON", Args: cobra.ExactArgs(1), RunE: runHistoryExport}
	exportCmd.Flags().StringVar(&historyFlags.exportPath, "output", "", "write to this path instead of stdout")

	statsCmd := &cobra.Command{Use: "stats", Short: "show store-wide statistics", RunE: runHistoryStats}

	diffSubCmd := &cobra.Command{Use: "diff <baseline> <current>", Short: "alias of the top-level diff command against this store", Args: cobra.ExactArgs(2), RunE: runHistoryDiff}

	trendsSubCmd := &cobra.Command{Use: "trends", Short: "alias of `trends analyze` against this store", RunE: runHistoryTrends}
	trendsSubCmd.Flags().StringVar(&historyFlags.branch, "branch", "main", "branch to analyze")
	trendsSubCmd.Flags().IntVar(&historyFlags.limit, "days", 90, "trailing window in days")

	optimizeCmd := &cobra.Command{Use: "optimize", Short: "VACUUM and ANALYZE the store", RunE: runHistoryOptimize}

	migrateCmd := &cobra.Command{Use: "migrate", Short: "apply any pending schema migrations", RunE: runHistoryMigrate}

	verifyCmd := &cobra.Command{Use: "verify", Short: "run the store's integrity verification routine", RunE: runHistoryVerify}

	repairCmd := &cobra.Command{Use: "repair", Short: "dump and reinitialize the store, recovering from corruption", RunE: runHistoryRepair}
	repairCmd.Flags().BoolVar(&historyFlags.force, "force", false, "skip the confirmation prompt")

	storeCmd := &cobra.Command{Use: "store <results-dir>", Short: "normalize and store an existing results directory", Args: cobra.ExactArgs(1), RunE: runHistoryStore}
	storeCmd.Flags().StringVar(&historyFlags.storeProfile, "profile-name", "balanced", "profile label to record for this scan")
	storeCmd.Flags().BoolVar(&historyFlags.storeEncryptFindings, "encrypt-findings", false, "encrypt raw finding payloads with JMO_ENCRYPTION_KEY")
	storeCmd.Flags().BoolVar(&historyFlags.storeNoStoreRaw, "no-store-raw-findings", false, "omit raw adapter payloads from the historical store")
	storeCmd.Flags().BoolVar(&historyFlags.storeCollectMetadata, "collect-metadata", false, "attach hostname/user/CI metadata to the stored scan")
	storeCmd.Flags().StringVar(&historyFlags.storeGitPath, "git-path", ".", "path to detect git context (branch, commit) from")

	historyCmd.AddCommand(listCmd, showCmd, queryCmd, pruneCmd, exportCmd, statsCmd, diffSubCmd, trendsSubCmd, optimizeCmd, migrateCmd, verifyCmd, repairCmd, storeCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistoryStore() (*history.Store, error) {
	store, err := history.Open(historyFlags.dbPath)
	if err != nil {
		return nil, errs.Wrap(err, "opening historical store")
	}
	return store, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.ListScans(context.Background(), history.ListFilter{
		Branch:     historyFlags.branch,
		Tag:        historyFlags.tag,
		TargetType: historyFlags.targetType,
		Profile:    historyFlags.profile,
		Limit:      historyFlags.limit,
	})
	if err != nil {
		return errs.Wrap(err, "listing scans")
	}

	if historyFlags.asJSON {
		return printJSON(rows)
	}
	for _, r := range rows {
		fmt.Printf("%s  %s  %s  findings=%d\n", r.ID, r.TimestampISO, r.Branch, r.TotalFindings)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.ResolveScanRef(context.Background(), args[0])
	if err != nil {
		return err
	}
	row, err := store.GetScan(context.Background(), id)
	if err != nil {
		return err
	}
	return printJSON(row)
}

func runHistoryQuery(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	id, err := store.ResolveScanRef(ctx, args[0])
	if err != nil {
		return err
	}

	var key []byte
	if k := os.Getenv("JMO_ENCRYPTION_KEY"); k != "" {
		key = []byte(k)
	}
	findings, err := store.GetFindings(ctx, id, key)
	if err != nil {
		return errs.Wrap(err, "loading findings")
	}
	return printJSON(findings)
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var cutoff time.Time
	if historyFlags.olderThan != "" {
		d, err := time.ParseDuration(historyFlags.olderThan)
		if err != nil {
			return errs.InvalidError(fmt.Sprintf("invalid --older-than duration %q", historyFlags.olderThan))
		}
		cutoff = time.Now().Add(-d)
	}

	filter := history.PruneFilter{OlderThan: cutoff, Branch: historyFlags.branch, Keep: historyFlags.keep}

	if historyFlags.dryRun {
		scans, err := store.ListScans(context.Background(), history.ListFilter{Branch: historyFlags.branch})
		if err != nil {
			return err
		}
		var candidates []string
		for _, s := range scans {
			if cutoff.IsZero() || s.Timestamp < cutoff.Unix() {
				candidates = append(candidates, s.ID)
			}
		}
		if filter.Keep > 0 && filter.Keep < len(candidates) {
			candidates = candidates[filter.Keep:]
		} else if filter.Keep > 0 {
			candidates = nil
		}
		fmt.Printf("dry-run: %d scans would be deleted\n", len(candidates))
		return nil
	}
	if !historyFlags.force {
		return errs.InvalidError("prune is destructive; pass --force to proceed (or --dry-run to preview)")
	}

	deleted, err := store.Prune(context.Background(), filter)
	if err != nil {
		return errs.Wrap(err, "pruning scans")
	}
	fmt.Printf("pruned %d scans\n", len(deleted))
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	id, err := store.ResolveScanRef(ctx, args[0])
	if err != nil {
		return err
	}
	var key []byte
	if k := os.Getenv("JMO_ENCRYPTION_KEY"); k != "" {
		key = []byte(k)
	}
	findings, err := store.GetFindings(ctx, id, key)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return err
	}
	if historyFlags.exportPath != "" {
		return os.WriteFile(historyFlags.exportPath, out, 0o644)
	}
	fmt.Println(string(out))
	return nil
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.DatabaseStats(context.Background())
	if err != nil {
		return errs.Wrap(err, "collecting statistics")
	}
	return printJSON(stats)
}

func runHistoryDiff(cmd *cobra.Command, args []string) error {
	diffFlags.dbPath = historyFlags.dbPath
	return runDiff(cmd, args)
}

func runHistoryTrends(cmd *cobra.Command, args []string) error {
	trendsFlags.dbPath = historyFlags.dbPath
	trendsFlags.branch = historyFlags.branch
	trendsFlags.days = historyFlags.limit
	return runTrendsAnalyze(cmd, args)
}

func runHistoryOptimize(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Optimize(context.Background()); err != nil {
		return errs.Wrap(err, "optimizing store")
	}
	fmt.Println("optimize complete")
	return nil
}

func runHistoryMigrate(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.RunMigrations(context.Background(), "")
	if err != nil {
		return errs.Wrap(err, "running migrations")
	}
	return printJSON(result)
}

func runHistoryVerify(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Verify(context.Background())
	if err != nil {
		return errs.Wrap(err, "running verification")
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.IsValid {
		os.Exit(1)
	}
	return nil
}

// runHistoryStore normalizes an existing results directory and persists it
// to the historical store, independent of `scan --store-history` (spec §4.2:
// storing is also callable standalone over an existing results directory).
func runHistoryStore(cmd *cobra.Command, args []string) error {
	resultsDir := args[0]

	doc, err := findings.Run(findings.PipelineOptions{
		ResultsDir: resultsDir,
		ScanID:     "pending",
		Profile:    historyFlags.storeProfile,
		JmoVersion: JmoVersion,
		Platform:   platformString(),
	})
	if err != nil {
		return errs.Wrap(err, "normalizing findings")
	}

	store, err := history.Open(historyFlags.dbPath)
	if err != nil {
		return errs.Wrap(err, "opening historical store")
	}
	defer store.Close()

	gctx, _ := gitctx.Detect(historyFlags.storeGitPath, gitctx.DefaultMaxParentWalk)

	var key []byte
	if historyFlags.storeEncryptFindings {
		k := os.Getenv("JMO_ENCRYPTION_KEY")
		if k == "" {
			return errs.ErrEncryptionKeyMissing
		}
		key = []byte(k)
	}

	meta := map[string]string{}
	if historyFlags.storeCollectMetadata {
		meta["collected"] = "true"
	}

	id, err := store.StoreScan(context.Background(), history.StoreScanInput{
		ResultsDir:      resultsDir,
		Profile:         historyFlags.storeProfile,
		Document:        doc,
		JmoVersion:      JmoVersion,
		GitContext:      gctx,
		Metadata:        meta,
		EncryptionKey:   key,
		OmitRawFindings: historyFlags.storeNoStoreRaw,
		CollectMetadata: historyFlags.storeCollectMetadata,
	})
	if err != nil {
		return errs.Wrap(err, "storing scan")
	}
	fmt.Printf("stored scan %s\n", id)
	return nil
}

func runHistoryRepair(cmd *cobra.Command, args []string) error {
	if !historyFlags.force {
		return errs.InvalidError("repair is destructive; pass --force to proceed")
	}

	result, store, err := history.Recover(context.Background(), historyFlags.dbPath)
	if err != nil {
		return errs.Wrap(err, "recovering store")
	}
	defer store.Close()
	return printJSON(result)
}
