package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmo-security/jmo/internal/catalog"
	"github.com/jmo-security/jmo/internal/errs"
	"github.com/jmo-security/jmo/internal/findings"
	"github.com/jmo-security/jmo/internal/gitctx"
	"github.com/jmo-security/jmo/internal/history"
	"github.com/jmo-security/jmo/internal/layout"
	"github.com/jmo-security/jmo/internal/logging"
	"github.com/jmo-security/jmo/internal/orchestrator"
)

var scanFlags struct {
	repos          []string
	reposDir       string
	targets        string
	images         []string
	imagesFile     string
	terraformState []string
	cloudformation []string
	k8sManifest    []string
	urls           []string
	urlsFile       string
	apiSpec        []string
	gitlabProject  []string

	resultsDir        string
	tools             []string
	timeout           int
	threads           int
	profileName       string
	allowMissingTools bool
	storeHistory      bool
	encryptFindings   bool
	noStoreRaw        bool
	collectMetadata   bool
	dbPath            string
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "run the scanner catalog against a set of targets",
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringArrayVar(&scanFlags.repos, "repo", nil, "repository path to scan (repeatable)")
	f.StringVar(&scanFlags.reposDir, "repos-dir", "", "directory of repositories to scan")
	f.StringVar(&scanFlags.targets, "targets", "", "file listing newline-separated repo paths")
	f.StringArrayVar(&scanFlags.images, "image", nil, "container image reference to scan (repeatable)")
	f.StringVar(&scanFlags.imagesFile, "images-file", "", "file listing newline-separated image references")
	f.StringArrayVar(&scanFlags.terraformState, "terraform-state", nil, "terraform state/plan file to scan (repeatable)")
	f.StringArrayVar(&scanFlags.cloudformation, "cloudformation", nil, "cloudformation template to scan (repeatable)")
	f.StringArrayVar(&scanFlags.k8sManifest, "k8s-manifest", nil, "kubernetes manifest to scan (repeatable)")
	f.StringArrayVar(&scanFlags.urls, "url", nil, "URL target to scan (repeatable)")
	f.StringVar(&scanFlags.urlsFile, "urls-file", "", "file listing newline-separated URL targets")
	f.StringArrayVar(&scanFlags.apiSpec, "api-spec", nil, "API specification file to scan (repeatable)")
	f.StringArrayVar(&scanFlags.gitlabProject, "gitlab-project", nil, "gitlab project path to scan (repeatable)")

	f.StringVar(&scanFlags.resultsDir, "results-dir", "jmo-results", "directory to write per-tool artifacts into")
	f.StringSliceVar(&scanFlags.tools, "tools", nil, "tool names to run (default: config/profile selection)")
	f.IntVar(&scanFlags.timeout, "timeout", 0, "per-tool timeout in seconds (0: use config default)")
	f.IntVar(&scanFlags.threads, "threads", 0, "worker pool size (0: resolve from config/auto)")
	f.StringVar(&scanFlags.profileName, "profile-name", "", "named profile to apply")
	f.BoolVar(&scanFlags.allowMissingTools, "allow-missing-tools", false, "treat a missing tool binary as a passing stub")
	f.BoolVar(&scanFlags.storeHistory, "store-history", false, "persist this scan to the historical store")
	f.BoolVar(&scanFlags.encryptFindings, "encrypt-findings", false, "encrypt raw finding payloads with JMO_ENCRYPTION_KEY")
	f.BoolVar(&scanFlags.noStoreRaw, "no-store-raw-findings", false, "omit raw adapter payloads from the historical store")
	f.BoolVar(&scanFlags.collectMetadata, "collect-metadata", false, "attach hostname/user/CI metadata to the stored scan")
	f.StringVar(&scanFlags.dbPath, "db", history.DefaultDBPath, "historical store path (with --store-history)")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if scanFlags.profileName != "" {
		cfg = cfg.ResolveProfile(scanFlags.profileName)
	} else {
		cfg = cfg.ResolveProfile("")
	}

	tools := scanFlags.tools
	if len(tools) == 0 {
		tools = cfg.Tools
	}
	if len(tools) == 0 {
		tools = catalog.Names()
	}
	if unknown := catalog.Validate(tools); len(unknown) > 0 {
		return errs.InvalidError(fmt.Sprintf("unknown tools: %v", unknown))
	}

	targets, err := resolveTargets()
	if err != nil {
		return errs.Wrap(err, "resolving targets")
	}
	if len(targets) == 0 {
		return errs.InvalidError("no targets specified")
	}

	threads := scanFlags.threads
	if threads <= 0 {
		threads = cfg.ResolvedThreads(numCPU())
	}

	timeout := time.Duration(scanFlags.timeout) * time.Second
	if scanFlags.timeout <= 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	perTool := make(map[string]orchestrator.PerToolOverride)
	for name, override := range cfg.PerTool {
		d := time.Duration(override.Timeout) * time.Second
		perTool[name] = orchestrator.PerToolOverride{Flags: override.Flags, Timeout: d}
	}

	log := logging.Default().With("component", "cmd.scan")
	orch := orchestrator.New(orchestrator.Options{
		ResultsDir:        scanFlags.resultsDir,
		Tools:             tools,
		Threads:           threads,
		Timeout:           timeout,
		Retries:           cfg.Retries,
		PerTool:           perTool,
		AllowMissingTools: scanFlags.allowMissingTools,
	}, func(completed, total int, targetName string, elapsedSec float64) {
		log.Info("target completed", "target", targetName, "completed", completed, "total", total, "elapsed_sec", elapsedSec)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("received shutdown signal, finishing in-flight jobs")
		orch.Stop()
	}()

	start := time.Now()
	summary, err := orch.Run(ctx, targets)
	if err != nil {
		return errs.Wrap(err, "running scan")
	}
	duration := time.Since(start).Seconds()

	if scanFlags.storeHistory {
		if err := storeScanResult(ctx, duration); err != nil {
			log.WithError(err).Error("failed to store scan history")
		}
	}

	if summary.ExitCode != 0 {
		os.Exit(summary.ExitCode)
	}
	return nil
}

func storeScanResult(ctx context.Context, duration float64) error {
	doc, err := findings.Run(findings.PipelineOptions{
		ResultsDir: scanFlags.resultsDir,
		ScanID:     "pending",
		Profile:    resolveProfileName(),
		JmoVersion: JmoVersion,
		Platform:   platformString(),
	})
	if err != nil {
		return errs.Wrap(err, "normalizing findings")
	}

	store, err := history.Open(scanFlags.dbPath)
	if err != nil {
		return errs.Wrap(err, "opening historical store")
	}
	defer store.Close()

	gctx, _ := gitctx.Detect(primaryTargetPath(), gitctx.DefaultMaxParentWalk)

	var key []byte
	if scanFlags.encryptFindings {
		k := os.Getenv("JMO_ENCRYPTION_KEY")
		if k == "" {
			return errs.ErrEncryptionKeyMissing
		}
		key = []byte(k)
	}

	meta := map[string]string{}
	if scanFlags.collectMetadata {
		meta["collected"] = "true"
	}

	_, err = store.StoreScan(ctx, history.StoreScanInput{
		ResultsDir:      scanFlags.resultsDir,
		Profile:         resolveProfileName(),
		Document:        doc,
		JmoVersion:      JmoVersion,
		DurationSeconds: duration,
		GitContext:      gctx,
		Metadata:        meta,
		EncryptionKey:   key,
		OmitRawFindings: scanFlags.noStoreRaw,
		CollectMetadata: scanFlags.collectMetadata,
	})
	return err
}

func resolveProfileName() string {
	if scanFlags.profileName != "" {
		return scanFlags.profileName
	}
	return "balanced"
}

func primaryTargetPath() string {
	if len(scanFlags.repos) > 0 {
		return scanFlags.repos[0]
	}
	if scanFlags.reposDir != "" {
		return scanFlags.reposDir
	}
	return "."
}

func platformString() string {
	return "linux" // stamped at build time in a release pipeline; fixed here.
}

func numCPU() int {
	return runtime.NumCPU()
}

// resolveTargets builds the catalog.Target list from every target-selection
// flag group (spec §4.1 target resolution).
func resolveTargets() ([]catalog.Target, error) {
	var targets []catalog.Target

	repoPaths := append([]string{}, scanFlags.repos...)
	if scanFlags.reposDir != "" {
		entries, err := os.ReadDir(scanFlags.reposDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				repoPaths = append(repoPaths, filepath.Join(scanFlags.reposDir, e.Name()))
			}
		}
	}
	if scanFlags.targets != "" {
		lines, err := readLines(scanFlags.targets)
		if err != nil {
			return nil, err
		}
		repoPaths = append(repoPaths, lines...)
	}
	for _, p := range repoPaths {
		targets = append(targets, catalog.Target{Kind: layout.TargetRepo, DisplayName: filepath.Base(p), Path: p})
	}

	images := append([]string{}, scanFlags.images...)
	if scanFlags.imagesFile != "" {
		lines, err := readLines(scanFlags.imagesFile)
		if err != nil {
			return nil, err
		}
		images = append(images, lines...)
	}
	for _, ref := range images {
		targets = append(targets, catalog.Target{Kind: layout.TargetImage, DisplayName: layout.Sanitize(ref), Ref: ref})
	}

	for _, p := range scanFlags.terraformState {
		targets = append(targets, catalog.Target{Kind: layout.TargetIaC, DisplayName: filepath.Base(p), Path: p})
	}
	for _, p := range scanFlags.cloudformation {
		targets = append(targets, catalog.Target{Kind: layout.TargetIaC, DisplayName: filepath.Base(p), Path: p})
	}
	for _, p := range scanFlags.k8sManifest {
		targets = append(targets, catalog.Target{Kind: layout.TargetK8s, DisplayName: filepath.Base(p), Path: p})
	}

	urls := append([]string{}, scanFlags.urls...)
	if scanFlags.urlsFile != "" {
		lines, err := readLines(scanFlags.urlsFile)
		if err != nil {
			return nil, err
		}
		urls = append(urls, lines...)
	}
	for _, u := range urls {
		targets = append(targets, catalog.Target{Kind: layout.TargetURL, DisplayName: layout.Sanitize(u), Ref: u})
	}
	for _, spec := range scanFlags.apiSpec {
		targets = append(targets, catalog.Target{Kind: layout.TargetURL, DisplayName: filepath.Base(spec), Path: spec})
	}
	for _, p := range scanFlags.gitlabProject {
		targets = append(targets, catalog.Target{Kind: layout.TargetGitLab, DisplayName: layout.Sanitize(p), Ref: p})
	}

	return targets, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

