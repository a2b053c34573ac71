package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmo-security/jmo/internal/errs"
	"github.com/jmo-security/jmo/internal/findings"
)

var reportFlags struct {
	failOn  string
	profile string
}

var reportCmd = &cobra.Command{
	Use:   "report [results_dir]",
	Short: "finalize a normalized findings report from a results directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.failOn, "fail-on", "", "severity threshold (CRITICAL, HIGH, MEDIUM, LOW, INFO) that makes the exit code non-zero")
	f.StringVar(&reportFlags.profile, "profile", "", "write a timings.json sibling with a wall-clock profile")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	resultsDir := "."
	if len(args) == 1 {
		resultsDir = args[0]
	}

	start := time.Now()
	doc, err := runNormalization(resultsDir)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Wrap(err, "marshalling report")
	}
	if err := os.WriteFile(filepath.Join(resultsDir, "findings.json"), out, 0o644); err != nil {
		return errs.Wrap(err, "writing findings.json")
	}

	if reportFlags.profile != "" {
		timings := map[string]float64{"normalize_seconds": elapsed.Seconds()}
		data, _ := json.MarshalIndent(timings, "", "  ")
		if err := os.WriteFile(filepath.Join(resultsDir, "timings.json"), data, 0o644); err != nil {
			return errs.Wrap(err, "writing timings.json")
		}
	}

	if reportFlags.failOn != "" {
		threshold := findings.Severity(reportFlags.failOn)
		if !threshold.Valid() {
			return errs.InvalidError(fmt.Sprintf("invalid --fail-on severity %q", reportFlags.failOn))
		}
		for _, f := range doc.Findings {
			if f.Severity.Rank() >= threshold.Rank() {
				os.Exit(1)
			}
		}
	}

	return nil
}

func runNormalization(resultsDir string) (*findings.Document, error) {
	doc, err := findings.Run(findings.PipelineOptions{
		ResultsDir: resultsDir,
		ScanID:     "report",
		Profile:    resolveProfileName(),
		JmoVersion: JmoVersion,
		Platform:   platformString(),
	})
	if err != nil {
		return nil, errs.Wrap(err, "normalizing findings")
	}
	return doc, nil
}
