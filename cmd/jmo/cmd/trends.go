package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmo-security/jmo/internal/errs"
	"github.com/jmo-security/jmo/internal/history"
	"github.com/jmo-security/jmo/internal/trend"
)

var trendsFlags struct {
	dbPath       string
	branch       string
	days         int
	compareWith  string
	exportJSONTo string
	format       string
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "analyze security posture trends across scans",
}

func init() {
	pf := trendsCmd.PersistentFlags()
	pf.StringVar(&trendsFlags.dbPath, "db", history.DefaultDBPath, "historical store path")
	pf.StringVar(&trendsFlags.branch, "branch", "main", "branch to analyze")
	pf.IntVar(&trendsFlags.days, "days", 90, "trailing window in days")
	pf.StringVar(&trendsFlags.exportJSONTo, "export-json", "", "write the output to this path instead of stdout (for analyze, in the --format encoding)")
	pf.StringVar(&trendsFlags.format, "format", "json", "output format for analyze: json, csv, prometheus, grafana, dashboard")

	analyzeCmd := &cobra.Command{Use: "analyze", Short: "compute the full trend summary", RunE: runTrendsAnalyze}
	showCmd := &cobra.Command{Use: "show", Short: "alias of analyze", RunE: runTrendsAnalyze}
	regressionsCmd := &cobra.Command{Use: "regressions", Short: "list detected regressions", RunE: runTrendsRegressions}
	scoreCmd := &cobra.Command{Use: "score", Short: "show the current security posture score", RunE: runTrendsScore}
	compareCmd := &cobra.Command{Use: "compare", Short: "compare trends between two branches", RunE: runTrendsCompare}
	compareCmd.Flags().StringVar(&trendsFlags.compareWith, "with", "", "branch to compare against --branch")
	insightsCmd := &cobra.Command{Use: "insights", Short: "list generated narrative insights", RunE: runTrendsInsights}
	explainCmd := &cobra.Command{Use: "explain", Short: "explain the current trend classification", RunE: runTrendsExplain}
	developersCmd := &cobra.Command{Use: "developers", Short: "attribute findings to developers via git blame", RunE: runTrendsDevelopers}

	trendsCmd.AddCommand(analyzeCmd, showCmd, regressionsCmd, scoreCmd, compareCmd, insightsCmd, explainCmd, developersCmd)
	rootCmd.AddCommand(trendsCmd)
}

func emitTrendResult(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if trendsFlags.exportJSONTo != "" {
		return os.WriteFile(trendsFlags.exportJSONTo, out, 0o644)
	}
	fmt.Println(string(out))
	return nil
}

func analyzeBranch(ctx context.Context, branch string) (trend.Summary, error) {
	store, err := history.Open(trendsFlags.dbPath)
	if err != nil {
		return trend.Summary{}, errs.Wrap(err, "opening historical store")
	}
	defer store.Close()

	return trend.Analyze(ctx, store, branch, trendsFlags.days)
}

func runTrendsAnalyze(cmd *cobra.Command, args []string) error {
	summary, err := analyzeBranch(context.Background(), trendsFlags.branch)
	if err != nil {
		return errs.Wrap(err, "analyzing trends")
	}

	switch trendsFlags.format {
	case "", "json":
		return emitTrendResult(summary)
	case "csv":
		out, err := trend.ExportCSV(summary)
		if err != nil {
			return errs.Wrap(err, "exporting csv")
		}
		return writeTrendExport(out)
	case "prometheus":
		return writeTrendExport(trend.ExportPrometheus(summary))
	case "grafana":
		out, err := trend.ExportGrafana(summary)
		if err != nil {
			return errs.Wrap(err, "building grafana dashboard")
		}
		return writeTrendExport(out)
	case "dashboard":
		out, err := trend.ExportDashboard(summary, time.Now())
		if err != nil {
			return errs.Wrap(err, "building dashboard document")
		}
		return writeTrendExport(out)
	default:
		return errs.InvalidError(fmt.Sprintf("unknown --format %q (want json, csv, prometheus, grafana, dashboard)", trendsFlags.format))
	}
}

func writeTrendExport(out []byte) error {
	if trendsFlags.exportJSONTo != "" {
		return os.WriteFile(trendsFlags.exportJSONTo, out, 0o644)
	}
	fmt.Println(string(out))
	return nil
}

func runTrendsRegressions(cmd *cobra.Command, args []string) error {
	summary, err := analyzeBranch(context.Background(), trendsFlags.branch)
	if err != nil {
		return errs.Wrap(err, "analyzing trends")
	}
	return emitTrendResult(summary.Regressions)
}

func runTrendsScore(cmd *cobra.Command, args []string) error {
	summary, err := analyzeBranch(context.Background(), trendsFlags.branch)
	if err != nil {
		return errs.Wrap(err, "analyzing trends")
	}
	return emitTrendResult(map[string]interface{}{
		"score": summary.Score,
		"grade": summary.ScoreGrade,
		"trend": summary.ScoreTrend.Trend,
	})
}

func runTrendsCompare(cmd *cobra.Command, args []string) error {
	if trendsFlags.compareWith == "" {
		return errs.InvalidError("compare requires --with <branch>")
	}
	ctx := context.Background()
	a, err := analyzeBranch(ctx, trendsFlags.branch)
	if err != nil {
		return err
	}
	b, err := analyzeBranch(ctx, trendsFlags.compareWith)
	if err != nil {
		return err
	}
	return emitTrendResult(map[string]trend.Summary{
		trendsFlags.branch:      a,
		trendsFlags.compareWith: b,
	})
}

func runTrendsInsights(cmd *cobra.Command, args []string) error {
	summary, err := analyzeBranch(context.Background(), trendsFlags.branch)
	if err != nil {
		return err
	}
	return emitTrendResult(summary.Insights)
}

func runTrendsExplain(cmd *cobra.Command, args []string) error {
	summary, err := analyzeBranch(context.Background(), trendsFlags.branch)
	if err != nil {
		return err
	}
	explanation := map[string]interface{}{
		"branch":              summary.Branch,
		"scanCount":           summary.ScanCount,
		"improvementTrend":    summary.ImprovementMetrics.Trend,
		"totalChange":         summary.ImprovementMetrics.TotalChange,
		"mannKendallTotal":    summary.MannKendall["total"],
		"scoreMannKendall":    summary.ScoreTrend,
		"regressionCount":     len(summary.Regressions),
		"insightCount":        len(summary.Insights),
		"resolvedVsIntroduced": fmt.Sprintf("%d resolved, %d introduced", summary.ResolvedCount, summary.IntroducedCount),
	}
	return emitTrendResult(explanation)
}

func runTrendsDevelopers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := history.Open(trendsFlags.dbPath)
	if err != nil {
		return errs.Wrap(err, "opening historical store")
	}
	defer store.Close()

	rows, err := store.ScansForBranch(ctx, trendsFlags.branch, trendsFlags.days)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errs.InvalidError(fmt.Sprintf("no scans found for branch %q", trendsFlags.branch))
	}
	latest := rows[len(rows)-1]

	findingsList, err := store.GetFindings(ctx, latest.ID, nil)
	if err != nil {
		return err
	}

	locations := make([]trend.FindingLocation, 0, len(findingsList))
	for _, f := range findingsList {
		if f.Path == "" || f.StartLine == 0 {
			continue
		}
		locations = append(locations, trend.FindingLocation{Path: f.Path, StartLine: f.StartLine})
	}

	report := trend.AttributeDevelopers(ctx, primaryTargetPath(), locations, loadAuthorTeamMap())
	return emitTrendResult(report)
}

// loadAuthorTeamMap reads an optional author->team mapping; the config
// surface has no dedicated section for it yet, so an empty map (no team
// rollup, per-author counts still populate) is the default.
func loadAuthorTeamMap() map[string]string {
	return map[string]string{}
}
