package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmo-security/jmo/internal/diff"
	"github.com/jmo-security/jmo/internal/errs"
	"github.com/jmo-security/jmo/internal/history"
)

var diffFlags struct {
	scans  []string
	format string
	output string
	dbPath string
}

var diffCmd = &cobra.Command{
	Use:   "diff [baseline] [current]",
	Short: "compare two scans' findings",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runDiff,
}

func init() {
	f := diffCmd.Flags()
	f.StringArrayVar(&diffFlags.scans, "scan", nil, "scan id or prefix; pass twice for baseline and current")
	f.StringVar(&diffFlags.format, "format", "json", "output format: json or md")
	f.StringVar(&diffFlags.output, "output", "", "write output to this path instead of stdout")
	f.StringVar(&diffFlags.dbPath, "db", history.DefaultDBPath, "historical store path")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	var baselineRef, currentRef string
	switch {
	case len(args) == 2:
		baselineRef, currentRef = args[0], args[1]
	case len(diffFlags.scans) == 2:
		baselineRef, currentRef = diffFlags.scans[0], diffFlags.scans[1]
	default:
		return errs.InvalidError("diff requires a baseline and current scan, either as positional args or two --scan flags")
	}

	store, err := history.Open(diffFlags.dbPath)
	if err != nil {
		return errs.Wrap(err, "opening historical store")
	}
	defer store.Close()

	result, err := diff.Compute(context.Background(), store, baselineRef, currentRef)
	if err != nil {
		return errs.Wrap(err, "computing diff")
	}

	var out []byte
	switch diffFlags.format {
	case "md":
		out = renderDiffMarkdown(result)
	case "json", "":
		out, err = json.MarshalIndent(result, "", "  ")
		if err != nil {
			return errs.Wrap(err, "marshalling diff")
		}
	default:
		return errs.InvalidError(fmt.Sprintf("unknown diff format %q", diffFlags.format))
	}

	if diffFlags.output != "" {
		return os.WriteFile(diffFlags.output, out, 0o644)
	}
	fmt.Println(string(out))
	return nil
}

func renderDiffMarkdown(result diff.Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Diff: %s -> %s\n\n", result.BaselineScanID, result.CurrentScanID)
	fmt.Fprintf(&buf, "## New (%d)\n\n", len(result.New))
	for _, f := range result.New {
		fmt.Fprintf(&buf, "- [%s] %s (%s:%d)\n", f.Severity, f.Message, f.Path, f.StartLine)
	}
	fmt.Fprintf(&buf, "\n## Resolved (%d)\n\n", len(result.Resolved))
	for _, f := range result.Resolved {
		fmt.Fprintf(&buf, "- [%s] %s (%s:%d)\n", f.Severity, f.Message, f.Path, f.StartLine)
	}
	fmt.Fprintf(&buf, "\n## Unchanged (%d)\n", len(result.Unchanged))
	return buf.Bytes()
}
