package cmd

import (
	"github.com/spf13/cobra"
)

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "run scan then report in one invocation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runScan(cmd, nil); err != nil {
			return err
		}
		return runReport(cmd, []string{scanFlags.resultsDir})
	},
}

func init() {
	rootCmd.AddCommand(ciCmd)
	// scanCmd/reportCmd register their own flags in their own init()
	// functions; cobra.OnInitialize runs after every package init() has
	// completed, so the flag sets are fully populated by the time this runs.
	cobra.OnInitialize(func() {
		ciCmd.Flags().AddFlagSet(scanCmd.Flags())
		ciCmd.Flags().AddFlagSet(reportCmd.Flags())
	})
}
