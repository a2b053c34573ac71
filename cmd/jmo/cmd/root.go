// Package cmd implements the jmo CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmo-security/jmo/internal/config"
	"github.com/jmo-security/jmo/internal/errs"
	"github.com/jmo-security/jmo/internal/logging"
)

// JmoVersion is stamped into stored scans and report metadata.
const JmoVersion = "1.0.0"

var (
	cfgPath     string
	logLevel    string
	humanLogs   bool
	globalLog   *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "jmo",
	Short: "jmo orchestrates security scanners and tracks findings over time",
	Long: `jmo runs a catalog of security scanners against repositories, container
images, and infrastructure-as-code targets, normalizes their findings into a
common schema, and tracks the result in an embedded historical store.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.ParseLevel(logLevel)
		if humanLogs {
			globalLog = logging.New(os.Stderr, level)
		} else {
			globalLog = logging.NewJSON(os.Stderr, level)
		}
		logging.SetDefault(globalLog)
	},
}

// Execute runs the root command and returns any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to jmo.config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().BoolVar(&humanLogs, "human-logs", false, "emit human-readable text logs instead of JSON")
}

// loadConfig reads configuration from --config (or the discovery path when
// unset), exiting with code 2 per the CLI's config-error contract.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", errs.ConfigError("loading configuration", err))
		os.Exit(2)
	}
	return cfg
}

// ExitCodeFor maps an error returned from Execute to the CLI's exit-code
// contract: 2 for configuration/argument errors, 1 otherwise.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errs.IsInvalid(err) || errs.Is(err, errs.ErrConfiguration) {
		return 2
	}
	return 1
}
