package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmo-security/jmo/internal/errs"
)

var attestFlags struct {
	attestationPath string
}

// attestCmd and verifyCmd are intentionally thin: attestation/signing is out
// of core scope (spec §6), but the CLI surface and exit-code contract
// (0 verified, 1 tamper/missing, other error) are specified, so the stubs
// honor that contract without implementing signing.
var attestCmd = &cobra.Command{
	Use:   "attest <subject>",
	Short: "record an attestation for a subject (out of core scope)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if attestFlags.attestationPath == "" {
			return errs.InvalidError("attest requires --attestation <path>")
		}
		fmt.Fprintln(os.Stderr, "attestation signing is out of core scope; no attestation was written")
		return errs.New("attestation subsystem not implemented")
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <subject>",
	Short: "verify a subject's attestation (out of core scope)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if attestFlags.attestationPath == "" {
			return errs.InvalidError("verify requires --attestation <path>")
		}
		if _, err := os.Stat(attestFlags.attestationPath); err != nil {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "attestation verification is out of core scope; treating presence of the file as unverifiable")
		os.Exit(1)
		return nil
	},
}

func init() {
	attestCmd.Flags().StringVar(&attestFlags.attestationPath, "attestation", "", "path to the attestation document")
	verifyCmd.Flags().StringVar(&attestFlags.attestationPath, "attestation", "", "path to the attestation document")
	rootCmd.AddCommand(attestCmd, verifyCmd)
}
