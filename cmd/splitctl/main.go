package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"splitcoord/internal/cli"
)

var version = "dev"

func main() {
	var apiURL string

	rootCmd := &cobra.Command{
		Use:     "splitctl",
		Short:   "Operator/participant CLI for the Splits Coordination Service",
		Version: version,
		Long: `splitctl drives the off-chain half of a split's signing lifecycle
against a running Splits Coordination Service:

  splitctl wallet create                       store a new signing key
  splitctl intent <splitID> <participant>      fetch the EIP-712 typed data to sign
  splitctl sign <intent.json>                  sign it with the stored key
  splitctl submit <splitID> <signed.json>      post the signature back
  splitctl settle <splitID>                    ask the executor to settle on-chain
  splitctl doctor                              check keyring availability`,
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8080", "Splits Coordination Service base URL")

	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the local signing key",
	}
	walletCmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Generate a new signing key and store it in the OS keyring",
			RunE: func(cmd *cobra.Command, args []string) error {
				return cli.WalletCreate()
			},
		},
		&cobra.Command{
			Use:   "import",
			Short: "Import an existing private key (reads from stdin or prompts)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return cli.WalletImport()
			},
		},
		&cobra.Command{
			Use:   "address",
			Short: "Print the stored signing key's address",
			RunE: func(cmd *cobra.Command, args []string) error {
				return cli.WalletAddress()
			},
		},
	)

	var intentOut string
	intentCmd := &cobra.Command{
		Use:   "intent <splitID> <participant>",
		Short: "Fetch the EIP-712 typed data a participant must sign",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			splitID, err := parseSplitID(args[0])
			if err != nil {
				return err
			}
			out := intentOut
			if out == "" {
				out = fmt.Sprintf("split-%d-intent.json", splitID)
			}
			return cli.FetchIntent(apiURL, splitID, args[1], out)
		},
	}
	intentCmd.Flags().StringVarP(&intentOut, "output", "o", "", "output file (default split-<id>-intent.json)")

	var signOut string
	signCmd := &cobra.Command{
		Use:   "sign <intent.json>",
		Short: "Sign typed data with the stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := signOut
			if out == "" {
				out = "signed-" + args[0]
			}
			return cli.Sign(args[0], out)
		},
	}
	signCmd.Flags().StringVarP(&signOut, "output", "o", "", "output file (default signed-<intent file>)")

	submitCmd := &cobra.Command{
		Use:   "submit <splitID> <signed.json>",
		Short: "Submit a signed intent back to the coordination service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			splitID, err := parseSplitID(args[0])
			if err != nil {
				return err
			}
			return cli.Submit(apiURL, splitID, args[1])
		},
	}

	settleCmd := &cobra.Command{
		Use:   "settle <splitID>",
		Short: "Settle a split on-chain using its stored VALID signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			splitID, err := parseSplitID(args[0])
			if err != nil {
				return err
			}
			return cli.SettleSplit(apiURL, splitID)
		},
	}

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check OS keyring availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Doctor()
		},
	}

	rootCmd.AddCommand(walletCmd, intentCmd, signCmd, submitCmd, settleCmd, doctorCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseSplitID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	if err != nil {
		return 0, fmt.Errorf("invalid split id %q", s)
	}
	return id, nil
}
