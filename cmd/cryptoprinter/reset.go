package main

import (
	"bufio"
	"fmt"
	"strings"

	"cryptoprinter/internal/app"

	"github.com/spf13/cobra"
)

func newResetCmd(root *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the persisted ledger; the next run starts from the initial balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete the %s ledger and all trade history? [y/N] ", cfg.Ledger.Backend)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			if err := app.ResetLedger(cmd.Context(), cfg.Ledger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger reset; next start balance $%.2f\n", cfg.Ledger.InitialBalance)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
