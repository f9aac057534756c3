package main

import (
	"fmt"
	"io"
	"os"

	"cryptoprinter/internal/decision"

	"github.com/spf13/cobra"
)

func newParseCmd(root *rootOptions) *cobra.Command {
	var symbols []string
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Dry-run the command parser on a saved model reply (stdin when no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(symbols) == 0 {
				if cfg, _, err := root.load(); err == nil {
					symbols = cfg.Market.SymbolsUpper()
				}
			}
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			printParse(cmd.OutOrStdout(), decision.NewParser(symbols).Parse(string(raw)))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "allowed tickers (default: market.symbols from config)")
	return cmd
}

func printParse(w io.Writer, res decision.ParseResult) {
	fmt.Fprintf(w, "commands: %d\n", len(res.Commands))
	for _, c := range res.Commands {
		fmt.Fprintf(w, "  line %d: %s\n", c.Line, c)
	}
	if len(res.Issues) > 0 {
		fmt.Fprintf(w, "rejected: %d\n", len(res.Issues))
		for _, s := range res.IssueStrings() {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
	if !res.HasCommands() {
		fmt.Fprintln(w, "no recognised command; the loop would ask again")
	}
}
