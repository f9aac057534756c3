package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"cryptoprinter/internal/app"
	"cryptoprinter/internal/ledger"

	"github.com/spf13/cobra"
)

func newPortfolioCmd(root *rootOptions) *cobra.Command {
	var (
		trades int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Print the simulated ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			store, err := app.OpenLedgerStore(cmd.Context(), cfg.Ledger)
			if err != nil {
				return err
			}
			defer store.Close()
			book, err := app.OpenLedger(cmd.Context(), cfg.Ledger, store)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(book.Snapshot())
			}
			return printPortfolio(out, book, trades)
		},
	}
	cmd.Flags().IntVarP(&trades, "trades", "n", 10, "number of recent trades to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw snapshot document")
	return cmd
}

func printPortfolio(w io.Writer, book *ledger.Ledger, trades int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Cash\t$%s\n", book.Balance().StringFixed(2))
	fmt.Fprintf(tw, "Reserved\t$%s\n", book.Reserved().StringFixed(2))
	fmt.Fprintf(tw, "Available\t$%s\n", book.Available().StringFixed(2))
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "SYMBOL\tQUANTITY\tAVG PRICE\tCOST")
	for _, p := range book.Positions() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t$%s\n", p.Symbol, p.Quantity.StringFixed(8), p.AveragePrice.StringFixed(4), p.CostBasis().StringFixed(2))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "ORDER\tSIDE\tSYMBOL\tAMOUNT\tLIMIT\tCREATED")
	for _, o := range book.OpenOrders() {
		limit := "-"
		if o.LimitPrice != nil {
			limit = o.LimitPrice.String()
		}
		fmt.Fprintf(tw, "#%d\t%s\t%s\t$%s\t%s\t%s\n", o.ID, o.Side, o.Symbol, o.Amount.StringFixed(2), limit, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "TIME\tCOMMAND\tSYMBOL\tAMOUNT\tPRICE\tREASONING")
	for _, t := range book.RecentTrades(trades) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t$%s\t%s\t%s\n", t.Timestamp.Format("2006-01-02 15:04"), t.Command, t.Symbol, t.Amount.StringFixed(2), t.Price.String(), t.Reasoning)
	}
	return tw.Flush()
}
