package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/optomapp/ledger-engine/ledger"
)

var (
	reportFrom    string
	reportTo      string
	reportProduct string
)

// optom report
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print totals, profit and stock drift",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := reportFilter()
		if err != nil {
			return err
		}

		a, err := boot()
		if err != nil {
			return err
		}
		store, err := a.openStore(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer store.Close()

		reporter := ledger.NewReporter(store)
		summary, err := reporter.Summary(cmd.Context(), filter)
		if err != nil {
			return err
		}
		drift, err := reporter.StockDrift(cmd.Context())
		if err != nil {
			return err
		}
		return printReport(cmd.OutOrStdout(), summary, drift)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "first day included (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "last day included (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportProduct, "product", "", "restrict to one product id")
}

func reportFilter() (ledger.TransactionFilter, error) {
	filter := ledger.TransactionFilter{ProductID: reportProduct}
	if reportFrom != "" {
		t, err := time.Parse(time.DateOnly, reportFrom)
		if err != nil {
			return filter, fmt.Errorf("--from: %w", err)
		}
		filter.From = t
	}
	if reportTo != "" {
		t, err := time.Parse(time.DateOnly, reportTo)
		if err != nil {
			return filter, fmt.Errorf("--to: %w", err)
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	return filter, nil
}

func printReport(out io.Writer, s ledger.Summary, drift []ledger.StockDrift) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Acceptances\t%d\t\n", s.AcceptanceCount)
	fmt.Fprintf(w, "Sales\t%d\t\n", s.SaleCount)
	fmt.Fprintf(w, "Accepted value\t%s\t\n", s.TotalAcceptanceValue.StringFixed(2))
	fmt.Fprintf(w, "Sales value\t%s\t\n", s.TotalSaleValue.StringFixed(2))
	fmt.Fprintf(w, "Simple profit\t%s\t\n", s.SimpleProfit.StringFixed(2))
	fmt.Fprintf(w, "Profit (average cost)\t%s\t\n", s.AverageCostProfit.Profit.StringFixed(2))
	fmt.Fprintf(w, "Profit (cost at sale)\t%s\t\n", s.SnapshotCostProfit.Profit.StringFixed(2))
	fmt.Fprintf(w, "Inventory value\t%s\t\n", s.InventoryValue.StringFixed(2))
	if err := w.Flush(); err != nil {
		return err
	}

	var drifted []ledger.StockDrift
	for _, row := range drift {
		if row.Drift != 0 {
			drifted = append(drifted, row)
		}
	}
	if len(drifted) == 0 {
		fmt.Fprintln(out, "\nStock matches the ledger.")
		return nil
	}

	fmt.Fprintln(out, "\nStock drift:")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tLEDGER\tSTORED\tDRIFT")
	for _, row := range drifted {
		name := row.ProductName
		if row.Orphaned {
			name += " (deleted)"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%+d\n", name, row.LedgerStock, row.StoredStock, row.Drift)
	}
	return w.Flush()
}
