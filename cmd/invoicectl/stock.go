package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"invoiceflow/internal/domain/registers/stock"
)

func newStockCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Stock ledger reports",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Compare product quantities with their movement ledger",
		Long: `reconcile sums every product's stock movements and compares the result
with the stored quantity. The command exits with an error when any drift is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, func(ctx context.Context, rt *runtime) error {
				report, err := rt.services.Ledger.Reconcile(ctx)
				if err != nil {
					return err
				}
				printReconcile(cmd.OutOrStdout(), report)
				if !report.Consistent() {
					return fmt.Errorf("%d product(s) drifted from the ledger", len(report.Drifts))
				}
				return nil
			})
		},
	})

	return cmd
}

func printReconcile(out io.Writer, report stock.ReconcileReport) {
	fmt.Fprintf(out, "tenant %s: checked %d product(s) at %s\n",
		report.TenantID, report.Products, report.CheckedAt.Format("2006-01-02 15:04:05"))
	for _, d := range report.Drifts {
		fmt.Fprintf(out, "  DRIFT %s (%s): quantity=%s ledger=%s diff=%s\n",
			d.SKU, d.ProductID, d.Quantity, d.LedgerSum, d.Difference())
	}
	if report.Consistent() {
		fmt.Fprintln(out, "  consistent")
	}
}
