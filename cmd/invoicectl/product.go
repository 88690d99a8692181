package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"invoiceflow/internal/domain"
)

func newProductCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Product catalog reports",
	}

	var limit int
	lowStock := &cobra.Command{
		Use:   "low-stock",
		Short: "List products at or below their reorder threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, func(ctx context.Context, rt *runtime) error {
				res, err := rt.services.Products.FindLowStock(ctx, domain.ListFilter{Limit: limit, OrderBy: "code"})
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SKU\tNAME\tQTY\tMIN")
				for _, p := range res.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.SKU(), p.Name, p.Quantity, p.MinQuantity)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d product(s)\n", len(res.Items), res.TotalCount)
				return nil
			})
		},
	}
	lowStock.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.AddCommand(lowStock)

	return cmd
}
