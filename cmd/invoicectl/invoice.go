package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"invoiceflow/internal/core/id"
	"invoiceflow/internal/domain/invoice"
)

// workflowOp runs one workflow action against an invoice.
type workflowOp func(w *invoice.Workflow, ctx context.Context, invoiceID id.ID, reason string) (*invoice.Invoice, error)

func noReason(fn func(*invoice.Workflow, context.Context, id.ID) (*invoice.Invoice, error)) workflowOp {
	return func(w *invoice.Workflow, ctx context.Context, invoiceID id.ID, _ string) (*invoice.Invoice, error) {
		return fn(w, ctx, invoiceID)
	}
}

var workflowOps = []struct {
	use   string
	short string
	op    workflowOp
}{
	{"submit", "Submit a draft invoice for approval", noReason((*invoice.Workflow).Submit)},
	{"validate", "Validate a draft proforma", noReason((*invoice.Workflow).ValidateProforma)},
	{"approve", "Approve a pending invoice", noReason((*invoice.Workflow).Approve)},
	{"pay", "Mark an invoice paid and deduct stock", noReason((*invoice.Workflow).MarkPaid)},
	{"unpay", "Revert a paid invoice and restore stock", noReason((*invoice.Workflow).MarkUnpaid)},
	{"request-mod", "Request modification of an approved or paid invoice", (*invoice.Workflow).RequestModification},
	{"approve-mod", "Approve a pending modification request", noReason((*invoice.Workflow).ApproveModification)},
	{"reject", "Reject a pending invoice", (*invoice.Workflow).Reject},
	{"cancel", "Cancel an invoice", noReason((*invoice.Workflow).Cancel)},
}

func newInvoiceCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Run invoice workflow actions",
	}

	var reason string
	for _, w := range workflowOps {
		op := w.op
		sub := &cobra.Command{
			Use:   w.use + " <invoice-id>",
			Short: w.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				invoiceID, err := id.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid invoice id %q: %w", args[0], err)
				}
				return withRuntime(cmd, flags, func(ctx context.Context, rt *runtime) error {
					inv, err := op(rt.services.Workflow, ctx, invoiceID, reason)
					if err != nil {
						return err
					}
					printInvoice(cmd.OutOrStdout(), inv)
					return nil
				})
			},
		}
		if w.use == "request-mod" || w.use == "reject" {
			sub.Flags().StringVar(&reason, "reason", "", "Reason recorded on the invoice")
		}
		cmd.AddCommand(sub)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <invoice-id>",
		Short: "Print an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := id.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid invoice id %q: %w", args[0], err)
			}
			return withRuntime(cmd, flags, func(ctx context.Context, rt *runtime) error {
				inv, err := rt.services.Invoices.Get(ctx, invoiceID)
				if err != nil {
					return err
				}
				printInvoice(cmd.OutOrStdout(), inv)
				return nil
			})
		},
	})

	return cmd
}

func printInvoice(out io.Writer, inv *invoice.Invoice) {
	deducted := "no"
	if inv.IsStockDeducted() {
		deducted = "yes"
	}
	fmt.Fprintf(out, "%s  %s  %-9s  %s  total=%s  stock_deducted=%s\n",
		inv.ID, inv.Number, inv.Status, inv.CustomerName, inv.Total.StringFixed(2), deducted)
	if inv.HasPendingModification() && inv.ModificationReason != nil {
		fmt.Fprintf(out, "  modification requested: %s\n", *inv.ModificationReason)
	}
}
