package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"invoiceflow/internal/app"
	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/invoice"
	"invoiceflow/internal/infrastructure/storage/memory"
)

const demoTenant = "demo"

func newDemoCmd() *cobra.Command {
	var restoreOnModification bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk an invoice through the workflow on an in-memory store",
		Long: `demo needs no database. It creates a product with 5 units, sells 3 of them
on an invoice and shows how paying, re-paying, modification and unpaying
move stock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.DefaultConfig()
			cfg.Workflow.RestoreOnModification = restoreOnModification
			return runDemo(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().BoolVar(&restoreOnModification, "restore-on-modification", false,
		"Restore stock as soon as a modification of a paid invoice is requested")

	return cmd
}

type demo struct {
	out      io.Writer
	ctx      context.Context
	services *app.Services
	product  *product.Product
}

func runDemo(ctx context.Context, out io.Writer, cfg app.Config) error {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ctx = appctx.WithUser(ctx, &appctx.UserContext{
		UserID:   "demo-manager",
		TenantID: demoTenant,
		IsAdmin:  true,
	})

	d := &demo{
		out:      out,
		ctx:      ctx,
		services: app.NewServices(app.NewMemoryBackend(memory.NewStore()), cfg),
	}

	d.product = product.NewProduct(demoTenant, "WIDGET", "Widget", types.NewMoneyFromInt(20), 5)
	if err := d.services.Products.Create(ctx, d.product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	if err := d.stockLevel("created product"); err != nil {
		return err
	}

	inv, err := d.invoice("Acme Ltd", 3)
	if err != nil {
		return err
	}
	printInvoice(out, inv)

	wf := d.services.Workflow
	steps := []struct {
		label   string
		op      func(context.Context, id.ID) (*invoice.Invoice, error)
		expects string
	}{
		{"submit", wf.Submit, ""},
		{"approve", wf.Approve, ""},
		{"mark paid", wf.MarkPaid, ""},
		{"mark paid again", wf.MarkPaid, apperror.CodeInvalidTransition},
		{"request modification", func(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
			return wf.RequestModification(ctx, invoiceID, "quantity was wrong")
		}, ""},
		{"approve modification", wf.ApproveModification, ""},
		{"approve", wf.Approve, ""},
	}
	for _, s := range steps {
		if err := d.step(s.label, inv.ID, s.op, s.expects); err != nil {
			return err
		}
	}

	// A paid invoice that went through modification still holds its stock
	// unless the restore-on-modification policy released it.
	current, err := d.services.Invoices.Get(ctx, inv.ID)
	if err != nil {
		return err
	}
	if current.IsStockDeducted() {
		if err := d.step("mark paid while deducted", inv.ID, wf.MarkPaid, apperror.CodeStockAlreadyDeducted); err != nil {
			return err
		}
		if err := d.step("mark unpaid", inv.ID, wf.MarkUnpaid, ""); err != nil {
			return err
		}
	}
	if err := d.step("mark paid", inv.ID, wf.MarkPaid, ""); err != nil {
		return err
	}

	big, err := d.invoice("Globex", 10)
	if err != nil {
		return err
	}
	for _, s := range []struct {
		label   string
		op      func(context.Context, id.ID) (*invoice.Invoice, error)
		expects string
	}{
		{"submit", wf.Submit, ""},
		{"approve", wf.Approve, ""},
		{"mark paid", wf.MarkPaid, apperror.CodeInsufficientStock},
	} {
		if err := d.step(s.label, big.ID, s.op, s.expects); err != nil {
			return err
		}
	}

	report, err := d.services.Ledger.Reconcile(ctx)
	if err != nil {
		return err
	}
	printReconcile(out, report)
	if !report.Consistent() {
		return fmt.Errorf("ledger drift after demo")
	}
	return nil
}

func (d *demo) invoice(customer string, qty int64) (*invoice.Invoice, error) {
	inv := invoice.NewInvoice(demoTenant, invoice.TypeInvoice, customer)
	inv.TaxRate = types.NewMoneyFromInt(10)
	inv.AddItem(&d.product.ID, d.product.Name, d.product.UnitPrice, types.Quantity(qty))
	if err := d.services.Invoices.Create(d.ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

// step runs op and checks it failed with expects, or succeeded when expects is empty.
func (d *demo) step(label string, invoiceID id.ID, op func(context.Context, id.ID) (*invoice.Invoice, error), expects string) error {
	inv, err := op(d.ctx, invoiceID)
	switch {
	case expects != "" && apperror.IsCode(err, expects):
		fmt.Fprintf(d.out, "%-26s refused: %s\n", label, expects)
	case expects != "":
		return fmt.Errorf("%s: expected %s, got %v", label, expects, err)
	case err != nil:
		return fmt.Errorf("%s: %w", label, err)
	default:
		fmt.Fprintf(d.out, "%-26s -> %s\n", label, inv.Status)
	}
	return d.stockLevel("  stock")
}

func (d *demo) stockLevel(label string) error {
	p, err := d.services.Products.GetByID(d.ctx, d.product.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "%s: %s=%s\n", label, p.SKU(), p.Quantity)
	return nil
}
