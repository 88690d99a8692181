// Package invoice provides the invoice aggregate, its totals calculation and the
// workflow that moves it through its statuses and drives the stock ledger.
package invoice

import (
	"context"
	"strings"
	"time"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/registers/stock"
)

// Status is the workflow state of an invoice.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusPaid      Status = "PAID"
	StatusSent      Status = "SENT" // proforma only
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusPaid,
		StatusSent, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Type distinguishes fiscal invoices from proformas.
type Type string

const (
	TypeInvoice  Type = "invoice"
	TypeProforma Type = "proforma"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t == TypeInvoice || t == TypeProforma
}

// Invoice is the aggregate root: header, items and workflow timestamps.
type Invoice struct {
	entity.BaseDocument
	entity.CurrencyAware

	Number string `db:"number" json:"number"`
	Type   Type   `db:"type" json:"type"`
	Status Status `db:"status" json:"status"`

	CustomerName  string     `db:"customer_name" json:"customerName"`
	CustomerEmail *string    `db:"customer_email" json:"customerEmail,omitempty"`
	IssueDate     time.Time  `db:"issue_date" json:"issueDate"`
	DueDate       *time.Time `db:"due_date" json:"dueDate,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`

	// Totals, always derived from Items by RecalcTotals
	Subtotal  types.Money `db:"subtotal" json:"subtotal"`
	TaxRate   types.Money `db:"tax_rate" json:"taxRate"` // percent
	TaxAmount types.Money `db:"tax_amount" json:"taxAmount"`
	Total     types.Money `db:"total" json:"total"`

	ModificationRequestedAt *time.Time `db:"modification_requested_at" json:"modificationRequestedAt,omitempty"`
	ModificationRequestedBy *string    `db:"modification_requested_by" json:"modificationRequestedBy,omitempty"`
	ModificationReason      *string    `db:"modification_reason" json:"modificationReason,omitempty"`

	// StockDeductedAt is set iff the stock for this invoice is currently deducted.
	StockDeductedAt *time.Time `db:"stock_deducted_at" json:"stockDeductedAt,omitempty"`

	ApprovedBy      *string    `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	PaidBy          *string    `db:"paid_by" json:"paidBy,omitempty"`
	PaidAt          *time.Time `db:"paid_at" json:"paidAt,omitempty"`
	RejectedBy      *string    `db:"rejected_by" json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejectedAt,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	SentAt          *time.Time `db:"sent_at" json:"sentAt,omitempty"`

	// Table part
	Items []Item `db:"-" json:"items"`
}

// Item is one invoice line. Lines without a product are free text and never touch stock.
type Item struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID   *id.ID         `db:"product_id" json:"productId,omitempty"`
	Description string         `db:"description" json:"description"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	LineTotal   types.Money    `db:"line_total" json:"lineTotal"`
}

// NewInvoice creates a DRAFT invoice of the given type.
func NewInvoice(tenantID string, invoiceType Type, customerName string) *Invoice {
	return &Invoice{
		BaseDocument: entity.NewBaseDocument(tenantID),
		Type:         invoiceType,
		Status:       StatusDraft,
		CustomerName: customerName,
		IssueDate:    time.Now().UTC().Truncate(24 * time.Hour),
		Subtotal:     types.Zero(),
		TaxRate:      types.Zero(),
		TaxAmount:    types.Zero(),
		Total:        types.Zero(),
		Items:        make([]Item, 0),
	}
}

// AddItem appends a line and renumbers.
func (inv *Invoice) AddItem(productID *id.ID, description string, unitPrice types.Money, quantity types.Quantity) {
	inv.Items = append(inv.Items, Item{
		LineID:      id.New(),
		ProductID:   productID,
		Description: description,
		UnitPrice:   unitPrice,
		Quantity:    quantity,
	})
	inv.renumber()
}

// SetItems replaces all lines.
func (inv *Invoice) SetItems(items []Item) {
	inv.Items = make([]Item, len(items))
	copy(inv.Items, items)
	for i := range inv.Items {
		if id.IsNil(inv.Items[i].LineID) {
			inv.Items[i].LineID = id.New()
		}
	}
	inv.renumber()
}

func (inv *Invoice) renumber() {
	for i := range inv.Items {
		inv.Items[i].LineNo = i + 1
	}
}

// RecalcTotals derives line totals and header totals from the current items.
// Safe to call any number of times.
func (inv *Invoice) RecalcTotals() {
	totals := CalculateTotals(inv.Items, inv.TaxRate, inv.CurrencyDecimals)
	for i := range inv.Items {
		inv.Items[i].LineTotal = totals.LineTotals[i]
	}
	inv.Subtotal = totals.Subtotal
	inv.TaxAmount = totals.TaxAmount
	inv.Total = totals.Total
}

// HasPendingModification reports whether a modification request awaits approval.
func (inv *Invoice) HasPendingModification() bool {
	return inv.ModificationRequestedAt != nil
}

// IsStockDeducted reports whether the ledger currently holds this invoice's deduction.
func (inv *Invoice) IsStockDeducted() bool {
	return inv.StockDeductedAt != nil
}

// IsEditable reports whether header and items may change.
func (inv *Invoice) IsEditable() bool {
	return (inv.Status == StatusDraft || inv.Status == StatusPending) && !inv.HasPendingModification()
}

// EnsureEditable returns INVOICE_LOCKED when the edit lock is closed.
func (inv *Invoice) EnsureEditable() error {
	if inv.IsEditable() {
		return nil
	}
	err := apperror.NewBusinessRule(apperror.CodeInvoiceLocked, "Invoice cannot be edited in its current state").
		WithDetail("status", string(inv.Status))
	if inv.HasPendingModification() {
		err = err.WithDetail("modification_pending", true)
	}
	return err
}

// StockLines returns the product lines the ledger works on.
func (inv *Invoice) StockLines() []stock.Line {
	lines := make([]stock.Line, 0, len(inv.Items))
	for _, item := range inv.Items {
		if item.ProductID == nil {
			continue
		}
		lines = append(lines, stock.Line{
			ProductID: *item.ProductID,
			Quantity:  item.Quantity,
			LineNo:    item.LineNo,
		})
	}
	return lines
}

// Validate implements entity.Validatable. Items may be empty here;
// submit and validate require them.
func (inv *Invoice) Validate(ctx context.Context) error {
	if !inv.Type.Valid() {
		return apperror.NewValidation("invalid invoice type").
			WithDetail("field", "type").
			WithDetail("value", string(inv.Type))
	}
	if !inv.Status.Valid() {
		return apperror.NewValidation("invalid invoice status").
			WithDetail("field", "status")
	}
	if strings.TrimSpace(inv.CustomerName) == "" {
		return apperror.NewValidation("customer name is required").
			WithDetail("field", "customerName")
	}
	if err := inv.CurrencyAware.ValidateCurrency(ctx); err != nil {
		return err
	}
	if inv.TaxRate.IsNegative() || inv.TaxRate.GreaterThan(types.NewMoneyFromInt(100)) {
		return apperror.NewValidation("tax rate must be between 0 and 100").
			WithDetail("field", "taxRate")
	}
	if inv.DueDate != nil && inv.DueDate.Before(inv.IssueDate) {
		return apperror.NewValidation("due date is before issue date").
			WithDetail("field", "dueDate")
	}

	for _, item := range inv.Items {
		if err := item.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (it Item) validate() error {
	if strings.TrimSpace(it.Description) == "" {
		return apperror.NewValidation("description is required").
			WithDetail("field", "items").
			WithDetail("line_no", it.LineNo)
	}
	if !it.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be a positive integer").
			WithDetail("field", "items").
			WithDetail("line_no", it.LineNo)
	}
	if it.UnitPrice.IsNegative() {
		return apperror.NewValidation("unit price cannot be negative").
			WithDetail("field", "items").
			WithDetail("line_no", it.LineNo)
	}
	if it.ProductID != nil && id.IsNil(*it.ProductID) {
		return apperror.NewValidation("invalid product reference").
			WithDetail("field", "items").
			WithDetail("line_no", it.LineNo)
	}
	return nil
}

// Snapshot returns the fields recorded in audit diffs.
func (inv *Invoice) Snapshot() map[string]any {
	return map[string]any{
		"status":         string(inv.Status),
		"customer_name":  inv.CustomerName,
		"subtotal":       inv.Subtotal.String(),
		"tax_rate":       inv.TaxRate.String(),
		"total":          inv.Total.String(),
		"items":          len(inv.Items),
		"stock_deducted": inv.IsStockDeducted(),
		"modification":   inv.HasPendingModification(),
	}
}
