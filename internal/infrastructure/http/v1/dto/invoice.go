package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/audit"
	"invoiceflow/internal/domain/invoice"
	"invoiceflow/internal/domain/registers/stock"
)

// --- Request DTOs ---

// InvoiceItemRequest is one line in a create or replace-items request.
type InvoiceItemRequest struct {
	ProductID   *string         `json:"productId"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int64           `json:"quantity"`
}

// CreateInvoiceRequest is the request body for creating an invoice.
type CreateInvoiceRequest struct {
	Type             invoice.Type         `json:"type" binding:"required"`
	CustomerName     string               `json:"customerName" binding:"required"`
	CustomerEmail    *string              `json:"customerEmail"`
	IssueDate        *time.Time           `json:"issueDate"`
	DueDate          *time.Time           `json:"dueDate"`
	Notes            *string              `json:"notes"`
	Currency         string               `json:"currency"`
	CurrencyDecimals int32                `json:"currencyDecimals"`
	TaxRate          decimal.Decimal      `json:"taxRate"`
	Items            []InvoiceItemRequest `json:"items"`
}

// ToEntity converts DTO to domain entity. Tenant, number and status are set by the service.
func (r *CreateInvoiceRequest) ToEntity() (*invoice.Invoice, error) {
	items, err := ToInvoiceItems(r.Items)
	if err != nil {
		return nil, err
	}

	inv := invoice.NewInvoice("", r.Type, r.CustomerName)
	inv.CustomerEmail = r.CustomerEmail
	if r.IssueDate != nil {
		inv.IssueDate = *r.IssueDate
	}
	inv.DueDate = r.DueDate
	inv.Notes = r.Notes
	inv.Currency = r.Currency
	inv.CurrencyDecimals = r.CurrencyDecimals
	inv.TaxRate = r.TaxRate
	inv.Items = items
	return inv, nil
}

// UpdateInvoiceRequest is the request body for updating invoice header fields.
// Omitted fields are left unchanged.
type UpdateInvoiceRequest struct {
	CustomerName  *string          `json:"customerName"`
	CustomerEmail *string          `json:"customerEmail"`
	IssueDate     *time.Time       `json:"issueDate"`
	DueDate       *time.Time       `json:"dueDate"`
	Notes         *string          `json:"notes"`
	TaxRate       *decimal.Decimal `json:"taxRate"`
	Version       int              `json:"version"`
}

// ToHeaderUpdate converts DTO to the service update.
func (r *UpdateInvoiceRequest) ToHeaderUpdate() invoice.HeaderUpdate {
	return invoice.HeaderUpdate{
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		IssueDate:     r.IssueDate,
		DueDate:       r.DueDate,
		Notes:         r.Notes,
		TaxRate:       r.TaxRate,
	}
}

// ReplaceItemsRequest is the request body for PUT /invoices/:id/items.
type ReplaceItemsRequest struct {
	Items   []InvoiceItemRequest `json:"items"`
	Version int                  `json:"version"`
}

// ReasonRequest carries the free-text reason of reject and request-modification.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ToInvoiceItems converts request lines to domain items.
func ToInvoiceItems(lines []InvoiceItemRequest) ([]invoice.Item, error) {
	items := make([]invoice.Item, 0, len(lines))
	for i, line := range lines {
		productID, err := ParseOptionalID(fmt.Sprintf("items[%d].productId", i), line.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, invoice.Item{
			ProductID:   productID,
			Description: line.Description,
			UnitPrice:   line.UnitPrice,
			Quantity:    types.Quantity(line.Quantity),
		})
	}
	return items, nil
}

// --- Response DTOs ---

// InvoiceItemResponse is one invoice line.
type InvoiceItemResponse struct {
	LineID      string          `json:"lineId"`
	LineNo      int             `json:"lineNo"`
	ProductID   *string         `json:"productId,omitempty"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int64           `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// InvoiceResponse is the API representation of an invoice.
type InvoiceResponse struct {
	BaseResponse
	Number           string          `json:"number"`
	Type             invoice.Type    `json:"type"`
	Status           invoice.Status  `json:"status"`
	CustomerName     string          `json:"customerName"`
	CustomerEmail    *string         `json:"customerEmail,omitempty"`
	IssueDate        time.Time       `json:"issueDate"`
	DueDate          *time.Time      `json:"dueDate,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
	Currency         string          `json:"currency"`
	CurrencyDecimals int32           `json:"currencyDecimals"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxRate          decimal.Decimal `json:"taxRate"`
	TaxAmount        decimal.Decimal `json:"taxAmount"`
	Total            decimal.Decimal `json:"total"`

	StockDeducted           bool       `json:"stockDeducted"`
	StockDeductedAt         *time.Time `json:"stockDeductedAt,omitempty"`
	ModificationPending     bool       `json:"modificationPending"`
	ModificationRequestedAt *time.Time `json:"modificationRequestedAt,omitempty"`
	ModificationRequestedBy *string    `json:"modificationRequestedBy,omitempty"`
	ModificationReason      *string    `json:"modificationReason,omitempty"`
	ApprovedBy              *string    `json:"approvedBy,omitempty"`
	ApprovedAt              *time.Time `json:"approvedAt,omitempty"`
	PaidBy                  *string    `json:"paidBy,omitempty"`
	PaidAt                  *time.Time `json:"paidAt,omitempty"`
	RejectedBy              *string    `json:"rejectedBy,omitempty"`
	RejectedAt              *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason         *string    `json:"rejectionReason,omitempty"`
	CancelledAt             *time.Time `json:"cancelledAt,omitempty"`
	SentAt                  *time.Time `json:"sentAt,omitempty"`

	Editable         bool                  `json:"editable"`
	AvailableActions []invoice.Action      `json:"availableActions"`
	Items            []InvoiceItemResponse `json:"items,omitempty"`
}

// FromInvoice converts entity to response DTO.
func FromInvoice(inv *invoice.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		BaseResponse:            FromBaseDocument(inv.BaseDocument),
		Number:                  inv.Number,
		Type:                    inv.Type,
		Status:                  inv.Status,
		CustomerName:            inv.CustomerName,
		CustomerEmail:           inv.CustomerEmail,
		IssueDate:               inv.IssueDate,
		DueDate:                 inv.DueDate,
		Notes:                   inv.Notes,
		Currency:                inv.Currency,
		CurrencyDecimals:        inv.CurrencyDecimals,
		Subtotal:                inv.Subtotal,
		TaxRate:                 inv.TaxRate,
		TaxAmount:               inv.TaxAmount,
		Total:                   inv.Total,
		StockDeducted:           inv.IsStockDeducted(),
		StockDeductedAt:         inv.StockDeductedAt,
		ModificationPending:     inv.HasPendingModification(),
		ModificationRequestedAt: inv.ModificationRequestedAt,
		ModificationRequestedBy: inv.ModificationRequestedBy,
		ModificationReason:      inv.ModificationReason,
		ApprovedBy:              inv.ApprovedBy,
		ApprovedAt:              inv.ApprovedAt,
		PaidBy:                  inv.PaidBy,
		PaidAt:                  inv.PaidAt,
		RejectedBy:              inv.RejectedBy,
		RejectedAt:              inv.RejectedAt,
		RejectionReason:         inv.RejectionReason,
		CancelledAt:             inv.CancelledAt,
		SentAt:                  inv.SentAt,
		Editable:                inv.IsEditable(),
		AvailableActions:        invoice.AvailableActions(inv),
	}

	if resp.AvailableActions == nil {
		resp.AvailableActions = []invoice.Action{}
	}

	if len(inv.Items) > 0 {
		resp.Items = make([]InvoiceItemResponse, len(inv.Items))
		for i, it := range inv.Items {
			var productID *string
			if it.ProductID != nil {
				s := it.ProductID.String()
				productID = &s
			}
			resp.Items[i] = InvoiceItemResponse{
				LineID:      it.LineID.String(),
				LineNo:      it.LineNo,
				ProductID:   productID,
				Description: it.Description,
				UnitPrice:   it.UnitPrice,
				Quantity:    it.Quantity.Int64(),
				LineTotal:   it.LineTotal,
			}
		}
	}

	return resp
}

// StockCheckResponse previews shortages for an invoice.
type StockCheckResponse struct {
	Available bool            `json:"available"`
	Shortages []ShortageEntry `json:"shortages"`
}

// ShortageEntry is one product that cannot cover its demand.
type ShortageEntry struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
	Shortfall int64  `json:"shortfall"`
}

// FromShortages converts ledger shortages to response DTO.
func FromShortages(shortages []stock.Shortage) StockCheckResponse {
	resp := StockCheckResponse{
		Available: len(shortages) == 0,
		Shortages: make([]ShortageEntry, len(shortages)),
	}
	for i, s := range shortages {
		resp.Shortages[i] = ShortageEntry{
			ProductID: s.ProductID.String(),
			SKU:       s.SKU,
			Requested: s.Requested.Int64(),
			Available: s.Available.Int64(),
			Shortfall: s.Shortfall().Int64(),
		}
	}
	return resp
}

// HistoryResponse lists audit entries of an invoice.
type HistoryResponse struct {
	Items []audit.Entry `json:"items"`
}
