package dto

import (
	"time"

	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/domain/registers/stock"
)

// StockMovementResponse represents stock movement in API responses.
type StockMovementResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Type      string    `json:"type"`
	Quantity  int64     `json:"quantity"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	InvoiceID *string   `json:"invoiceId,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromStockMovement converts entity to response DTO.
func FromStockMovement(m entity.StockMovement) StockMovementResponse {
	resp := StockMovementResponse{
		ID:        m.ID.String(),
		ProductID: m.ProductID.String(),
		Type:      string(m.Type),
		Quantity:  m.Quantity.Int64(),
		Delta:     m.Delta.Int64(),
		Reason:    m.Reason,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
	}
	if m.InvoiceID != nil {
		s := m.InvoiceID.String()
		resp.InvoiceID = &s
	}
	return resp
}

// FromStockMovements converts a slice of movements.
func FromStockMovements(ms []entity.StockMovement) []StockMovementResponse {
	out := make([]StockMovementResponse, len(ms))
	for i, m := range ms {
		out[i] = FromStockMovement(m)
	}
	return out
}

// ReconcileResponse is the drift report of a ledger reconciliation.
type ReconcileResponse struct {
	CheckedAt  time.Time    `json:"checkedAt"`
	Products   int          `json:"products"`
	Consistent bool         `json:"consistent"`
	Drifts     []DriftEntry `json:"drifts"`
}

// DriftEntry is one product whose quantity disagrees with its ledger.
type DriftEntry struct {
	ProductID  string `json:"productId"`
	SKU        string `json:"sku"`
	Quantity   int64  `json:"quantity"`
	LedgerSum  int64  `json:"ledgerSum"`
	Difference int64  `json:"difference"`
}

// FromReconcileReport converts the ledger report to response DTO.
func FromReconcileReport(r stock.ReconcileReport) ReconcileResponse {
	resp := ReconcileResponse{
		CheckedAt:  r.CheckedAt,
		Products:   r.Products,
		Consistent: r.Consistent(),
		Drifts:     make([]DriftEntry, len(r.Drifts)),
	}
	for i, d := range r.Drifts {
		resp.Drifts[i] = DriftEntry{
			ProductID:  d.ProductID.String(),
			SKU:        d.SKU,
			Quantity:   d.Quantity.Int64(),
			LedgerSum:  d.LedgerSum.Int64(),
			Difference: d.Difference().Int64(),
		}
	}
	return resp
}
