package handlers

import (
	"github.com/gin-gonic/gin"

	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for the stock ledger.
type StockHandler struct {
	*BaseHandler
	ledger *stock.Ledger
}

// NewStockHandler creates a new stock ledger handler.
func NewStockHandler(base *BaseHandler, ledger *stock.Ledger) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		ledger:      ledger,
	}
}

// Reconcile handles GET /stock/reconcile
// Compares each product's live quantity with the sum of its ledger rows.
func (h *StockHandler) Reconcile(c *gin.Context) {
	report, err := h.ledger.Reconcile(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromReconcileReport(report))
}
