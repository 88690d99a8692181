package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/invoice"
	"invoiceflow/internal/infrastructure/http/v1/dto"
)

// InvoiceHandler handles HTTP requests for invoices and their workflow.
type InvoiceHandler struct {
	*BaseHandler
	service  *invoice.Service
	workflow *invoice.Workflow
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(base *BaseHandler, service *invoice.Service, workflow *invoice.Workflow) *InvoiceHandler {
	return &InvoiceHandler{
		BaseHandler: base,
		service:     service,
		workflow:    workflow,
	}
}

// List handles GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	filter := invoice.ListFilter{
		ListFilter: domain.ListFilter{
			Search:  c.Query("search"),
			OrderBy: c.Query("orderBy"),
			Limit:   h.ParseIntQuery(c, "limit", 50),
			Offset:  h.ParseIntQuery(c, "offset", 0),
		},
		Type: invoice.Type(c.Query("type")),
	}

	for _, s := range c.QueryArray("status") {
		status := invoice.Status(s)
		if !status.Valid() {
			h.Error(c, apperror.NewValidation("unknown status").WithDetail("value", s))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		h.Error(c, apperror.NewValidation("unknown invoice type").WithDetail("value", string(filter.Type)))
		return
	}
	if v := c.Query("stockDeducted"); v != "" {
		deducted := v == "true"
		filter.StockDeducted = &deducted
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.InvoiceResponse, len(result.Items))
	for i, inv := range result.Items {
		items[i] = dto.FromInvoice(inv)
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Create handles POST /invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	inv, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(c.Request.Context(), inv); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromInvoice(inv))
}

// Get handles GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoiceID, ok := h.PathID(c)
	if !ok {
		return
	}

	inv, err := h.service.Get(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// Update handles PUT /invoices/:id
func (h *InvoiceHandler) Update(c *gin.Context) {
	invoiceID, ok := h.PathID(c)
	if !ok {
		return
	}

	var req dto.UpdateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	inv, err := h.service.UpdateHeader(c.Request.Context(), invoiceID, req.ToHeaderUpdate(), req.Version)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// ReplaceItems handles PUT /invoices/:id/items
func (h *InvoiceHandler) ReplaceItems(c *gin.Context) {
	invoiceID, ok := h.PathID(c)
	if !ok {
		return
	}

	var req dto.ReplaceItemsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	items, err := dto.ToInvoiceItems(req.Items)
	if err != nil {
		h.Error(c, err)
		return
	}

	inv, err := h.service.ReplaceItems(c.Request.Context(), invoiceID, items, req.Version)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// Delete handles DELETE /invoices/:id
func (h *InvoiceHandler) Delete(c *gin.Context) {
	invoiceID, ok := h.PathID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), invoiceID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// StockCheck handles GET /invoices/:id/stock-check
func (h *InvoiceHandler) StockCheck(c *gin.Context) {
	invoiceID, ok := h.PathID(c)
	if !ok {
		return
	}

	shortages, err := h.service.StockCheck(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromShortages(shortages))
}

// History handles GET /invoices/:id/history
func (h *InvoiceHandler) History(c *gin.Context) {
	invoiceID, ok := h.PathID(c)
	if !ok {
		return
	}

	entries, err := h.service.History(c.Request.Context(), invoiceID, h.ParseIntQuery(c, "limit", 100))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.HistoryResponse{Items: entries})
}

// --- Workflow ---

func (h *InvoiceHandler) transition(c *gin.Context, fn func(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error)) {
	invoiceID, ok := h.PathID(c)
	if !ok {
		return
	}

	inv, err := fn(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

func (h *InvoiceHandler) withReason(c *gin.Context, fn func(ctx context.Context, invoiceID id.ID, reason string) (*invoice.Invoice, error)) {
	var req dto.ReasonRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
		return fn(ctx, invoiceID, req.Reason)
	})
}

// Submit handles POST /invoices/:id/submit
func (h *InvoiceHandler) Submit(c *gin.Context) { h.transition(c, h.workflow.Submit) }

// Validate handles POST /invoices/:id/validate
func (h *InvoiceHandler) Validate(c *gin.Context) { h.transition(c, h.workflow.ValidateProforma) }

// Approve handles POST /invoices/:id/approve
func (h *InvoiceHandler) Approve(c *gin.Context) { h.transition(c, h.workflow.Approve) }

// MarkPaid handles POST /invoices/:id/mark-paid
func (h *InvoiceHandler) MarkPaid(c *gin.Context) { h.transition(c, h.workflow.MarkPaid) }

// MarkUnpaid handles POST /invoices/:id/mark-unpaid
func (h *InvoiceHandler) MarkUnpaid(c *gin.Context) { h.transition(c, h.workflow.MarkUnpaid) }

// RequestModification handles POST /invoices/:id/request-modification
func (h *InvoiceHandler) RequestModification(c *gin.Context) {
	h.withReason(c, h.workflow.RequestModification)
}

// ApproveModification handles POST /invoices/:id/approve-modification
func (h *InvoiceHandler) ApproveModification(c *gin.Context) {
	h.transition(c, h.workflow.ApproveModification)
}

// Reject handles POST /invoices/:id/reject
func (h *InvoiceHandler) Reject(c *gin.Context) { h.withReason(c, h.workflow.Reject) }

// Cancel handles POST /invoices/:id/cancel
func (h *InvoiceHandler) Cancel(c *gin.Context) { h.transition(c, h.workflow.Cancel) }
