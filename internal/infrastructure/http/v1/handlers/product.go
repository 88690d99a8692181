package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/catalogs/product"
	domainFilter "invoiceflow/internal/domain/filter"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/internal/infrastructure/http/v1/dto"
)

// ProductHandler handles HTTP requests for the product catalog and its stock.
type ProductHandler struct {
	*BaseHandler
	service *product.Service
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, service *product.Service) *ProductHandler {
	return &ProductHandler{
		BaseHandler: base,
		service:     service,
	}
}

func (h *ProductHandler) listFilter(c *gin.Context) (domain.ListFilter, bool) {
	filter := domain.DefaultListFilter()
	filter.Search = c.Query("search")
	filter.Limit = h.ParseIntQuery(c, "limit", 50)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)
	filter.OrderBy = c.DefaultQuery("orderBy", "name")
	filter.IncludeDeleted = c.Query("includeDeleted") == "true"

	if raw := c.Query("filter"); raw != "" {
		var adv []domainFilter.Item
		if err := json.Unmarshal([]byte(raw), &adv); err != nil {
			h.Error(c, apperror.NewValidation("invalid filter format (json expected)"))
			return filter, false
		}
		filter.AdvancedFilters = adv
	}
	return filter, true
}

func (h *ProductHandler) list(c *gin.Context, fetch func(ctx context.Context, f domain.ListFilter) (domain.ListResult[*product.Product], error)) {
	filter, ok := h.listFilter(c)
	if !ok {
		return
	}

	result, err := fetch(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.ProductResponse, len(result.Items))
	for i, p := range result.Items {
		items[i] = dto.FromProduct(p)
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// List handles GET /products
func (h *ProductHandler) List(c *gin.Context) { h.list(c, h.service.List) }

// LowStock handles GET /products/low-stock
func (h *ProductHandler) LowStock(c *gin.Context) { h.list(c, h.service.FindLowStock) }

// Create handles POST /products
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p := req.ToEntity()
	if err := h.service.Create(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromProduct(p))
}

// Get handles GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.PathID(c)
	if !ok {
		return
	}

	p, err := h.service.GetByID(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromProduct(p))
}

// Update handles PUT /products/:id
func (h *ProductHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	productID, ok := h.PathID(c)
	if !ok {
		return
	}

	var req dto.UpdateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := h.service.GetByID(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	req.ApplyTo(p)
	if err := h.service.Update(ctx, p); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromProduct(p))
}

// Restock handles POST /products/:id/restock
func (h *ProductHandler) Restock(c *gin.Context) {
	productID, ok := h.PathID(c)
	if !ok {
		return
	}

	var req dto.RestockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, m, err := h.service.Restock(c.Request.Context(), productID, types.Quantity(req.Quantity), req.Reason)
	h.stockChanged(c, p, m, err)
}

// Adjust handles POST /products/:id/adjust
func (h *ProductHandler) Adjust(c *gin.Context) {
	productID, ok := h.PathID(c)
	if !ok {
		return
	}

	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, m, err := h.service.Adjust(c.Request.Context(), productID, types.Quantity(req.Delta), req.Reason)
	h.stockChanged(c, p, m, err)
}

func (h *ProductHandler) stockChanged(c *gin.Context, p *product.Product, m entity.StockMovement, err error) {
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.StockChangeResponse{
		Product:  dto.FromProduct(p),
		Movement: dto.FromStockMovement(m),
	})
}

// Movements handles GET /products/:id/movements
func (h *ProductHandler) Movements(c *gin.Context) {
	productID, ok := h.PathID(c)
	if !ok {
		return
	}

	filter := stock.MovementFilter{
		Reason: c.Query("reason"),
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if raw := c.Query("invoiceId"); raw != "" {
		invoiceID, err := dto.ParseID("invoiceId", raw)
		if err != nil {
			h.Error(c, err)
			return
		}
		filter.InvoiceID = &invoiceID
	}

	var err error
	if filter.FromDate, err = parseTimeQuery(c, "fromDate"); err != nil {
		h.Error(c, err)
		return
	}
	if filter.ToDate, err = parseTimeQuery(c, "toDate"); err != nil {
		h.Error(c, err)
		return
	}

	movements, err := h.service.Movements(c.Request.Context(), productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromStockMovements(movements),
		TotalCount: int64(len(movements)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperror.NewValidation("invalid "+key+" format, expected RFC3339").
			WithDetail("field", key)
	}
	return &parsed, nil
}
