package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/app"
	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/domain/auth"
	v1 "invoiceflow/internal/infrastructure/http/v1"
	"invoiceflow/internal/infrastructure/storage/memory"
)

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	jwt    *auth.JWTService
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := app.DefaultConfig()
	cfg.Workflow.RetryBackoff = 0
	svc := app.NewServices(app.NewMemoryBackend(memory.NewStore()), cfg)
	jwt := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))

	router := v1.NewRouter(v1.RouterConfig{
		JWTValidator: jwt,
		Invoices:     svc.Invoices,
		Workflow:     svc.Workflow,
		Products:     svc.Products,
		Ledger:       svc.Ledger,
		Version:      "test",
	})

	return &apiClient{t: t, router: router, jwt: jwt}
}

func (a *apiClient) token(userID, tenantID string, roles ...string) string {
	a.t.Helper()
	tok, _, err := a.jwt.GenerateAccessToken(appctx.UserContext{
		UserID:      userID,
		TenantID:    tenantID,
		Roles:       roles,
		Permissions: auth.PermissionsForRoles(roles...),
	})
	require.NoError(a.t, err)
	return tok
}

func (a *apiClient) call(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (a *apiClient) createProduct(token, sku string, qty int) string {
	a.t.Helper()
	w, body := a.call(http.MethodPost, "/api/v1/products", token, map[string]any{
		"sku": sku, "name": "Product " + sku, "unitPrice": "20", "quantity": qty,
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return body["id"].(string)
}

func (a *apiClient) createInvoice(token, productID string, qty int) string {
	a.t.Helper()
	w, body := a.call(http.MethodPost, "/api/v1/invoices", token, map[string]any{
		"type":         "invoice",
		"customerName": "Acme",
		"items": []map[string]any{
			{"productId": productID, "description": "line", "unitPrice": "20", "quantity": qty},
		},
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(a.t, "DRAFT", body["status"])
	assert.NotEmpty(a.t, body["number"])
	return body["id"].(string)
}

func (a *apiClient) quantity(token, productID string) float64 {
	a.t.Helper()
	w, body := a.call(http.MethodGet, "/api/v1/products/"+productID, token, nil)
	require.Equal(a.t, http.StatusOK, w.Code)
	return body["quantity"].(float64)
}

func TestInvoiceLifecycle(t *testing.T) {
	api := newAPI(t)
	clerk := api.token("clerk-1", "acme", "clerk")
	manager := api.token("manager-1", "acme", "manager")

	productID := api.createProduct(clerk, "BOLT", 5)
	invoiceID := api.createInvoice(clerk, productID, 3)
	path := "/api/v1/invoices/" + invoiceID

	w, body := api.call(http.MethodPost, path+"/submit", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PENDING", body["status"])

	w, body = api.call(http.MethodPost, path+"/approve", clerk, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperror.CodeForbidden, body["code"])

	w, body = api.call(http.MethodPost, path+"/approve", manager, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "APPROVED", body["status"])

	w, body = api.call(http.MethodPost, path+"/mark-paid", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PAID", body["status"])
	assert.Equal(t, true, body["stockDeducted"])
	assert.Equal(t, float64(2), api.quantity(clerk, productID))

	w, body = api.call(http.MethodPost, path+"/mark-paid", clerk, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeInvalidTransition, body["code"])
	assert.Equal(t, float64(2), api.quantity(clerk, productID))

	w, body = api.call(http.MethodPost, path+"/mark-unpaid", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "APPROVED", body["status"])
	assert.Equal(t, float64(5), api.quantity(clerk, productID))

	w, body = api.call(http.MethodGet, "/api/v1/stock/reconcile", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["consistent"])

	w, body = api.call(http.MethodGet, path+"/history", clerk, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["items"])
}

func TestMarkPaid_InsufficientStock(t *testing.T) {
	api := newAPI(t)
	manager := api.token("manager-1", "acme", "manager")

	productID := api.createProduct(manager, "NUT", 2)
	invoiceID := api.createInvoice(manager, productID, 10)
	path := "/api/v1/invoices/" + invoiceID

	w, body := api.call(http.MethodGet, path+"/stock-check", manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["available"])

	for _, step := range []string{"/submit", "/approve"} {
		w, _ = api.call(http.MethodPost, path+step, manager, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w, body = api.call(http.MethodPost, path+"/mark-paid", manager, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeInsufficientStock, body["code"])
	assert.Equal(t, float64(2), api.quantity(manager, productID))
}

func TestTenantsAreIsolated(t *testing.T) {
	api := newAPI(t)
	acme := api.token("u1", "acme", "manager")
	globex := api.token("u2", "globex", "manager")

	productID := api.createProduct(acme, "BOLT", 5)

	w, body := api.call(http.MethodGet, "/api/v1/products/"+productID, globex, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, body["code"])
}

func TestEditLock(t *testing.T) {
	api := newAPI(t)
	manager := api.token("manager-1", "acme", "manager")

	productID := api.createProduct(manager, "BOLT", 5)
	invoiceID := api.createInvoice(manager, productID, 1)
	path := "/api/v1/invoices/" + invoiceID

	w, _ := api.call(http.MethodPost, path+"/submit", manager, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := api.call(http.MethodPut, path, manager, map[string]any{"customerName": "Other"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeInvoiceLocked, body["code"])
}

func TestRequestValidation(t *testing.T) {
	api := newAPI(t)
	clerk := api.token("clerk-1", "acme", "clerk")

	w, _ := api.call(http.MethodGet, "/api/v1/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := api.call(http.MethodGet, "/api/v1/invoices/not-a-uuid", clerk, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, body["code"])

	w, _ = api.call(http.MethodPost, "/api/v1/invoices", clerk, map[string]any{"type": "invoice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.call(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
