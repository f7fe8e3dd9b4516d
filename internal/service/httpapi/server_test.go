package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/service/cart"
	"github.com/vladislavdragonenkov/cafe/internal/service/catalog"
	"github.com/vladislavdragonenkov/cafe/internal/service/dashboard"
	"github.com/vladislavdragonenkov/cafe/internal/service/httpapi"
	"github.com/vladislavdragonenkov/cafe/internal/service/idempotency"
	"github.com/vladislavdragonenkov/cafe/internal/service/ledger"
	"github.com/vladislavdragonenkov/cafe/internal/storage/memory"
)

type testAPI struct {
	app   *fiber.App
	store *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("component", "httpapi-test")

	store := memory.NewStore()
	now := time.Now().UTC()
	require.NoError(t, store.CreateCategory(domain.Category{ID: "coffee", Name: "Cafés Especiais", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.CreateProduct(domain.Product{ID: "espresso", Name: "Espresso Intenso", Price: decimal.RequireFromString("7.50"), CategoryID: "coffee", Stock: 3}))
	require.NoError(t, store.CreateProduct(domain.Product{ID: "croissant", Name: "Croissant", Price: decimal.NewFromInt(9), CategoryID: "coffee", Stock: 0}))

	catalogSvc := catalog.NewService(store, catalog.WithLogger(entry))
	ledgerSvc := ledger.NewService(store, store, ledger.WithLogger(entry), ledger.WithTimeline(memory.NewTimelineRepository()))
	server := httpapi.NewServer(httpapi.Dependencies{
		Catalog:   catalogSvc,
		Ledger:    ledgerSvc,
		Carts:     cart.NewStore(catalogSvc, time.Minute),
		Dashboard: dashboard.NewView(ledgerSvc, catalogSvc),
		Guard:     idempotency.NewGuard(memory.NewIdempotencyRepository(), idempotency.WithGuardRegisterer(prometheus.NewRegistry())),
		Logger:    entry,
	})
	return &testAPI{app: server.App(), store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestProductsEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/products?available=true", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var products []domain.Product
	require.NoError(t, json.Unmarshal(body, &products))
	require.Len(t, products, 1)
	assert.Equal(t, "espresso", products[0].ID)

	resp, body = api.do(t, http.MethodGet, "/api/v1/products?search=CROI", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &products))
	require.Len(t, products, 1, "admin list keeps sold out products")

	resp, _ = api.do(t, http.MethodGet, "/api/v1/products/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = api.do(t, http.MethodPost, "/api/v1/products", map[string]any{
		"name": "Latte", "price": "10.00", "categoryId": "coffee", "stock": 4,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, _ = api.do(t, http.MethodPost, "/api/v1/products", map[string]any{
		"name": "Latte", "price": "0", "categoryId": "coffee",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/v1/products/espresso/stock", map[string]int{"delta": -10}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/api/v1/products/stats", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats catalog.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 3, stats.Total)
}

func TestDeleteCategoryInUseReturnsConflict(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodDelete, "/api/v1/categories/coffee", nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(body, &errBody))
	assert.Equal(t, "category_in_use", errBody["code"])
}

func TestSaleEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/api/v1/sales", map[string]any{"items": []domain.CartItem{}}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	resp, body = api.do(t, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []domain.CartItem{{ProductID: "espresso", Quantity: 2}},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var sale domain.Sale
	require.NoError(t, json.Unmarshal(body, &sale))
	assert.True(t, sale.Total.Equal(decimal.NewFromInt(15)))

	resp, _ = api.do(t, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []domain.CartItem{{ProductID: "espresso", Quantity: 2}},
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = api.do(t, http.MethodPatch, "/api/v1/sales/"+sale.ID+"/status", map[string]string{"status": "completed"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = api.do(t, http.MethodPatch, "/api/v1/sales/"+sale.ID+"/status", map[string]string{"status": "SHIPPED"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/api/v1/sales?today=true", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var today []domain.Sale
	require.NoError(t, json.Unmarshal(body, &today))
	assert.Len(t, today, 1)

	resp, body = api.do(t, http.MethodGet, "/api/v1/sales/"+sale.ID+"/timeline", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []domain.TimelineEvent
	require.NoError(t, json.Unmarshal(body, &events))
	assert.Len(t, events, 2)

	resp, body = api.do(t, http.MethodGet, "/api/v1/dashboard", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary dashboard.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 1, summary.SalesCountToday)
	assert.True(t, summary.RevenueToday.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, 1, summary.OutOfStockCount)
}

func TestCartCheckoutIsIdempotent(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/api/v1/carts", nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view struct {
		ID    string            `json:"id"`
		Items []domain.CartItem `json:"items"`
		Total decimal.Decimal   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	cartPath := "/api/v1/carts/" + view.ID

	resp, _ = api.do(t, http.MethodPost, cartPath+"/items", map[string]string{"productId": "ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, cartPath+"/items", map[string]string{"productId": "espresso"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = api.do(t, http.MethodPut, cartPath+"/items/espresso", map[string]int{"quantity": 2}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &view))
	assert.True(t, view.Total.Equal(decimal.NewFromInt(15)))

	headers := map[string]string{httpapi.HeaderIdempotencyKey: "checkout-1"}
	resp, first := api.do(t, http.MethodPost, cartPath+"/checkout", nil, headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(first))

	resp, second := api.do(t, http.MethodPost, cartPath+"/checkout", nil, headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(httpapi.HeaderIdempotentReplay))
	assert.JSONEq(t, string(first), string(second))

	product, err := api.store.GetProduct("espresso")
	require.NoError(t, err)
	assert.Equal(t, 1, product.Stock, "replay must not sell twice")

	sales, err := api.store.ListSales()
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	resp, body = api.do(t, http.MethodGet, cartPath, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Empty(t, view.Items)

	resp, _ = api.do(t, http.MethodPost, cartPath+"/checkout", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "empty cart")

	resp, _ = api.do(t, http.MethodDelete, cartPath, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = api.do(t, http.MethodGet, cartPath, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIdempotencyKeyReuseWithDifferentPayload(t *testing.T) {
	api := newTestAPI(t)
	headers := map[string]string{httpapi.HeaderIdempotencyKey: "sale-key"}

	resp, _ := api.do(t, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []domain.CartItem{{ProductID: "espresso", Quantity: 1}},
	}, headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []domain.CartItem{{ProductID: "espresso", Quantity: 2}},
	}, headers)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var errBody map[string]string
	require.NoError(t, json.Unmarshal(body, &errBody))
	assert.Equal(t, "idempotency_key_reused", errBody["code"])
}

func TestMenuAndMalformedBody(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/menu", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var menu []catalog.MenuSection
	require.NoError(t, json.Unmarshal(body, &menu))
	require.Len(t, menu, 1)
	assert.Len(t, menu[0].Products, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/categories", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	raw, err := api.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}
