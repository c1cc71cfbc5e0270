package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pasar/internal/handlers"
	"pasar/internal/models"
	"pasar/internal/repositories"
	"pasar/internal/services"
	"pasar/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app       *fiber.App
	auth      *services.AuthService
	products  *services.ProductService
	inventory *services.InventoryService
	wallets   *services.WalletService
}

// setupApp sets up a Fiber app for testing with in-memory SQLite and all handlers/services.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	db, err := repositories.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, repositories.Migrate(db))

	bus := events.NewBus(nil)
	productRepo := repositories.NewGORMProductRepository(db)
	sellerRepo := repositories.NewGORMSellerRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)

	inventory := services.NewInventoryService(repositories.NewGORMInventoryRepository(db), productRepo, bus)
	carts := services.NewCartService(repositories.NewGORMCartRepository(db), productRepo, inventory, nil, time.Hour)
	wallets := services.NewWalletService(repositories.NewGORMWalletRepository(db))
	settlements := services.NewSettlementService(repositories.NewGORMSettlementRepository(db), orderRepo,
		services.NewRateCommission(decimal.RequireFromString("0.10")), wallets, "platform", bus)
	orders := services.NewOrderService(services.OrderDeps{
		Orders:     orderRepo,
		Sellers:    sellerRepo,
		Products:   productRepo,
		Carts:      carts,
		Inventory:  inventory,
		Wallets:    wallets,
		Sequencer:  repositories.NewGORMSequenceRepository(db),
		Settlement: settlements,
		Events:     bus,
	})

	ta := &testApp{
		auth:      services.NewAuthService("test_jwt_secret", time.Hour),
		products:  services.NewProductService(productRepo, sellerRepo, inventory),
		inventory: inventory,
		wallets:   wallets,
	}
	ta.app = handlers.NewApp(handlers.AppDeps{
		Auth:      ta.auth,
		Products:  ta.products,
		Carts:     carts,
		Inventory: inventory,
		Orders:    orders,
	})
	return ta
}

func (ta *testApp) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := ta.auth.Issue(userID, "customer")
	require.NoError(t, err)
	return token
}

// seed creates a seller with one product of the given stock.
func (ta *testApp) seed(t *testing.T, stock int) (*models.Seller, *models.Product) {
	t.Helper()
	ctx := context.Background()
	seller := &models.Seller{Name: "Toko Maju", IsActive: true, FlatDeliveryFee: 2000}
	require.NoError(t, ta.products.CreateSeller(ctx, seller))
	product, err := ta.products.CreateProduct(ctx, services.CreateProductInput{
		SellerID:     seller.ID,
		Name:         "Kopi Arabika",
		SKU:          "KOPI-1",
		Price:        10000,
		InitialStock: stock,
	})
	require.NoError(t, err)
	return seller, product
}

// call sends a JSON request and decodes the JSON response body.
func (ta *testApp) call(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	ta := setupApp(t)
	status, body := ta.call(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestOrderEndpointsRequireAuth(t *testing.T) {
	ta := setupApp(t)

	status, body := ta.call(t, http.MethodGet, "/api/v1/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authorization header is required", body["message"])

	status, _ = ta.call(t, http.MethodGet, "/api/v1/orders", nil, map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ta.call(t, http.MethodGet, "/api/v1/orders", nil, bearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ta.call(t, http.MethodPost, "/api/v1/inventory/reserve", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGuestCartAndMerge(t *testing.T) {
	ta := setupApp(t)
	_, product := ta.seed(t, 5)
	guest := map[string]string{handlers.HeaderSessionID: "sess-" + uuid.NewString()}

	status, body := ta.call(t, http.MethodGet, "/api/v1/cart", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status, "a cart needs a customer or a session")
	assert.Contains(t, body, "error")

	status, body = ta.call(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": product.ID, "quantity": 2}, guest)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(20000), body["total"])

	status, body = ta.call(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": product.ID, "quantity": 9}, guest)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	details := body["details"].(map[string]any)
	assert.Equal(t, float64(11), details["requested"])
	assert.Equal(t, float64(5), details["available"])

	status, _ = ta.call(t, http.MethodPost, "/api/v1/cart/merge", nil, guest)
	assert.Equal(t, http.StatusUnauthorized, status)

	customer := uuid.NewString()
	headers := bearer(ta.token(t, customer))
	headers[handlers.HeaderSessionID] = guest[handlers.HeaderSessionID]
	status, body = ta.call(t, http.MethodPost, "/api/v1/cart/merge", nil, headers)
	require.Equal(t, http.StatusOK, status, body)
	cart := body["cart"].(map[string]any)
	assert.Len(t, cart["items"], 1)

	status, body = ta.call(t, http.MethodGet, "/api/v1/cart", nil, guest)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["items"])
}

func TestCartLineEndpoints(t *testing.T) {
	ta := setupApp(t)
	_, product := ta.seed(t, 5)
	headers := bearer(ta.token(t, uuid.NewString()))

	status, _ := ta.call(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": product.ID, "quantity": 1}, headers)
	require.Equal(t, http.StatusCreated, status)

	status, body := ta.call(t, http.MethodPatch, "/api/v1/cart/items", map[string]any{"productId": product.ID, "quantity": 3}, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(30000), body["subtotal"])

	status, _ = ta.call(t, http.MethodPost, "/api/v1/cart/coupon", map[string]any{"code": "ANY"}, headers)
	assert.Equal(t, http.StatusConflict, status, "coupons are disabled without a discount policy")

	status, _ = ta.call(t, http.MethodDelete, "/api/v1/cart/items?productId="+product.ID, nil, headers)
	require.Equal(t, http.StatusOK, status)

	status, _ = ta.call(t, http.MethodDelete, "/api/v1/cart/items?productId="+product.ID, nil, headers)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ta.call(t, http.MethodDelete, "/api/v1/cart/items", nil, headers)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	ta := setupApp(t)
	seller, product := ta.seed(t, 5)
	customer := uuid.NewString()
	headers := bearer(ta.token(t, customer))
	ctx := context.Background()

	status, _ := ta.call(t, http.MethodPost, "/api/v1/cart/items", map[string]any{"productId": product.ID, "quantity": 2}, headers)
	require.Equal(t, http.StatusCreated, status)

	status, body := ta.call(t, http.MethodPost, "/api/v1/orders", map[string]any{"sellerId": seller.ID}, headers)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["details"], "paymentMethod")

	status, body = ta.call(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"sellerId":      seller.ID,
		"paymentMethod": "cash",
		"deliveryAddress": map[string]any{
			"recipient": "Budi", "phone": "0812", "line1": "Jl. Asia Afrika 8", "city": "Bandung",
		},
	}, headers)
	require.Equal(t, http.StatusCreated, status, body)
	orderID := body["id"].(string)
	assert.Equal(t, "pending", body["orderStatus"])
	assert.Equal(t, float64(22000), body["total"])

	rec, err := ta.inventory.GetRecord(ctx, product.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.AvailableQuantity)

	status, body = ta.call(t, http.MethodGet, "/api/v1/orders/"+orderID, nil, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, orderID, body["id"])

	status, body = ta.call(t, http.MethodGet, "/api/v1/orders?status=pending", nil, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, _ = ta.call(t, http.MethodGet, "/api/v1/orders?from=yesterday", nil, headers)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ta.call(t, http.MethodGet, "/api/v1/sellers/"+seller.ID+"/orders", nil, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, body = ta.call(t, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", map[string]any{"status": "delivered"}, headers)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid status transition from pending to delivered", body["error"])

	status, body = ta.call(t, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", map[string]any{"status": "confirmed"}, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", body["orderStatus"])

	status, _ = ta.call(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment", map[string]any{"reference": "PG-1"}, headers)
	assert.Equal(t, http.StatusConflict, status, "cash orders are not confirmed online")

	status, _ = ta.call(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", map[string]any{}, headers)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ta.call(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", map[string]any{"reason": "wrong address"}, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", body["orderStatus"])

	rec, err = ta.inventory.GetRecord(ctx, product.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.AvailableQuantity)

	status, _ = ta.call(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil, headers)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestInventoryEndpoints(t *testing.T) {
	ta := setupApp(t)
	_, product := ta.seed(t, 4)
	headers := bearer(ta.token(t, "ops-1"))

	status, body := ta.call(t, http.MethodGet, "/api/v1/inventory/availability?productId="+product.ID+"&quantity=5", nil, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["canFulfill"])

	status, body = ta.call(t, http.MethodPost, "/api/v1/inventory/reserve", map[string]any{"productId": product.ID, "quantity": 3}, headers)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(3), body["reservedQuantity"])
	inventoryID := body["id"].(string)

	status, _ = ta.call(t, http.MethodPost, "/api/v1/inventory/reserve", map[string]any{"productId": product.ID, "quantity": 2}, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = ta.call(t, http.MethodPost, "/api/v1/inventory/reserve", map[string]any{"productId": product.ID}, headers)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ta.call(t, http.MethodPost, "/api/v1/inventory/release", map[string]any{"productId": product.ID, "quantity": 3}, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), body["availableQuantity"])

	status, body = ta.call(t, http.MethodPost, "/api/v1/inventory/stock/add", map[string]any{"productId": product.ID, "quantity": 6, "reason": "restock"}, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(10), body["quantity"])

	status, body = ta.call(t, http.MethodPost, "/api/v1/inventory/stock/remove", map[string]any{"productId": product.ID, "quantity": 1, "type": "adjustment", "reason": "damaged"}, headers)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(9), body["quantity"])

	status, body = ta.call(t, http.MethodGet, "/api/v1/inventory/"+inventoryID+"/movements", nil, headers)
	require.Equal(t, http.StatusOK, status)
	movements := body["movements"].([]any)
	require.Len(t, movements, 5)
	last := movements[4].(map[string]any)
	assert.Equal(t, "adjustment", last["type"])
	assert.Equal(t, "ops-1", last["actor"])

	status, _ = ta.call(t, http.MethodGet, "/api/v1/inventory/"+uuid.NewString()+"/movements", nil, headers)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProductLookup(t *testing.T) {
	ta := setupApp(t)
	seller, product := ta.seed(t, 1)

	status, body := ta.call(t, http.MethodGet, "/api/v1/products/"+product.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Kopi Arabika", body["name"])

	status, body = ta.call(t, http.MethodGet, "/api/v1/sellers/"+seller.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Toko Maju", body["name"])

	status, _ = ta.call(t, http.MethodGet, "/api/v1/products/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
