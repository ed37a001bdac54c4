package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lienzolab/storefront/internal/cart"
	"github.com/lienzolab/storefront/internal/order"
	"github.com/lienzolab/storefront/internal/order/sqlite"
	"github.com/lienzolab/storefront/internal/payment"
	"github.com/lienzolab/storefront/internal/reconcile"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("test:%s:%s", operation, key)
}

// fakeReconciler scripts reconciliation outcomes so the handler's status
// mapping can be tested without a gateway.
type fakeReconciler struct {
	createRes *reconcile.CreateTransactionResult
	createErr error
	commitRes *reconcile.CommitResult
	commitErr error

	gotOrderID string
	gotAmount  decimal.Decimal
	gotToken   string
	gotHint    string
}

func (f *fakeReconciler) CreateTransaction(_ context.Context, orderID string, claimed decimal.Decimal) (*reconcile.CreateTransactionResult, error) {
	f.gotOrderID = orderID
	f.gotAmount = claimed
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createRes, nil
}

func (f *fakeReconciler) Commit(_ context.Context, token, hint string) (*reconcile.CommitResult, error) {
	f.gotToken = token
	f.gotHint = hint
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	return f.commitRes, nil
}

type testEnv struct {
	repo   *sqlite.Repository
	recon  *fakeReconciler
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	recon := &fakeReconciler{}
	carts := cart.NewStore(&memoryCache{data: make(map[string]string)}, 0)
	handler := NewHandler(repo, carts, recon)
	router := NewRouter(handler, RouterConfig{
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})

	return &testEnv{repo: repo, recon: recon, router: router}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func checkoutBody() CheckoutRequest {
	return CheckoutRequest{
		CustomerName:  "Ana Rojas",
		CustomerEmail: "ana@example.cl",
		Items: []CartItemDTO{{
			ProductID: "prod-1",
			Width:     30, Height: 40, Unit: "cm",
			Quantity:  3,
			UnitPrice: decimal.NewFromInt(20000),
		}},
	}
}

func TestCheckoutCreatesPendingOrderWithExpandedItems(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", checkoutBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res OrderResponse
	decodeInto(t, rec, &res)
	assert.Equal(t, "pending", res.Status)
	assert.True(t, res.TotalAmount.Equal(decimal.NewFromInt(60000)))
	assert.Len(t, res.Items, 3, "a quantity-3 line becomes 3 item rows")

	items, err := env.repo.ItemsByOrder(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestCheckoutValidation(t *testing.T) {
	env := newTestEnv(t)

	body := checkoutBody()
	body.CustomerEmail = ""
	rec := env.do(t, http.MethodPost, "/api/checkout", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = checkoutBody()
	body.Items = nil
	rec = env.do(t, http.MethodPost, "/api/checkout", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = checkoutBody()
	body.Items[0].Quantity = 0
	rec = env.do(t, http.MethodPost, "/api/checkout", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutFromStoredCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/cart", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var c CartResponse
	decodeInto(t, rec, &c)

	put := PutCartRequest{Items: []CartItemDTO{{
		ProductID: "prod-9",
		Width:     50, Height: 70, Unit: "cm",
		Quantity:  2,
		UnitPrice: decimal.NewFromInt(35000),
	}}}
	rec = env.do(t, http.MethodPut, "/api/cart/"+c.ID, put)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/checkout", CheckoutRequest{
		CartID:        c.ID,
		CustomerName:  "Ana Rojas",
		CustomerEmail: "ana@example.cl",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res OrderResponse
	decodeInto(t, rec, &res)
	assert.True(t, res.TotalAmount.Equal(decimal.NewFromInt(70000)))

	// Checkout consumes the stored cart.
	rec = env.do(t, http.MethodGet, "/api/cart/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var after CartResponse
	decodeInto(t, rec, &after)
	assert.Empty(t, after.Items)
}

func TestCreateTransactionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.recon.createRes = &reconcile.CreateTransactionResult{Token: "tok-1", URL: "https://gw.example/pay"}

	rec := env.do(t, http.MethodPost, "/api/payments/transactions", CreateTransactionRequest{
		OrderID: "ord-1",
		Amount:  decimal.NewFromInt(50000),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res CreateTransactionResponse
	decodeInto(t, rec, &res)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, "ord-1", env.recon.gotOrderID)
}

func TestCreateTransactionErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", fmt.Errorf("wrap: %w", order.ErrNotFound), http.StatusNotFound},
		{"amount mismatch", fmt.Errorf("wrap: %w", reconcile.ErrAmountMismatch), http.StatusBadRequest},
		{"already paid", fmt.Errorf("wrap: %w", reconcile.ErrAlreadyPaid), http.StatusConflict},
		{"gateway timeout", fmt.Errorf("wrap: %w", payment.ErrTimeout), http.StatusInternalServerError},
		{"protocol", fmt.Errorf("wrap: %w", payment.ErrProtocol), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.recon.createErr = tc.err

			rec := env.do(t, http.MethodPost, "/api/payments/transactions", CreateTransactionRequest{
				OrderID: "ord-1",
				Amount:  decimal.NewFromInt(50000),
			})
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestCreateTransactionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/payments/transactions", CreateTransactionRequest{
		Amount: decimal.NewFromInt(50000),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/payments/transactions", CreateTransactionRequest{
		OrderID: "ord-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitEndpoint(t *testing.T) {
	env := newTestEnv(t)
	paidAt := time.Now().UTC()
	env.recon.commitRes = &reconcile.CommitResult{
		Order: &order.Order{
			ID:     "ord-1",
			Status: order.StatusPaid,
			PaidAt: &paidAt,
		},
		Response: &payment.CommitResponse{
			BuyOrder:     "bo-1",
			Amount:       50000,
			ResponseCode: 0,
			Status:       "AUTHORIZED",
		},
		Approved: true,
	}

	rec := env.do(t, http.MethodPost, "/api/payments/commit", CommitRequest{Token: "tok-1", OrderID: "ord-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res CommitResponse
	decodeInto(t, rec, &res)
	assert.True(t, res.Success)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, "paid", res.Status)
	require.NotNil(t, res.Response)
	assert.Equal(t, "bo-1", res.Response.BuyOrder)
	assert.Equal(t, "tok-1", env.recon.gotToken)
	assert.Equal(t, "ord-1", env.recon.gotHint)
}

func TestCommitRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/payments/commit", CommitRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      int
		isTimeout bool
	}{
		{"session expired", fmt.Errorf("wrap: %w", payment.ErrSessionExpired), http.StatusBadRequest, false},
		{"timeout", fmt.Errorf("wrap: %w", payment.ErrTimeout), http.StatusInternalServerError, true},
		{"not found", fmt.Errorf("wrap: %w", order.ErrNotFound), http.StatusNotFound, false},
		{"amount mismatch", fmt.Errorf("wrap: %w", reconcile.ErrAmountMismatch), http.StatusBadRequest, false},
		{"persistence", fmt.Errorf("wrap: %w", order.ErrNoRowsAffected), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.recon.commitErr = tc.err

			rec := env.do(t, http.MethodPost, "/api/payments/commit", CommitRequest{Token: "tok-1"})
			assert.Equal(t, tc.code, rec.Code)

			var res ErrorResponse
			decodeInto(t, rec, &res)
			assert.Equal(t, tc.isTimeout, res.IsTimeout)
		})
	}
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", checkoutBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created OrderResponse
	decodeInto(t, rec, &created)

	rec = env.do(t, http.MethodGet, "/api/orders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res OrderResponse
	decodeInto(t, rec, &res)
	assert.Equal(t, created.ID, res.ID)
	assert.Len(t, res.Items, 3)

	rec = env.do(t, http.MethodGet, "/api/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminUpdateStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", checkoutBody())
	var created OrderResponse
	decodeInto(t, rec, &created)

	rec = env.do(t, http.MethodPatch, "/api/admin/orders/"+created.ID, UpdateOrderStatusRequest{Status: "processing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res OrderResponse
	decodeInto(t, rec, &res)
	assert.Equal(t, "processing", res.Status)

	// The automated flow owns the payment statuses.
	rec = env.do(t, http.MethodPatch, "/api/admin/orders/"+created.ID, UpdateOrderStatusRequest{Status: "paid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/admin/orders/missing", UpdateOrderStatusRequest{Status: "cancelled"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDeleteOrders(t *testing.T) {
	env := newTestEnv(t)

	var ids []string
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/checkout", checkoutBody())
		require.Equal(t, http.StatusCreated, rec.Code)
		var created OrderResponse
		decodeInto(t, rec, &created)
		ids = append(ids, created.ID)
	}

	rec := env.do(t, http.MethodPost, "/api/admin/orders/delete", DeleteOrdersRequest{OrderIDs: ids})
	require.Equal(t, http.StatusOK, rec.Code)
	var res DeleteOrdersResponse
	decodeInto(t, rec, &res)
	assert.True(t, res.Success)
	assert.EqualValues(t, 2, res.DeletedCount)

	// Deleting the same ids again finds nothing.
	rec = env.do(t, http.MethodPost, "/api/admin/orders/delete", DeleteOrdersRequest{OrderIDs: ids})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/orders/delete", DeleteOrdersRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListOrders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", checkoutBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res []OrderResponse
	decodeInto(t, rec, &res)
	assert.Len(t, res, 1)
}
