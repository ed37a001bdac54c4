package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lienzolab/storefront/internal/cart"
	"github.com/lienzolab/storefront/internal/order"
	"github.com/lienzolab/storefront/internal/payment"
	"github.com/lienzolab/storefront/internal/reconcile"
)

// Reconciler is the slice of the reconciliation service the handler needs.
type Reconciler interface {
	CreateTransaction(ctx context.Context, orderID string, claimed decimal.Decimal) (*reconcile.CreateTransactionResult, error)
	Commit(ctx context.Context, token, orderIDHint string) (*reconcile.CommitResult, error)
}

// Handler handles incoming HTTP requests for the storefront: cart, checkout,
// payment reconciliation, and order administration.
type Handler struct {
	orders order.Repository
	carts  *cart.Store
	recon  Reconciler
}

// NewHandler initializes the handler with its required collaborators.
func NewHandler(orders order.Repository, carts *cart.Store, recon Reconciler) *Handler {
	return &Handler{
		orders: orders,
		carts:  carts,
		recon:  recon,
	}
}

// CreateCart mints a new empty cart and returns its id.
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	c := &cart.Cart{ID: uuid.NewString()}
	if err := h.carts.Save(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "cart_store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, mapCartToResponse(c))
}

// GetCart returns the stored cart, or an empty one for an unknown id.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "cart_id_required", "")
		return
	}

	c, err := h.carts.Load(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cart_store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mapCartToResponse(c))
}

// PutCart replaces the cart contents wholesale. The client owns the cart
// state; the server only keeps it across reloads.
func (h *Handler) PutCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "cart_id_required", "")
		return
	}

	var req PutCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	c := &cart.Cart{ID: id}
	for _, it := range req.Items {
		if it.Quantity <= 0 || it.UnitPrice.Sign() <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_item", "quantity and unit_price must be positive")
			return
		}
		c.AddItem(mapDTOToCartItem(it))
	}

	if err := h.carts.Save(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "cart_store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mapCartToResponse(c))
}

// DeleteCart drops the stored cart.
func (h *Handler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "cart_id_required", "")
		return
	}
	if err := h.carts.Clear(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "cart_store_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout materialises a cart into a pending order with one item row per
// quantity unit.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if req.CustomerName == "" || req.CustomerEmail == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_name and customer_email are required")
		return
	}

	lines := req.Items
	if req.CartID != "" {
		c, err := h.carts.Load(r.Context(), req.CartID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "cart_store_error", err.Error())
			return
		}
		lines = mapCartItemsToDTO(c.Items)
	}
	if len(lines) == 0 {
		writeError(w, http.StatusBadRequest, "empty_cart", "checkout requires at least one item")
		return
	}

	total := decimal.Zero
	var items []order.Item
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice.Sign() <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_item", "quantity and unit_price must be positive")
			return
		}
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		// A cart line of quantity N becomes N item rows; items are
		// immutable after checkout.
		for i := 0; i < line.Quantity; i++ {
			items = append(items, order.Item{
				Width:       line.Width,
				Height:      line.Height,
				Unit:        line.Unit,
				FrameOption: line.FrameOption,
				UnitPrice:   line.UnitPrice,
			})
		}
	}

	o := &order.Order{
		ID:            uuid.NewString(),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		TotalAmount:   total,
		ImageURL:      req.ImageURL,
	}

	created, err := h.orders.Create(r.Context(), o, items)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "order_create_error", err.Error())
		return
	}

	if req.CartID != "" {
		if err := h.carts.Clear(r.Context(), req.CartID); err != nil {
			// The order exists; a stale cart is not worth failing checkout over.
			slog.WarnContext(r.Context(), "failed to clear cart after checkout",
				"cart_id", req.CartID, "order_id", created.ID, "error", err)
		}
	}

	slog.InfoContext(r.Context(), "order created",
		"order_id", created.ID, "total", created.TotalAmount, "items", len(items))

	writeJSON(w, http.StatusCreated, mapOrderToResponse(created, items))
}

// CreateTransaction registers a gateway transaction for a pending order.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.OrderID == "" || req.Amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "order_id and a positive amount are required")
		return
	}

	res, err := h.recon.CreateTransaction(r.Context(), req.OrderID, req.Amount)
	if err != nil {
		h.writeCreateTransactionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CreateTransactionResponse{Token: res.Token, URL: res.URL})
}

func (h *Handler) writeCreateTransactionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, reconcile.ErrAmountMismatch):
		writeError(w, http.StatusBadRequest, "amount_mismatch", err.Error())
	case errors.Is(err, reconcile.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "order_already_paid", err.Error())
	case errors.Is(err, payment.ErrTimeout):
		writeTimeoutError(w, "gateway_timeout", err.Error())
	default:
		slog.ErrorContext(r.Context(), "create transaction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "transaction_error", err.Error())
	}
}

// CommitTransaction finalises a gateway transaction and reconciles the
// outcome onto the matched order.
func (h *Handler) CommitTransaction(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token_required", "")
		return
	}

	res, err := h.recon.Commit(r.Context(), req.Token, req.OrderID)
	if err != nil {
		h.writeCommitError(w, r, err)
		return
	}

	out := CommitResponse{
		Success:     res.Approved,
		OrderID:     res.Order.ID,
		Status:      string(res.Order.Status),
		AlreadyPaid: res.AlreadyPaid,
	}
	if res.Response != nil {
		out.Response = &GatewayDetailsDTO{
			BuyOrder:          res.Response.BuyOrder,
			Amount:            res.Response.Amount,
			ResponseCode:      res.Response.ResponseCode,
			Status:            res.Response.Status,
			AuthorizationCode: res.Response.AuthorizationCode,
			TransactionDate:   res.Response.TransactionDate,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeCommitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payment.ErrSessionExpired):
		// Distinct from generic failure: the storefront shows "payment
		// session expired, please try again" and restarts transition 1.
		writeError(w, http.StatusBadRequest, "session_expired", err.Error())
	case errors.Is(err, payment.ErrTimeout):
		writeTimeoutError(w, "gateway_timeout", err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, reconcile.ErrAmountMismatch):
		writeError(w, http.StatusBadRequest, "amount_mismatch", err.Error())
	default:
		slog.ErrorContext(r.Context(), "commit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "commit_error", err.Error())
	}
}

// GetOrder retrieves a single order with its items.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order_id_required", "")
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "order_fetch_error", err.Error())
		return
	}

	items, err := h.orders.ItemsByOrder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "order_fetch_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(o, items))
}

// ListOrders returns every order, newest first. Admin only.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "order_list_error", err.Error())
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, mapOrderToResponse(o, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateOrderStatus applies a manual administrative transition. Only
// processing, completed, and cancelled may be set here; the automated flow
// owns the payment statuses.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order_id_required", "")
		return
	}

	var req UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	status := order.Status(req.Status)
	if !status.AdminAssignable() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be processing, completed, or cancelled")
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, order.ErrNoRowsAffected) {
			writeError(w, http.StatusNotFound, "order_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "order_update_error", err.Error())
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "order_fetch_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(o, nil))
}

// DeleteOrders bulk-deletes orders, dependent items first. A zero count is
// surfaced as a failure: it means the ids did not exist or the store
// rejected the write, and silently reporting success would hide that.
func (h *Handler) DeleteOrders(w http.ResponseWriter, r *http.Request) {
	var req DeleteOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, http.StatusBadRequest, "order_ids_required", "")
		return
	}

	count, err := h.orders.Delete(r.Context(), req.OrderIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "order_delete_error", err.Error())
		return
	}
	if count == 0 {
		writeJSON(w, http.StatusBadRequest, DeleteOrdersResponse{Success: false, DeletedCount: 0})
		return
	}

	slog.InfoContext(r.Context(), "orders deleted", "requested", len(req.OrderIDs), "deleted", count)
	writeJSON(w, http.StatusOK, DeleteOrdersResponse{Success: true, DeletedCount: count})
}

func mapCartToResponse(c *cart.Cart) CartResponse {
	return CartResponse{
		ID:        c.ID,
		Items:     mapCartItemsToDTO(c.Items),
		Total:     c.Total(),
		UpdatedAt: c.UpdatedAt,
	}
}

func mapCartItemsToDTO(items []cart.Item) []CartItemDTO {
	out := make([]CartItemDTO, len(items))
	for i, it := range items {
		out[i] = CartItemDTO{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			Width:        it.Width,
			Height:       it.Height,
			Unit:         it.Unit,
			FrameOption:  it.FrameOption,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
		}
	}
	return out
}

func mapDTOToCartItem(it CartItemDTO) cart.Item {
	return cart.Item{
		ProductID:    it.ProductID,
		ProductName:  it.ProductName,
		ProductImage: it.ProductImage,
		Width:        it.Width,
		Height:       it.Height,
		Unit:         it.Unit,
		FrameOption:  it.FrameOption,
		Quantity:     it.Quantity,
		UnitPrice:    it.UnitPrice,
	}
}

func mapOrderToResponse(o *order.Order, items []order.Item) OrderResponse {
	res := OrderResponse{
		ID:                o.ID,
		CustomerName:      o.CustomerName,
		CustomerEmail:     o.CustomerEmail,
		CustomerPhone:     o.CustomerPhone,
		TotalAmount:       o.TotalAmount,
		Status:            string(o.Status),
		ImageURL:          o.ImageURL,
		Token:             o.Token,
		BuyOrder:          o.BuyOrder,
		ResponseCode:      o.ResponseCode,
		GatewayStatus:     o.GatewayStatus,
		AuthorizationCode: o.AuthorizationCode,
		PaidAt:            o.PaidAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, it := range items {
		res.Items = append(res.Items, OrderItemDTO{
			Width:       it.Width,
			Height:      it.Height,
			Unit:        it.Unit,
			FrameOption: it.FrameOption,
			UnitPrice:   it.UnitPrice,
		})
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}

func writeTimeoutError(w http.ResponseWriter, code, msg string) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:     code,
		Message:   msg,
		IsTimeout: true,
	})
}
