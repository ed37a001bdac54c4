package httpx

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItemDTO struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image,omitempty"`
	Width        int             `json:"width"`
	Height       int             `json:"height"`
	Unit         string          `json:"unit"`
	FrameOption  string          `json:"frame_option,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

type CartResponse struct {
	ID        string          `json:"id"`
	Items     []CartItemDTO   `json:"items"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type PutCartRequest struct {
	Items []CartItemDTO `json:"items"`
}

type CheckoutRequest struct {
	// CartID selects a stored cart; Items may be sent inline instead.
	CartID string        `json:"cart_id,omitempty"`
	Items  []CartItemDTO `json:"items,omitempty"`

	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
}

type OrderResponse struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	ImageURL      string          `json:"image_url,omitempty"`

	Token             string     `json:"token,omitempty"`
	BuyOrder          string     `json:"buy_order,omitempty"`
	ResponseCode      *int       `json:"response_code,omitempty"`
	GatewayStatus     string     `json:"gateway_status,omitempty"`
	AuthorizationCode string     `json:"authorization_code,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`

	Items []OrderItemDTO `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderItemDTO struct {
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Unit        string          `json:"unit"`
	FrameOption string          `json:"frame_option,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateTransactionRequest struct {
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type CreateTransactionResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type CommitRequest struct {
	Token   string `json:"token"`
	OrderID string `json:"order_id,omitempty"`
}

type CommitResponse struct {
	Success     bool               `json:"success"`
	OrderID     string             `json:"order_id,omitempty"`
	Status      string             `json:"status,omitempty"`
	AlreadyPaid bool               `json:"already_paid,omitempty"`
	Response    *GatewayDetailsDTO `json:"response,omitempty"`
}

type GatewayDetailsDTO struct {
	BuyOrder          string `json:"buy_order"`
	Amount            int64  `json:"amount"`
	ResponseCode      int    `json:"response_code"`
	Status            string `json:"status"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	TransactionDate   string `json:"transaction_date,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

type DeleteOrdersRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type DeleteOrdersResponse struct {
	Success      bool  `json:"success"`
	DeletedCount int64 `json:"deleted_count"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	IsTimeout bool   `json:"is_timeout,omitempty"`
}
