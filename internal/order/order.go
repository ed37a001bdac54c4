// Package order defines the Order domain model and the repository port used
// by checkout, payment reconciliation, and the admin surface.
package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no order matches the given key.
	ErrNotFound = errors.New("order not found")

	// ErrNoRowsAffected is returned when a write that was expected to touch
	// at least one row touched none. It is always surfaced to the caller:
	// a silently dropped status update after a gateway commit would mean
	// money captured remotely with no local record of it.
	ErrNoRowsAffected = errors.New("no rows affected")
)

// Status is the persisted lifecycle state of an order. Values are
// case-sensitive and stored as-is.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPaid          Status = "paid"
	StatusPaymentFailed Status = "payment_failed"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusPaymentFailed,
		StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// AdminAssignable reports whether s may be set through the admin surface.
// The automated reconciliation flow owns pending/paid/payment_failed.
func (s Status) AdminAssignable() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Order is one customer purchase attempt.
type Order struct {
	ID string

	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	// TotalAmount is in the store currency's minor unit (CLP has none).
	TotalAmount decimal.Decimal
	Status      Status

	// ImageURL points at the uploaded artwork in object storage.
	ImageURL string

	// Gateway correlation fields, populated when a remote transaction is
	// created and finalised on commit.
	Token             string
	BuyOrder          string
	SessionID         string
	ResponseCode      *int
	GatewayStatus     string
	AuthorizationCode string
	TransactionDate   string
	PaidAt            *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is one line of a purchase. A cart line of quantity N materialises
// into N Item rows at checkout; items are never updated afterwards.
type Item struct {
	ID      int64
	OrderID string

	Width  int
	Height int
	Unit   string

	// FrameOption is empty for unframed prints.
	FrameOption string

	UnitPrice decimal.Decimal
}
