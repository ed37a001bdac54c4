package order

import (
	"context"
	"time"
)

// CommitFields carries the gateway's commit outcome onto an order. All
// fields are persisted regardless of approval so the row doubles as an
// audit record of what the gateway answered.
type CommitFields struct {
	Status            Status
	ResponseCode      int
	GatewayStatus     string
	AuthorizationCode string
	TransactionDate   string
	PaidAt            *time.Time

	// Token and BuyOrder backfill rows that were matched via an id hint
	// without ever having been enriched by a create-transaction call.
	// Empty values leave the stored columns untouched.
	Token    string
	BuyOrder string
}

// Repository is the port over the relational store holding orders and
// order items. Implementations must treat a zero-row write as
// ErrNoRowsAffected, never as success.
type Repository interface {
	// Create inserts the order with status forced to pending, plus one
	// row per item. The returned order carries the generated timestamps.
	Create(ctx context.Context, o *Order, items []Item) (*Order, error)

	GetByID(ctx context.Context, id string) (*Order, error)
	FindByToken(ctx context.Context, token string) (*Order, error)
	FindByBuyOrder(ctx context.Context, buyOrder string) (*Order, error)

	// AttachGatewaySession stores the correlation fields handed back by
	// the gateway at transaction-creation time and resets the status to
	// pending in the same write, in case the row was left inconsistent
	// by an earlier attempt.
	AttachGatewaySession(ctx context.Context, id, token, buyOrder, sessionID string) error

	// ApplyCommit writes the commit outcome guarded by status <> 'paid'.
	// applied=false with a nil error means the guard rejected the write,
	// i.e. a concurrent commit already marked the order paid.
	ApplyCommit(ctx context.Context, id string, f CommitFields) (applied bool, err error)

	// UpdateStatus sets the status only. Used by the admin surface.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// Delete removes the given orders, dependent items first, and returns
	// the number of orders actually deleted. The store does not cascade
	// at this layer, so item cleanup is the repository's job.
	Delete(ctx context.Context, ids []string) (int64, error)

	List(ctx context.Context) ([]*Order, error)
	ItemsByOrder(ctx context.Context, id string) ([]Item, error)
}
