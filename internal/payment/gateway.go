// Package payment defines the port over the hosted payment gateway.
//
// The reconciliation service depends on this abstraction, not on the Webpay
// client directly, so tests can swap in a fake and a future gateway change
// stays contained in one adapter package.
package payment

import (
	"context"
	"errors"
)

var (
	// ErrSessionExpired groups the gateway's expired/invalid/not-found/
	// aborted token responses. Callers present a "session expired, please
	// retry" message instead of a generic failure.
	ErrSessionExpired = errors.New("payment session expired")

	// ErrTimeout is returned when the gateway did not answer within the
	// configured bound.
	ErrTimeout = errors.New("payment gateway timeout")

	// ErrProtocol is returned when the gateway answered with a shape the
	// adapter cannot use (e.g. a create response without a token or URL).
	ErrProtocol = errors.New("payment gateway protocol error")
)

// ResponseCodeApproved is the commit response code meaning the payment was
// authorised. Every other code is a decline.
const ResponseCodeApproved = 0

// CreateResponse is the outcome of registering a new remote transaction.
type CreateResponse struct {
	// Token correlates the eventual redirect-back with this transaction.
	Token string
	// URL is where the customer's browser is sent to pay.
	URL string
}

// CommitResponse is the gateway's verdict on a finalised transaction.
type CommitResponse struct {
	BuyOrder          string
	SessionID         string
	Amount            int64
	ResponseCode      int
	Status            string
	AuthorizationCode string
	TransactionDate   string
}

// Approved reports whether the gateway authorised the payment.
func (r *CommitResponse) Approved() bool {
	return r.ResponseCode == ResponseCodeApproved
}

// Gateway is the port implemented by the Webpay client and by test fakes.
type Gateway interface {
	// Create registers a transaction for the given buy-order code and
	// integer amount, returning the token and the redirect URL.
	Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*CreateResponse, error)

	// Commit finalises the transaction behind token. Gateway-level
	// failures are classified (ErrSessionExpired, ErrTimeout) so callers
	// can react distinctly.
	Commit(ctx context.Context, token string) (*CommitResponse, error)
}
