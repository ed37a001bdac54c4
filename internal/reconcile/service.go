// Package reconcile implements the order/payment state machine: it creates
// remote gateway transactions for pending orders and, on commit, matches
// the gateway's verdict back to the right local order and transitions its
// status.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lienzolab/storefront/internal/order"
	"github.com/lienzolab/storefront/internal/payment"
)

var (
	// ErrAmountMismatch is returned when the claimed or gateway-reported
	// amount differs from the order's stored total by more than the
	// configured tolerance. The order is left untouched: applying a
	// mismatched confirmation could mark the wrong order paid.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrAlreadyPaid is returned by CreateTransaction for an order that
	// already completed payment. Commit treats the same condition as an
	// idempotent success instead.
	ErrAlreadyPaid = errors.New("order already paid")
)

// Gateway identifier length limits. Webpay rejects buy-order codes longer
// than 26 characters and session ids longer than 61.
const (
	maxBuyOrderLen = 26
	maxSessionLen  = 61
)

// DefaultAmountTolerance absorbs the rounding introduced by the gateway's
// integer-amount requirement. One minor unit; override via config.
var DefaultAmountTolerance = decimal.NewFromInt(1)

// Service drives the payment lifecycle of orders.
type Service struct {
	orders    order.Repository
	gateway   payment.Gateway
	returnURL string
	tolerance decimal.Decimal

	now func() time.Time
}

// New builds a Service. A non-positive tolerance falls back to
// DefaultAmountTolerance.
func New(orders order.Repository, gateway payment.Gateway, returnURL string, tolerance decimal.Decimal) *Service {
	if tolerance.Sign() <= 0 {
		tolerance = DefaultAmountTolerance
	}
	return &Service{
		orders:    orders,
		gateway:   gateway,
		returnURL: returnURL,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// CreateTransactionResult carries the gateway token and redirect URL for a
// freshly registered transaction.
type CreateTransactionResult struct {
	Token    string
	URL      string
	BuyOrder string
}

// CreateTransaction registers a remote gateway transaction for the order
// and stores the correlation fields on it. The order stays pending.
//
// Calling it again for the same pending order registers a fresh gateway
// transaction and overwrites the stored correlation fields: that is the
// user-initiated "session expired, try again" retry path.
func (s *Service) CreateTransaction(ctx context.Context, orderID string, claimed decimal.Decimal) (*CreateTransactionResult, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: create transaction for %q: %w", orderID, err)
	}

	if o.Status == order.StatusPaid {
		return nil, fmt.Errorf("reconcile: order %q: %w", orderID, ErrAlreadyPaid)
	}

	if !s.withinTolerance(claimed, o.TotalAmount) {
		return nil, fmt.Errorf("reconcile: order %q claims %s, stored total is %s: %w",
			orderID, claimed, o.TotalAmount, ErrAmountMismatch)
	}

	buyOrder := buyOrderCode(o.ID, s.now())
	sessionID := sessionCode(o.ID)
	amount := o.TotalAmount.Round(0).IntPart()

	res, err := s.gateway.Create(ctx, buyOrder, sessionID, amount, s.returnURL)
	if err != nil {
		return nil, fmt.Errorf("reconcile: register transaction for %q: %w", orderID, err)
	}

	// Without the stored token the commit step can never find this order,
	// so a failed enrichment here is critical, not best-effort.
	if err := s.orders.AttachGatewaySession(ctx, o.ID, res.Token, buyOrder, sessionID); err != nil {
		return nil, fmt.Errorf("reconcile: persist gateway session for %q: %w", orderID, err)
	}

	slog.InfoContext(ctx, "gateway transaction created",
		"order_id", o.ID, "buy_order", buyOrder, "amount", amount)

	return &CreateTransactionResult{Token: res.Token, URL: res.URL, BuyOrder: buyOrder}, nil
}

// CommitResult reports the outcome of a commit call.
type CommitResult struct {
	Order *order.Order

	// Response is nil when the order was already paid and the gateway was
	// not re-consulted for validation.
	Response *payment.CommitResponse

	// AlreadyPaid marks the idempotent no-op path: a duplicate redirect
	// or double-click landed after the order was marked paid.
	AlreadyPaid bool

	// Approved reports whether the order ended up paid.
	Approved bool
}

// Commit finalises the gateway transaction behind token and transitions the
// matched order to paid or payment_failed.
//
// orderIDHint is optional; when present it takes priority over the stored
// token and the buy-order code in the lookup chain.
func (s *Service) Commit(ctx context.Context, token, orderIDHint string) (*CommitResult, error) {
	res, err := s.gateway.Commit(ctx, token)
	if err != nil {
		// Classified gateway failures (expired, timeout) abort here; no
		// order is guessed at or mutated.
		return nil, fmt.Errorf("reconcile: commit token: %w", err)
	}

	o, err := firstMatch(ctx, []Strategy{
		NewIDLookup(s.orders, orderIDHint),
		NewTokenLookup(s.orders, token),
		NewBuyOrderLookup(s.orders, res.BuyOrder),
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: match committed transaction: %w", err)
	}

	// Duplicate commits (browser retries a redirect, user double-clicks)
	// are a no-op success. No re-validation, no re-applied updates.
	if o.Status == order.StatusPaid {
		return &CommitResult{Order: o, AlreadyPaid: true, Approved: true}, nil
	}

	gatewayAmount := decimal.NewFromInt(res.Amount)
	if !s.withinTolerance(gatewayAmount, o.TotalAmount) {
		return nil, fmt.Errorf("reconcile: order %q total is %s, gateway confirmed %s: %w",
			o.ID, o.TotalAmount, gatewayAmount, ErrAmountMismatch)
	}

	fields := order.CommitFields{
		Status:            order.StatusPaymentFailed,
		ResponseCode:      res.ResponseCode,
		GatewayStatus:     res.Status,
		AuthorizationCode: res.AuthorizationCode,
		TransactionDate:   res.TransactionDate,
	}
	if res.Approved() {
		fields.Status = order.StatusPaid
		paidAt := s.now().UTC()
		fields.PaidAt = &paidAt
	}
	if o.Token == "" {
		// Matched via the id hint on a row that was never enriched;
		// backfill the correlation fields from the commit response.
		fields.Token = token
		fields.BuyOrder = res.BuyOrder
	}

	applied, err := s.orders.ApplyCommit(ctx, o.ID, fields)
	if err != nil {
		return nil, fmt.Errorf("reconcile: persist commit for %q: %w", o.ID, err)
	}
	if !applied {
		// The conditional update lost to a concurrent commit. Re-read:
		// if that commit marked the order paid, this one is a duplicate.
		current, err := s.orders.GetByID(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("reconcile: re-read order %q after guarded update: %w", o.ID, err)
		}
		if current.Status == order.StatusPaid {
			return &CommitResult{Order: current, AlreadyPaid: true, Approved: true}, nil
		}
		return nil, fmt.Errorf("reconcile: persist commit for %q: %w", o.ID, order.ErrNoRowsAffected)
	}

	updated, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: re-read order %q after commit: %w", o.ID, err)
	}

	slog.InfoContext(ctx, "transaction committed",
		"order_id", updated.ID, "status", updated.Status, "response_code", res.ResponseCode)

	return &CommitResult{Order: updated, Response: res, Approved: res.Approved()}, nil
}

func (s *Service) withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(s.tolerance) <= 0
}

// buyOrderCode derives a gateway buy-order code from the order id plus a
// millisecond suffix that keeps retries unique, bounded to the gateway's
// length limit.
func buyOrderCode(orderID string, now time.Time) string {
	compact := strings.ReplaceAll(orderID, "-", "")
	suffix := fmt.Sprintf("%d", now.UnixMilli())
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}

	maxPrefix := maxBuyOrderLen - len(suffix) - 1
	if len(compact) > maxPrefix {
		compact = compact[:maxPrefix]
	}
	return compact + "-" + suffix
}

// sessionCode derives the gateway session id from the order id, bounded to
// the gateway's limit.
func sessionCode(orderID string) string {
	s := "S-" + strings.ReplaceAll(orderID, "-", "")
	if len(s) > maxSessionLen {
		s = s[:maxSessionLen]
	}
	return s
}
