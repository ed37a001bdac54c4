package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/lienzolab/storefront/internal/order"
)

// Strategy locates an order by one correlation key. The commit flow tries
// an ordered list of strategies because each key (id hint, gateway token,
// buy-order code) may independently be missing or stale.
type Strategy interface {
	Name() string
	Lookup(ctx context.Context) (*order.Order, error)
}

type byID struct {
	repo order.Repository
	id   string
}

// NewIDLookup resolves the explicit order-id hint supplied by the caller.
func NewIDLookup(repo order.Repository, id string) Strategy {
	return &byID{repo: repo, id: id}
}

func (s *byID) Name() string { return "by_id" }

func (s *byID) Lookup(ctx context.Context) (*order.Order, error) {
	if s.id == "" {
		return nil, order.ErrNotFound
	}
	return s.repo.GetByID(ctx, s.id)
}

type byToken struct {
	repo  order.Repository
	token string
}

// NewTokenLookup resolves the gateway token stored on the order at
// transaction-creation time.
func NewTokenLookup(repo order.Repository, token string) Strategy {
	return &byToken{repo: repo, token: token}
}

func (s *byToken) Name() string { return "by_token" }

func (s *byToken) Lookup(ctx context.Context) (*order.Order, error) {
	return s.repo.FindByToken(ctx, s.token)
}

type byBuyOrder struct {
	repo     order.Repository
	buyOrder string
}

// NewBuyOrderLookup resolves the buy-order code echoed back in the
// gateway's commit response.
func NewBuyOrderLookup(repo order.Repository, buyOrder string) Strategy {
	return &byBuyOrder{repo: repo, buyOrder: buyOrder}
}

func (s *byBuyOrder) Name() string { return "by_buy_order" }

func (s *byBuyOrder) Lookup(ctx context.Context) (*order.Order, error) {
	return s.repo.FindByBuyOrder(ctx, s.buyOrder)
}

// firstMatch runs the strategies in order and returns the first hit.
// A miss moves on to the next strategy; any other repository error aborts
// the chain. When every strategy misses, the result is order.ErrNotFound.
func firstMatch(ctx context.Context, strategies []Strategy) (*order.Order, error) {
	for _, s := range strategies {
		o, err := s.Lookup(ctx)
		if err == nil {
			return o, nil
		}
		if errors.Is(err, order.ErrNotFound) {
			continue
		}
		return nil, fmt.Errorf("lookup %s: %w", s.Name(), err)
	}
	return nil, order.ErrNotFound
}
