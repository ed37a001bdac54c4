package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lienzolab/storefront/internal/pkg/cache"
)

// DefaultTTL is how long an untouched cart survives before the store lets
// it expire.
const DefaultTTL = 7 * 24 * time.Hour

// Store persists carts through the injected key-value port.
type Store struct {
	kv  cache.Cache
	ttl time.Duration
}

// NewStore builds a Store. A non-positive ttl falls back to DefaultTTL.
func NewStore(kv cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

// Load returns the cart for id, or an empty cart when none is stored.
func (s *Store) Load(ctx context.Context, id string) (*Cart, error) {
	raw, err := s.kv.Get(ctx, s.kv.GenerateKey("cart", id))
	if err != nil {
		return nil, fmt.Errorf("cart: load %q: %w", id, err)
	}
	if raw == "" {
		return &Cart{ID: id}, nil
	}

	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("cart: decode %q: %w", id, err)
	}
	c.ID = id
	return &c, nil
}

// Save writes the cart back, refreshing its TTL.
func (s *Store) Save(ctx context.Context, c *Cart) error {
	c.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cart: encode %q: %w", c.ID, err)
	}
	if err := s.kv.Set(ctx, s.kv.GenerateKey("cart", c.ID), string(raw), s.ttl); err != nil {
		return fmt.Errorf("cart: save %q: %w", c.ID, err)
	}
	return nil
}

// Clear removes the stored cart, typically right after checkout.
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, s.kv.GenerateKey("cart", id)); err != nil {
		return fmt.Errorf("cart: clear %q: %w", id, err)
	}
	return nil
}
