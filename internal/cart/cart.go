// Package cart implements the server-side cart store. The cart is owned by
// the browser session and has no relation to an order until checkout
// materialises it; here it lives behind a key-value port so it survives
// page reloads and is testable without a real Redis.
package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one cart line: a product in a chosen size and framing, with the
// display fields denormalised so the cart renders without extra lookups.
type Item struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Width        int             `json:"width"`
	Height       int             `json:"height"`
	Unit         string          `json:"unit"`
	FrameOption  string          `json:"frame_option,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// Subtotal is the line total: unit price times quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the full cart state for one browser session.
type Cart struct {
	ID        string    `json:"id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Total sums the line subtotals.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// AddItem merges the item into the cart: an existing line with the same
// product, size, and framing gains quantity instead of duplicating.
func (c *Cart) AddItem(item Item) {
	for i, it := range c.Items {
		if it.ProductID == item.ProductID &&
			it.Width == item.Width && it.Height == item.Height &&
			it.Unit == item.Unit && it.FrameOption == item.FrameOption {
			c.Items[i].Quantity += item.Quantity
			return
		}
	}
	c.Items = append(c.Items, item)
}

// RemoveItem drops the line at index; out-of-range indexes are a no-op.
func (c *Cart) RemoveItem(index int) {
	if index < 0 || index >= len(c.Items) {
		return
	}
	c.Items = append(c.Items[:index], c.Items[index+1:]...)
}
