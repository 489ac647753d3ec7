package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrDuplicate is returned by Repository.Create when the order ID exists.
var ErrDuplicate = errors.New("order already exists")

// Order is a placed order together with the promotions it received.
type Order struct {
	ID         string
	TenantID   string
	CustomerID string
	Items      []OrderItem
	// GiftItems are zero-priced units added by promotions.
	GiftItems []OrderItem
	Subtotal  decimal.Decimal
	Discounts decimal.Decimal
	Shipping  decimal.Decimal
	Total     decimal.Decimal
	// CouponCode is set only when the coupon was applied.
	CouponCode   string
	AppliedRules []string
	CreatedAt    time.Time
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
}

// Transactor runs fn in a transaction. Repositories called with the ctx
// passed to fn take part in it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
