package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-promotions/internal/domain/order"
)

const createOrderSQL = `INSERT INTO orders (id, tenant_id, customer_id, items, gift_items,
		subtotal, discounts, shipping, total, coupon_code, applied_rules, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *Store
}

// NewOrderRepository returns an OrderRepository that uses the given store.
func NewOrderRepository(db *Store) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order. Items and gift items are serialized to JSON
// for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	gifts := o.GiftItems
	if gifts == nil {
		gifts = []order.OrderItem{}
	}
	giftsJSON, err := json.Marshal(gifts)
	if err != nil {
		return fmt.Errorf("marshaling gift items: %w", err)
	}
	applied := o.AppliedRules
	if applied == nil {
		applied = []string{}
	}

	_, err = r.db.conn(ctx).Exec(ctx, createOrderSQL,
		o.ID, o.TenantID, o.CustomerID, itemsJSON, giftsJSON,
		o.Subtotal, o.Discounts, o.Shipping, o.Total, o.CouponCode, applied, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(order.ErrDuplicate, "order %q", o.ID)
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}
