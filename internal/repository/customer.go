package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-promotions/internal/domain/promotion"
)

const (
	isMemberSQL = `SELECT registered_at IS NOT NULL
		FROM customers WHERE tenant_id = $1 AND id = $2`

	upsertCustomerSQL = `INSERT INTO customers (tenant_id, id, email, registered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET email = EXCLUDED.email, registered_at = EXCLUDED.registered_at`
)

var _ promotion.MemberResolver = (*CustomerRepository)(nil)

// CustomerRepository resolves customer membership from PostgreSQL.
type CustomerRepository struct {
	db *Store
}

// NewCustomerRepository returns a CustomerRepository that uses the given store.
func NewCustomerRepository(db *Store) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// IsMember reports whether the customer has registered. Unknown customers
// are guests.
func (r *CustomerRepository) IsMember(ctx context.Context, tenantID, customerID string) (bool, error) {
	var member bool
	err := r.db.conn(ctx).QueryRow(ctx, isMemberSQL, tenantID, customerID).Scan(&member)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("resolving membership of %q: %w", customerID, err)
	}
	return member, nil
}

// Upsert creates or replaces a customer. A nil registeredAt makes a guest.
func (r *CustomerRepository) Upsert(ctx context.Context, tenantID, customerID, email string, registeredAt *time.Time) error {
	_, err := r.db.conn(ctx).Exec(ctx, upsertCustomerSQL, tenantID, customerID, email, registeredAt)
	if err != nil {
		return fmt.Errorf("upserting customer %q: %w", customerID, err)
	}
	return nil
}
