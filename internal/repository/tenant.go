package repository

import (
	"context"
	"fmt"
)

const upsertTenantSQL = `INSERT INTO tenants (id, name) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

// TenantRepository manages storefront tenants.
type TenantRepository struct {
	db *Store
}

// NewTenantRepository returns a TenantRepository that uses the given store.
func NewTenantRepository(db *Store) *TenantRepository {
	return &TenantRepository{db: db}
}

// Upsert creates or renames a tenant.
func (r *TenantRepository) Upsert(ctx context.Context, id, name string) error {
	if _, err := r.db.conn(ctx).Exec(ctx, upsertTenantSQL, id, name); err != nil {
		return fmt.Errorf("upserting tenant %q: %w", id, err)
	}
	return nil
}
