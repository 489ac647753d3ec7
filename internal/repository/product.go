package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-promotions/internal/domain/product"
)

const (
	productColumns = `id, tenant_id, name, price, category_id`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE tenant_id = $1 ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE tenant_id = $1 AND id = $2`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products WHERE tenant_id = $1 AND id = ANY($2)`

	upsertProductSQL = `INSERT INTO products (tenant_id, id, name, price, category_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, category_id = EXCLUDED.category_id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *Store
}

// NewProductRepository returns a ProductRepository that uses the given store.
func NewProductRepository(db *Store) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns the tenant's catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context, tenantID string) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listProductsSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, tenantID, id string) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductByIDSQL, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductsByIDsSQL, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert creates or replaces a product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.db.conn(ctx).Exec(ctx, upsertProductSQL, p.TenantID, p.ID, p.Name, p.Price, p.CategoryID)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.CategoryID)
	return p, err
}
