package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item of a tenant.
type Product struct {
	ID         string
	TenantID   string
	Name       string
	Price      decimal.Decimal
	CategoryID string
}

// Repository defines read operations for a tenant's catalog.
type Repository interface {
	List(ctx context.Context, tenantID string) ([]Product, error)
	GetByID(ctx context.Context, tenantID, id string) (*Product, error)
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]Product, error)
}
