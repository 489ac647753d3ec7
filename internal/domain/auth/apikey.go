package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active API key has the hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo identifies a validated API key and the tenant it acts for.
type APIKeyInfo struct {
	ID       string
	TenantID string
	KeyHash  string
	Name     string
	Scopes   []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type infoKey struct{}

// WithInfo stores the authenticated key in ctx.
func WithInfo(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// FromContext returns the authenticated key stored by WithInfo.
func FromContext(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(infoKey{}).(*APIKeyInfo)
	return info, ok && info != nil
}
