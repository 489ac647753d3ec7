package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-promotions/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key. A bearer token in Authorization
// is accepted as well.
const APIKeyHeader = "api_key"

// Authenticate resolves the request's API key to its tenant and stores it in
// the request context. Requests without a known key get 401.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := r.Context()
		hash := auth.HashKey(h.pepper, key)
		info, err := h.apikeys.FindByHash(ctx, hash)
		switch {
		case errors.Is(err, auth.ErrKeyNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			zctx.From(ctx).Error("API key lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		// The stored row could be stale or wrong; never trust the lookup alone.
		if !auth.HashesEqual(hash, info.KeyHash) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx = zctx.With(auth.WithInfo(ctx, info), zap.String("tenant_id", info.TenantID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func apiKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
