package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the length of the rate limit window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. If nil, the client
	// IP is used, honouring X-Forwarded-For and X-Real-IP.
	KeyFunc func(*http.Request) string
}

// RateLimit returns a middleware that enforces a per-key request limit with
// an in-memory store. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset; rejected requests get a JSON
// 429.
func RateLimit(cfg RateLimitConfig) Middleware {
	lim := limiter.New(memory.NewStore(), limiter.Rate{
		Period: cfg.Window,
		Limit:  int64(cfg.Max),
	}, limiter.WithTrustForwardHeader(true))

	opts := []stdlib.Option{
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":429,"message":"rate limit exceeded"}`))
		}),
	}
	if cfg.KeyFunc != nil {
		opts = append(opts, stdlib.WithKeyGetter(cfg.KeyFunc))
	}
	mw := stdlib.NewMiddleware(lim, opts...)
	return mw.Handler
}
