package admin

import (
	"net"
	"net/http"
	"strconv"

	"github.com/Sentinel-Gate/rolegate/internal/ctxkey"
	"github.com/Sentinel-Gate/rolegate/internal/domain/ratelimit"
)

// clientIP returns the IP resolved by the HTTP server's RealIP middleware,
// falling back to the host of r.RemoteAddr.
func clientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ctxkey.ClientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// apiRateLimitMiddleware throttles admin requests per client IP. Localhost
// is exempt, as it is from authentication. Over the limit the caller gets
// 429 with Retry-After in whole seconds.
func apiRateLimitMiddleware(limiter ratelimit.RateLimiter, cfg ratelimit.Config, next http.Handler) http.Handler {
	if limiter == nil || !cfg.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLocalhost(r) {
			next.ServeHTTP(w, r)
			return
		}

		res, err := limiter.Allow(r.Context(), ratelimit.FormatKey(ratelimit.KeyTypeIP, clientIP(r)), cfg)
		if err != nil {
			// Limiter errors fail open.
			next.ServeHTTP(w, r)
			return
		}
		if !res.Allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(res.RetryAfter)))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
