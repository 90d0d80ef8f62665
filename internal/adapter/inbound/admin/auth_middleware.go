package admin

import (
	"net"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"
)

// isLocalhost checks if the request originates from a loopback address.
// Only r.RemoteAddr is consulted; X-Forwarded-For is not trusted here.
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// adminAuthMiddleware admits localhost, dev mode, and remote callers whose
// bearer key matches the configured argon2id hash. Remote callers get 403
// when no key is configured and 401 when their key is missing or wrong.
func (h *AdminAPIHandler) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.devMode || isLocalhost(r) {
			next.ServeHTTP(w, r)
			return
		}
		if h.keyHash == "" {
			h.respondError(w, http.StatusForbidden, "admin API requires localhost access")
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="rolegate"`)
			h.respondError(w, http.StatusUnauthorized, "missing bearer key")
			return
		}
		match, err := argon2id.ComparePasswordAndHash(token, h.keyHash)
		if err != nil {
			h.logger.Error("admin key hash unusable", "error", err)
			h.respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !match {
			h.logger.Warn("admin request with invalid key", "remote_addr", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="rolegate", error="invalid_token"`)
			h.respondError(w, http.StatusUnauthorized, "invalid bearer key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
