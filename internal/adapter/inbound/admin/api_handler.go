// Package admin provides the JSON API for managing roles and memberships
// and for checking and executing transactions against them.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
	"github.com/Sentinel-Gate/rolegate/internal/service"
)

// maxBodyBytes bounds request bodies; a full ScopeFunction call with 48
// OneOf parameters fits comfortably.
const maxBodyBytes = 1 << 20

// AdminAPIHandler serves the /admin/api routes.
type AdminAPIHandler struct {
	roleService   *service.RoleAdminService
	memberService *service.MembershipService
	authService   *service.AuthorizationService
	events        audit.QueryStore
	keyHash       string
	devMode       bool
	limiter       ratelimit.RateLimiter
	ipLimit       ratelimit.Config
	logger        *slog.Logger
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithRoleAdminService sets the role mutation service.
func WithRoleAdminService(s *service.RoleAdminService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.roleService = s }
}

// WithMembershipService sets the membership service.
func WithMembershipService(s *service.MembershipService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.memberService = s }
}

// WithAuthorizationService sets the service behind /check and /exec.
func WithAuthorizationService(s *service.AuthorizationService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.authService = s }
}

// WithEventStore sets the store behind GET /admin/api/events.
func WithEventStore(q audit.QueryStore) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.events = q }
}

// WithKeyHash sets the argon2id hash remote callers' bearer keys are
// verified against. Without it only localhost is admitted.
func WithKeyHash(hash string) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.keyHash = hash }
}

// WithDevMode admits every caller without a key.
func WithDevMode(dev bool) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.devMode = dev }
}

// WithIPRateLimit throttles non-local callers per client IP.
func WithIPRateLimit(limiter ratelimit.RateLimiter, cfg ratelimit.Config) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		h.limiter = limiter
		h.ipLimit = cfg
	}
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Roles.
	mux.HandleFunc("GET /admin/api/roles", h.handleListRoles)
	mux.HandleFunc("GET /admin/api/roles/{role}", h.handleGetRole)
	mux.HandleFunc("POST /admin/api/roles/{role}/targets/{target}/allow", h.handleAllowTarget)
	mux.HandleFunc("POST /admin/api/roles/{role}/targets/{target}/revoke", h.handleRevokeTarget)
	mux.HandleFunc("POST /admin/api/roles/{role}/targets/{target}/scope", h.handleScopeTarget)
	mux.HandleFunc("POST /admin/api/roles/{role}/targets/{target}/functions/{selector}/allow", h.handleAllowFunction)
	mux.HandleFunc("POST /admin/api/roles/{role}/targets/{target}/functions/{selector}/revoke", h.handleRevokeFunction)
	mux.HandleFunc("PUT /admin/api/roles/{role}/targets/{target}/functions/{selector}", h.handleScopeFunction)
	mux.HandleFunc("PUT /admin/api/roles/{role}/targets/{target}/functions/{selector}/options", h.handleFunctionOptions)
	mux.HandleFunc("PUT /admin/api/roles/{role}/targets/{target}/functions/{selector}/parameters/{index}", h.handleScopeParameter)
	mux.HandleFunc("DELETE /admin/api/roles/{role}/targets/{target}/functions/{selector}/parameters/{index}", h.handleUnscopeParameter)

	// Memberships.
	mux.HandleFunc("GET /admin/api/members", h.handleListMembers)
	mux.HandleFunc("GET /admin/api/members/{module}", h.handleGetMember)
	mux.HandleFunc("POST /admin/api/members/{module}", h.handleAssignRoles)
	mux.HandleFunc("PUT /admin/api/members/{module}/default-role", h.handleSetDefaultRole)

	// Authorization.
	mux.HandleFunc("POST /admin/api/check", h.handleCheck)
	mux.HandleFunc("POST /admin/api/exec", h.handleExec)

	// Events.
	mux.HandleFunc("GET /admin/api/events", h.handleListEvents)

	protected := h.adminAuthMiddleware(mux)
	limited := apiRateLimitMiddleware(h.limiter, h.ipLimit, protected)
	return securityHeadersMiddleware(limited)
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// rejectionResponse is the body of a denied check or execution.
type rejectionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Error   string `json:"error"`
}

// respondServiceError maps a service error to a status code. Rejections
// and missing memberships are 403, rejected mutations 400, throttling 429.
func (h *AdminAPIHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case roles.IsRejection(err), errors.Is(err, roles.ErrNoMembership):
		h.respondJSON(w, http.StatusForbidden, rejectionResponse{Reason: roles.Reason(err), Error: err.Error()})
	case errors.Is(err, service.ErrNoDefaultRole):
		h.respondJSON(w, http.StatusForbidden, rejectionResponse{Reason: "no_default_role", Error: err.Error()})
	case roles.IsConfigError(err):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		var limited *service.RateLimitedError
		if errors.As(err, &limited) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limited.RetryAfter)))
		}
		h.respondError(w, http.StatusTooManyRequests, err.Error())
	default:
		h.logger.Error("admin request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// readJSON decodes the request body into v, refusing unknown fields.
func (h *AdminAPIHandler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathParam extracts a named path parameter from the request URL.
func (h *AdminAPIHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

func (h *AdminAPIHandler) roleParam(r *http.Request) (uint16, error) {
	raw := h.pathParam(r, "role")
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid role id %q", raw)
	}
	return uint16(id), nil
}

func (h *AdminAPIHandler) addressParam(r *http.Request, name string) (common.Address, error) {
	raw := h.pathParam(r, name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func (h *AdminAPIHandler) indexParam(r *http.Request) (int, error) {
	raw := h.pathParam(r, "index")
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid parameter index %q", raw)
	}
	return idx, nil
}
