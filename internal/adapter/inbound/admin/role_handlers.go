package admin

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
	"github.com/Sentinel-Gate/rolegate/internal/service"
)

// --- Request types ---

// optionsRequest carries execution options: "none", "send",
// "delegatecall" or "both". Empty means none.
type optionsRequest struct {
	Options string `json:"options"`
}

// parameterRequest is the rule for one parameter slot. Values are
// 0x-prefixed hex; static values must be exactly 32 bytes.
type parameterRequest struct {
	Type       string   `json:"type"`
	Comparison string   `json:"comparison"`
	Values     []string `json:"values"`
}

// scopeFunctionRequest replaces a function's whole scope.
type scopeFunctionRequest struct {
	Options    string                  `json:"options"`
	Parameters []scopeParameterRequest `json:"parameters"`
}

type scopeParameterRequest struct {
	Scoped bool `json:"scoped"`
	parameterRequest
}

// --- Handlers ---

// handleListRoles handles GET /admin/api/roles.
func (h *AdminAPIHandler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	list, err := h.roleService.ListRoles(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	entries := make([]state.RoleEntry, 0, len(list))
	for _, role := range list {
		entries = append(entries, service.RoleToEntry(role))
	}
	h.respondJSON(w, http.StatusOK, entries)
}

// handleGetRole handles GET /admin/api/roles/{role}. A matching
// If-None-Match yields 304.
func (h *AdminAPIHandler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	id, err := h.roleParam(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.roleService.Snapshot(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("ETag", snap.ETag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == snap.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.respondJSON(w, http.StatusOK, snap.Role)
}

// handleAllowTarget handles POST /admin/api/roles/{role}/targets/{target}/allow.
func (h *AdminAPIHandler) handleAllowTarget(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.mutateTarget(w, r, func(id uint16, target common.Address) error {
		opts, err := roles.ParseExecutionOptions(req.Options)
		if err != nil {
			return err
		}
		return h.roleService.AllowTarget(r.Context(), id, target, opts)
	})
}

// handleRevokeTarget handles POST /admin/api/roles/{role}/targets/{target}/revoke.
func (h *AdminAPIHandler) handleRevokeTarget(w http.ResponseWriter, r *http.Request) {
	h.mutateTarget(w, r, func(id uint16, target common.Address) error {
		return h.roleService.RevokeTarget(r.Context(), id, target)
	})
}

// handleScopeTarget handles POST /admin/api/roles/{role}/targets/{target}/scope.
func (h *AdminAPIHandler) handleScopeTarget(w http.ResponseWriter, r *http.Request) {
	h.mutateTarget(w, r, func(id uint16, target common.Address) error {
		return h.roleService.ScopeTarget(r.Context(), id, target)
	})
}

// handleAllowFunction handles POST .../functions/{selector}/allow.
func (h *AdminAPIHandler) handleAllowFunction(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.mutateFunction(w, r, func(id uint16, target common.Address, sel roles.Selector) error {
		opts, err := roles.ParseExecutionOptions(req.Options)
		if err != nil {
			return err
		}
		return h.roleService.ScopeAllowFunction(r.Context(), id, target, sel, opts)
	})
}

// handleRevokeFunction handles POST .../functions/{selector}/revoke.
func (h *AdminAPIHandler) handleRevokeFunction(w http.ResponseWriter, r *http.Request) {
	h.mutateFunction(w, r, func(id uint16, target common.Address, sel roles.Selector) error {
		return h.roleService.ScopeRevokeFunction(r.Context(), id, target, sel)
	})
}

// handleScopeFunction handles PUT .../functions/{selector}.
func (h *AdminAPIHandler) handleScopeFunction(w http.ResponseWriter, r *http.Request) {
	var req scopeFunctionRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	n := len(req.Parameters)
	scoped := make([]bool, n)
	types := make([]roles.ParameterType, n)
	comps := make([]roles.Comparison, n)
	values := make([][][]byte, n)
	for i, p := range req.Parameters {
		if !p.Scoped {
			continue
		}
		typ, comp, vals, err := p.decode()
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		scoped[i], types[i], comps[i], values[i] = true, typ, comp, vals
	}

	h.mutateFunction(w, r, func(id uint16, target common.Address, sel roles.Selector) error {
		opts, err := roles.ParseExecutionOptions(req.Options)
		if err != nil {
			return err
		}
		return h.roleService.ScopeFunction(r.Context(), id, target, sel, scoped, types, comps, values, opts)
	})
}

// handleFunctionOptions handles PUT .../functions/{selector}/options.
func (h *AdminAPIHandler) handleFunctionOptions(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.mutateFunction(w, r, func(id uint16, target common.Address, sel roles.Selector) error {
		opts, err := roles.ParseExecutionOptions(req.Options)
		if err != nil {
			return err
		}
		return h.roleService.ScopeFunctionExecutionOptions(r.Context(), id, target, sel, opts)
	})
}

// handleScopeParameter handles PUT .../parameters/{index}. A "oneof"
// comparison takes any number of values, the others exactly one.
func (h *AdminAPIHandler) handleScopeParameter(w http.ResponseWriter, r *http.Request) {
	index, err := h.indexParam(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req parameterRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	typ, comp, vals, err := req.decode()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mutateFunction(w, r, func(id uint16, target common.Address, sel roles.Selector) error {
		if comp == roles.OneOf {
			return h.roleService.ScopeParameterAsOneOf(r.Context(), id, target, sel, index, typ, vals)
		}
		if len(vals) != 1 {
			return roles.ErrInvalidCompValues
		}
		return h.roleService.ScopeParameter(r.Context(), id, target, sel, index, typ, comp, vals[0])
	})
}

// handleUnscopeParameter handles DELETE .../parameters/{index}.
func (h *AdminAPIHandler) handleUnscopeParameter(w http.ResponseWriter, r *http.Request) {
	index, err := h.indexParam(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.mutateFunction(w, r, func(id uint16, target common.Address, sel roles.Selector) error {
		return h.roleService.UnscopeParameter(r.Context(), id, target, sel, index)
	})
}

// --- Helpers ---

// mutateTarget resolves {role} and {target}, runs fn and responds with the
// resulting role.
func (h *AdminAPIHandler) mutateTarget(w http.ResponseWriter, r *http.Request, fn func(uint16, common.Address) error) {
	id, err := h.roleParam(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := h.addressParam(r, "target")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := fn(id, target); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondRole(w, r, id)
}

// mutateFunction is mutateTarget for routes that also carry {selector}.
func (h *AdminAPIHandler) mutateFunction(w http.ResponseWriter, r *http.Request, fn func(uint16, common.Address, roles.Selector) error) {
	sel, err := roles.ParseSelector(h.pathParam(r, "selector"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.mutateTarget(w, r, func(id uint16, target common.Address) error {
		return fn(id, target, sel)
	})
}

func (h *AdminAPIHandler) respondRole(w http.ResponseWriter, r *http.Request, id uint16) {
	snap, err := h.roleService.Snapshot(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("ETag", snap.ETag)
	h.respondJSON(w, http.StatusOK, snap.Role)
}

// decodeOptional reads an optional JSON body. It reports false after
// responding with 400.
func (h *AdminAPIHandler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := h.readJSON(w, r, v); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (p parameterRequest) decode() (roles.ParameterType, roles.Comparison, [][]byte, error) {
	typ, err := roles.ParseParameterType(p.Type)
	if err != nil {
		return 0, 0, nil, err
	}
	comp, err := roles.ParseComparison(p.Comparison)
	if err != nil {
		return 0, 0, nil, err
	}
	vals := make([][]byte, len(p.Values))
	for i, v := range p.Values {
		raw, err := hexutil.Decode(v)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("value %d: %w", i, err)
		}
		vals[i] = raw
	}
	return typ, comp, vals, nil
}
