package admin

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/service"
)

// assignRolesRequest grants (true) or revokes (false) each listed role.
type assignRolesRequest struct {
	Roles    []uint16 `json:"roles"`
	MemberOf []bool   `json:"member_of"`
}

type defaultRoleRequest struct {
	Role *uint16 `json:"role"`
}

// handleListMembers handles GET /admin/api/members.
func (h *AdminAPIHandler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.memberService.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	entries := make([]state.MemberEntry, 0, len(list))
	for _, m := range list {
		entries = append(entries, service.MemberToEntry(m))
	}
	h.respondJSON(w, http.StatusOK, entries)
}

// handleGetMember handles GET /admin/api/members/{module}. An unknown
// module is returned with no roles.
func (h *AdminAPIHandler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	module, err := h.addressParam(r, "module")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondMember(w, r, module)
}

// handleAssignRoles handles POST /admin/api/members/{module}.
func (h *AdminAPIHandler) handleAssignRoles(w http.ResponseWriter, r *http.Request) {
	module, err := h.addressParam(r, "module")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req assignRolesRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.memberService.AssignRoles(r.Context(), module, req.Roles, req.MemberOf); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondMember(w, r, module)
}

// handleSetDefaultRole handles PUT /admin/api/members/{module}/default-role.
func (h *AdminAPIHandler) handleSetDefaultRole(w http.ResponseWriter, r *http.Request) {
	module, err := h.addressParam(r, "module")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req defaultRoleRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Role == nil {
		h.respondError(w, http.StatusBadRequest, "role is required")
		return
	}
	if err := h.memberService.SetDefaultRole(r.Context(), module, *req.Role); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondMember(w, r, module)
}

func (h *AdminAPIHandler) respondMember(w http.ResponseWriter, r *http.Request, module common.Address) {
	m, err := h.memberService.Get(r.Context(), module)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, service.MemberToEntry(m))
}
