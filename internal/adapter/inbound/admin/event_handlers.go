package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
)

// EventsResponse is the JSON response for GET /admin/api/events.
type EventsResponse struct {
	Records []audit.Record `json:"records"`
	Count   int            `json:"count"`
}

// handleListEvents handles GET /admin/api/events.
func (h *AdminAPIHandler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		h.respondError(w, http.StatusServiceUnavailable, "event log not enabled")
		return
	}
	filter, err := parseEventFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	records := h.events.Recent(filter)
	if records == nil {
		records = []audit.Record{}
	}
	h.respondJSON(w, http.StatusOK, EventsResponse{Records: records, Count: len(records)})
}

func parseEventFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		Kind:     q.Get("kind"),
		Event:    q.Get("event"),
		Decision: q.Get("decision"),
	}

	switch filter.Kind {
	case "", audit.KindRole, audit.KindMembership, audit.KindCheck, audit.KindExec:
	default:
		return filter, fmt.Errorf("invalid kind %q", filter.Kind)
	}
	switch filter.Decision {
	case "", audit.DecisionAllow, audit.DecisionDeny:
	default:
		return filter, fmt.Errorf("invalid decision %q", filter.Decision)
	}

	if v := q.Get("role"); v != "" {
		id, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return filter, fmt.Errorf("invalid role %q", v)
		}
		filter.Role = audit.RoleID(uint16(id))
	}
	if v := q.Get("module"); v != "" {
		if !common.IsHexAddress(v) {
			return filter, fmt.Errorf("invalid module address %q", v)
		}
		filter.Module = common.HexToAddress(v).Hex()
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > audit.MaxLimit {
			return filter, fmt.Errorf("limit must be between 1 and %d", audit.MaxLimit)
		}
		filter.Limit = n
	}
	return filter, nil
}
