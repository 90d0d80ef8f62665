// Package audit contains the event records rolegate keeps for rule
// changes and authorization decisions.
package audit

import "time"

// Decision values for check and exec records.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Kind groups events by what produced them.
const (
	// KindRole is a change to a role's rule set.
	KindRole = "role"
	// KindMembership is a role grant, revocation or default role change.
	KindMembership = "membership"
	// KindCheck is an authorization decision made without execution.
	KindCheck = "check"
	// KindExec is an execution attempt on behalf of a module.
	KindExec = "exec"
)

// Record is one emitted event.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`

	// Event names the operation, e.g. "scope_parameter" or "assign_roles".
	Event string `json:"event"`

	// Role is nil for events that concern no single role.
	Role *uint16 `json:"role,omitempty"`

	Module   string `json:"module,omitempty"`
	Target   string `json:"target,omitempty"`
	Selector string `json:"selector,omitempty"`

	// Decision is set on check and exec records.
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// Details carries event-specific fields such as options or the
	// parameter index.
	Details map[string]any `json:"details,omitempty"`

	RequestID     string `json:"request_id,omitempty"`
	LatencyMicros int64  `json:"latency_us,omitempty"`
}

// RoleID returns a pointer suitable for Record.Role.
func RoleID(id uint16) *uint16 {
	return &id
}
