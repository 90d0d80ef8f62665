// Package state provides file-based persistence for rolegate runtime state.
//
// The state.json file holds every role rule set and module membership
// written through the admin API, so they survive restarts. Writes are
// atomic, locked across processes and backed up to state.json.bak.
package state

import "time"

// SchemaVersion is the current state.json layout.
const SchemaVersion = "1"

// AppState is the top-level structure persisted in state.json.
type AppState struct {
	// Version is the schema version for forward compatibility.
	Version string `json:"version"`

	// Roles are the rule sets, one entry per role id.
	Roles []RoleEntry `json:"roles"`

	// Members are the module addresses holding roles.
	Members []MemberEntry `json:"members"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleEntry is one role and the targets it configures.
type RoleEntry struct {
	ID      uint16        `json:"id"`
	Targets []TargetEntry `json:"targets"`
}

// TargetEntry is the configuration of one target address.
type TargetEntry struct {
	// Address is the 0x-prefixed checksummed target address.
	Address string `json:"address"`

	// Clearance is "none", "target" or "function".
	Clearance string `json:"clearance"`

	// Options is the target-level execution options name.
	Options string `json:"options"`

	Functions []FunctionEntry `json:"functions,omitempty"`
}

// FunctionEntry is the scope of one selector on a function-cleared target.
type FunctionEntry struct {
	// Selector is the 0x-prefixed 4-byte function selector.
	Selector   string           `json:"selector"`
	Allowed    bool             `json:"allowed"`
	Options    string           `json:"options"`
	Parameters []ParameterEntry `json:"parameters,omitempty"`
}

// ParameterEntry is a scoped parameter slot. Unscoped slots are not
// persisted.
type ParameterEntry struct {
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Comparison string `json:"comparison"`

	// Values are 0x-prefixed hex comparison values.
	Values []string `json:"values"`
}

// MemberEntry lists the roles a module address holds.
type MemberEntry struct {
	Module string   `json:"module"`
	Roles  []uint16 `json:"roles"`

	// DefaultRole is nil when the module has no default role.
	DefaultRole *uint16 `json:"default_role,omitempty"`
}
