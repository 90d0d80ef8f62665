package audit

import (
	"context"
	"strings"
)

// Store persists event records. Interface owned by domain per hexagonal
// architecture; implementations may batch writes.
type Store interface {
	// Append stores records in order.
	Append(ctx context.Context, records ...Record) error

	// Flush forces pending records to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// QueryStore gives read access to recent records for the admin API.
type QueryStore interface {
	// Recent returns up to filter.Limit matching records, newest first.
	Recent(filter Filter) []Record
}

// MaxLimit caps Filter.Limit.
const MaxLimit = 500

// Filter selects records. Zero fields match everything.
type Filter struct {
	Kind     string
	Event    string
	Role     *uint16
	Module   string
	Decision string

	// Limit defaults to 100 and is capped at MaxLimit.
	Limit int
}

// EffectiveLimit returns Limit with the default and cap applied.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return 100
	case f.Limit > MaxLimit:
		return MaxLimit
	}
	return f.Limit
}

// Matches reports whether r passes the filter. Module addresses compare
// case-insensitively.
func (f Filter) Matches(r Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Event != "" && r.Event != f.Event {
		return false
	}
	if f.Role != nil && (r.Role == nil || *r.Role != *f.Role) {
		return false
	}
	if f.Module != "" && !strings.EqualFold(r.Module, f.Module) {
		return false
	}
	if f.Decision != "" && r.Decision != f.Decision {
		return false
	}
	return true
}
