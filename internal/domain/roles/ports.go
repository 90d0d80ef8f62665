package roles

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// RuleStore persists and retrieves role rule sets.
type RuleStore interface {
	// GetRole returns a copy of the role. A role never written is returned
	// empty, not as an error.
	GetRole(ctx context.Context, id uint16) (*Role, error)
	// SaveRole replaces the stored role with a copy of role.
	SaveRole(ctx context.Context, role *Role) error
	// ListRoles returns copies of every stored role ordered by id.
	ListRoles(ctx context.Context) ([]*Role, error)
}

// MembershipOracle resolves whether a module holds a role.
type MembershipOracle interface {
	// IsMember reports whether module currently holds role.
	IsMember(ctx context.Context, module common.Address, role uint16) (bool, error)
	// DefaultRole returns the role used for module when none is named.
	// ok is false when no default role is set.
	DefaultRole(ctx context.Context, module common.Address) (role uint16, ok bool, err error)
}

// ExecResult is what the avatar reported for a forwarded call.
type ExecResult struct {
	Success    bool
	ReturnData []byte
}

// Forwarder performs an approved transaction against the avatar.
type Forwarder interface {
	Exec(ctx context.Context, tx Transaction) (ExecResult, error)
}
