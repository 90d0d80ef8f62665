package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// Membership is the set of roles one module holds.
type Membership struct {
	Module      common.Address
	Roles       []uint16
	DefaultRole uint16
	HasDefault  bool
}

type member struct {
	roles       map[uint16]struct{}
	defaultRole uint16
	hasDefault  bool
}

// MembershipStore implements roles.MembershipOracle with in-memory maps.
// Thread-safe for concurrent access.
type MembershipStore struct {
	members map[common.Address]*member
	mu      sync.RWMutex
}

// NewMembershipStore creates an empty membership store.
func NewMembershipStore() *MembershipStore {
	return &MembershipStore{
		members: make(map[common.Address]*member),
	}
}

// AssignRoles grants (memberOf[i] true) or revokes (false) roleIDs[i] for
// module. Nothing changes when the slices differ in length.
func (s *MembershipStore) AssignRoles(ctx context.Context, module common.Address, roleIDs []uint16, memberOf []bool) error {
	if len(roleIDs) != len(memberOf) {
		return fmt.Errorf("%w: roles=%d memberOf=%d", roles.ErrArraysDifferentLength, len(roleIDs), len(memberOf))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.memberForWrite(module)
	for i, id := range roleIDs {
		if memberOf[i] {
			m.roles[id] = struct{}{}
		} else {
			delete(m.roles, id)
		}
	}
	s.dropIfEmpty(module, m)
	return nil
}

// SetDefaultRole sets the role used when module executes without naming one.
func (s *MembershipStore) SetDefaultRole(ctx context.Context, module common.Address, role uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.memberForWrite(module)
	m.defaultRole = role
	m.hasDefault = true
	return nil
}

// IsMember reports whether module holds role.
func (s *MembershipStore) IsMember(ctx context.Context, module common.Address, role uint16) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[module]
	if !ok {
		return false, nil
	}
	_, held := m.roles[role]
	return held, nil
}

// DefaultRole returns the default role of module, if one is set.
func (s *MembershipStore) DefaultRole(ctx context.Context, module common.Address) (uint16, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[module]
	if !ok || !m.hasDefault {
		return 0, false, nil
	}
	return m.defaultRole, true, nil
}

// List returns every module with a role or a default role, ordered by
// address. Role ids are ascending.
func (s *MembershipStore) List(ctx context.Context) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Membership, 0, len(s.members))
	for addr, m := range s.members {
		ids := make([]uint16, 0, len(m.roles))
		for id := range m.roles {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		result = append(result, Membership{
			Module:      addr,
			Roles:       ids,
			DefaultRole: m.defaultRole,
			HasDefault:  m.hasDefault,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Module[:], result[j].Module[:]) < 0
	})
	return result, nil
}

// Reset drops every membership.
func (s *MembershipStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = make(map[common.Address]*member)
}

func (s *MembershipStore) memberForWrite(module common.Address) *member {
	m, ok := s.members[module]
	if !ok {
		m = &member{roles: make(map[uint16]struct{})}
		s.members[module] = m
	}
	return m
}

func (s *MembershipStore) dropIfEmpty(module common.Address, m *member) {
	if len(m.roles) == 0 && !m.hasDefault {
		delete(s.members, module)
	}
}

// Compile-time interface verification.
var _ roles.MembershipOracle = (*MembershipStore)(nil)
