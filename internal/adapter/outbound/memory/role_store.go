// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// RoleStore implements roles.RuleStore with an in-memory map.
// Thread-safe for concurrent access. Roles go in and come out as deep
// copies, so callers never share rule state with the store.
type RoleStore struct {
	roles map[uint16]*roles.Role
	mu    sync.RWMutex
}

// NewRoleStore creates an empty role store.
func NewRoleStore() *RoleStore {
	return &RoleStore{
		roles: make(map[uint16]*roles.Role),
	}
}

// GetRole returns a copy of the role. Unknown ids yield an empty role.
func (s *RoleStore) GetRole(ctx context.Context, id uint16) (*roles.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return roles.NewRole(id), nil
	}
	return r.Clone(), nil
}

// SaveRole stores a copy of role, replacing any previous rules.
func (s *RoleStore) SaveRole(ctx context.Context, role *roles.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles[role.ID] = role.Clone()
	return nil
}

// ListRoles returns copies of all stored roles ordered by id.
func (s *RoleStore) ListRoles(ctx context.Context) ([]*roles.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*roles.Role, 0, len(s.roles))
	for _, r := range s.roles {
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Reset drops every stored role.
func (s *RoleStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = make(map[uint16]*roles.Role)
}

// Compile-time interface verification.
var _ roles.RuleStore = (*RoleStore)(nil)
