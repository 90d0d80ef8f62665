package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
)

// MembershipService grants roles to modules and persists the result.
type MembershipService struct {
	store     *memory.MembershipStore
	persister *StatePersister
	recorder  Recorder
	events    EventSink
	logger    *slog.Logger
	mu        sync.Mutex
}

// NewMembershipService creates a new MembershipService. persister and
// recorder may be nil.
func NewMembershipService(
	store *memory.MembershipStore,
	persister *StatePersister,
	recorder Recorder,
	logger *slog.Logger,
	opts ...AdminOption,
) *MembershipService {
	o := applyAdminOptions(opts)
	return &MembershipService{
		store:     store,
		persister: persister,
		recorder:  recorderOrNop(recorder),
		events:    o.events,
		logger:    logger,
	}
}

// AssignRoles grants (memberOf[i] true) or revokes roleIDs[i] for module.
func (s *MembershipService) AssignRoles(ctx context.Context, module common.Address, roleIDs []uint16, memberOf []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.AssignRoles(ctx, module, roleIDs, memberOf); err != nil {
		s.recorder.AdminMutation("assign_roles", "rejected")
		return err
	}
	if err := s.persist(ctx); err != nil {
		s.recorder.AdminMutation("assign_roles", "error")
		s.logger.Error("failed to persist state after role assignment", "module", module.Hex(), "error", err)
		return fmt.Errorf("persist state: %w", err)
	}

	s.recorder.AdminMutation("assign_roles", "ok")
	s.logger.Info("roles assigned", "module", module.Hex(), "roles", roleIDs, "member_of", memberOf)
	s.events.Emit(ctx, audit.Record{
		Kind:    audit.KindMembership,
		Event:   "assign_roles",
		Module:  module.Hex(),
		Details: map[string]any{"roles": roleIDs, "member_of": memberOf},
	})
	return nil
}

// SetDefaultRole sets the role module uses when it names none.
func (s *MembershipService) SetDefaultRole(ctx context.Context, module common.Address, role uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetDefaultRole(ctx, module, role); err != nil {
		s.recorder.AdminMutation("set_default_role", "error")
		return err
	}
	if err := s.persist(ctx); err != nil {
		s.recorder.AdminMutation("set_default_role", "error")
		s.logger.Error("failed to persist state after default role change", "module", module.Hex(), "error", err)
		return fmt.Errorf("persist state: %w", err)
	}

	s.recorder.AdminMutation("set_default_role", "ok")
	s.logger.Info("default role set", "module", module.Hex(), "role", role)
	s.events.Emit(ctx, audit.Record{
		Kind:   audit.KindMembership,
		Event:  "set_default_role",
		Role:   audit.RoleID(role),
		Module: module.Hex(),
	})
	return nil
}

// List returns every membership ordered by module address.
func (s *MembershipService) List(ctx context.Context) ([]memory.Membership, error) {
	return s.store.List(ctx)
}

// Get returns the membership of module. A module without roles returns an
// empty membership.
func (s *MembershipService) Get(ctx context.Context, module common.Address) (memory.Membership, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return memory.Membership{}, err
	}
	for _, m := range all {
		if m.Module == module {
			return m, nil
		}
	}
	return memory.Membership{Module: module, Roles: []uint16{}}, nil
}

// LoadFromState restores memberships from appState.
func (s *MembershipService) LoadFromState(ctx context.Context, appState *state.AppState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range appState.Members {
		if err := s.apply(ctx, entry.Module, entry.Roles, entry.DefaultRole); err != nil {
			return err
		}
		s.logger.Info("loaded membership from state", "module", entry.Module, "roles", entry.Roles)
	}
	return nil
}

// SeedMembers applies configured memberships for modules not already
// present and persists the result.
func (s *MembershipService) SeedMembers(ctx context.Context, entries []state.MemberEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	present := make(map[common.Address]bool, len(existing))
	for _, m := range existing {
		present[m.Module] = true
	}

	seeded := 0
	for _, entry := range entries {
		if present[common.HexToAddress(entry.Module)] {
			s.logger.Debug("membership already in state, skipping seed", "module", entry.Module)
			continue
		}
		if err := s.apply(ctx, entry.Module, entry.Roles, entry.DefaultRole); err != nil {
			return err
		}
		seeded++
		s.logger.Info("seeded membership from config", "module", entry.Module, "roles", entry.Roles)
	}
	if seeded == 0 {
		return nil
	}
	return s.persist(ctx)
}

func (s *MembershipService) apply(ctx context.Context, moduleHex string, roleIDs []uint16, defaultRole *uint16) error {
	if !common.IsHexAddress(moduleHex) {
		return fmt.Errorf("invalid module address %q", moduleHex)
	}
	module := common.HexToAddress(moduleHex)

	memberOf := make([]bool, len(roleIDs))
	for i := range memberOf {
		memberOf[i] = true
	}
	if err := s.store.AssignRoles(ctx, module, roleIDs, memberOf); err != nil {
		return fmt.Errorf("assign roles to %s: %w", moduleHex, err)
	}
	if defaultRole != nil {
		if err := s.store.SetDefaultRole(ctx, module, *defaultRole); err != nil {
			return fmt.Errorf("set default role of %s: %w", moduleHex, err)
		}
	}
	return nil
}

// persist writes the members section of state.json from the store.
func (s *MembershipService) persist(ctx context.Context) error {
	members, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list members for persistence: %w", err)
	}
	entries := make([]state.MemberEntry, 0, len(members))
	for _, m := range members {
		entries = append(entries, MemberToEntry(m))
	}
	return s.persister.Update(func(st *state.AppState) error {
		st.Members = entries
		return nil
	})
}
