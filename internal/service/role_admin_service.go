package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/domain/audit"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// AdminOption configures RoleAdminService and MembershipService.
type AdminOption func(*adminOptions)

type adminOptions struct {
	events EventSink
}

// WithAdminEvents sets the sink that receives one event per successful
// mutation.
func WithAdminEvents(sink EventSink) AdminOption {
	return func(o *adminOptions) {
		o.events = sinkOrNop(sink)
	}
}

func applyAdminOptions(opts []AdminOption) adminOptions {
	o := adminOptions{events: nopSink{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RoleSnapshot is a role in its serialized form together with a
// fingerprint that changes whenever the role does.
type RoleSnapshot struct {
	Role state.RoleEntry
	ETag string
}

// RoleAdminService applies rule mutations to stored roles. Each mutation is
// validated on a private copy of the role, persisted to state.json and only
// then made visible to the authorizer, so a failed call changes nothing.
type RoleAdminService struct {
	store     roles.RuleStore
	persister *StatePersister
	recorder  Recorder
	events    EventSink
	logger    *slog.Logger
	mu        sync.Mutex // serializes mutations
}

// NewRoleAdminService creates a new RoleAdminService. persister and
// recorder may be nil.
func NewRoleAdminService(
	store roles.RuleStore,
	persister *StatePersister,
	recorder Recorder,
	logger *slog.Logger,
	opts ...AdminOption,
) *RoleAdminService {
	o := applyAdminOptions(opts)
	return &RoleAdminService{
		store:     store,
		persister: persister,
		recorder:  recorderOrNop(recorder),
		events:    o.events,
		logger:    logger,
	}
}

// GetRole returns a copy of role id. Unknown ids return an empty role.
func (s *RoleAdminService) GetRole(ctx context.Context, id uint16) (*roles.Role, error) {
	return s.store.GetRole(ctx, id)
}

// ListRoles returns every stored role ordered by id.
func (s *RoleAdminService) ListRoles(ctx context.Context) ([]*roles.Role, error) {
	return s.store.ListRoles(ctx)
}

// Snapshot returns role id in serialized form with its ETag.
func (s *RoleAdminService) Snapshot(ctx context.Context, id uint16) (*RoleSnapshot, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get role %d: %w", id, err)
	}
	entry := RoleToEntry(role)
	etag, err := fingerprint(entry)
	if err != nil {
		return nil, err
	}
	return &RoleSnapshot{Role: entry, ETag: etag}, nil
}

// fingerprint hashes the canonical JSON form of entry.
func fingerprint(entry state.RoleEntry) (string, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal role %d: %w", entry.ID, err)
	}
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(data)), nil
}

// AllowTarget allows every function of target for the role.
func (s *RoleAdminService) AllowTarget(ctx context.Context, roleID uint16, target common.Address, options roles.ExecutionOptions) error {
	return s.mutate(ctx, "allow_target", roleID, func(r *roles.Role) error {
		return r.AllowTarget(target, options)
	}, "target", target.Hex(), "options", options.String())
}

// RevokeTarget disallows target for the role.
func (s *RoleAdminService) RevokeTarget(ctx context.Context, roleID uint16, target common.Address) error {
	return s.mutate(ctx, "revoke_target", roleID, func(r *roles.Role) error {
		r.RevokeTarget(target)
		return nil
	}, "target", target.Hex())
}

// ScopeTarget restricts target to explicitly allowed functions.
func (s *RoleAdminService) ScopeTarget(ctx context.Context, roleID uint16, target common.Address) error {
	return s.mutate(ctx, "scope_target", roleID, func(r *roles.Role) error {
		r.ScopeTarget(target)
		return nil
	}, "target", target.Hex())
}

// ScopeAllowFunction allows sel on a scoped target.
func (s *RoleAdminService) ScopeAllowFunction(ctx context.Context, roleID uint16, target common.Address, sel roles.Selector, options roles.ExecutionOptions) error {
	return s.mutate(ctx, "scope_allow_function", roleID, func(r *roles.Role) error {
		return r.ScopeAllowFunction(target, sel, options)
	}, "target", target.Hex(), "selector", sel.String(), "options", options.String())
}

// ScopeRevokeFunction disallows sel on a scoped target.
func (s *RoleAdminService) ScopeRevokeFunction(ctx context.Context, roleID uint16, target common.Address, sel roles.Selector) error {
	return s.mutate(ctx, "scope_revoke_function", roleID, func(r *roles.Role) error {
		return r.ScopeRevokeFunction(target, sel)
	}, "target", target.Hex(), "selector", sel.String())
}

// ScopeFunction replaces the whole scope of sel in one step.
func (s *RoleAdminService) ScopeFunction(
	ctx context.Context,
	roleID uint16,
	target common.Address,
	sel roles.Selector,
	scoped []bool,
	types []roles.ParameterType,
	comps []roles.Comparison,
	values [][][]byte,
	options roles.ExecutionOptions,
) error {
	return s.mutate(ctx, "scope_function", roleID, func(r *roles.Role) error {
		return r.ScopeFunction(target, sel, scoped, types, comps, values, options)
	}, "target", target.Hex(), "selector", sel.String(), "parameters", len(scoped), "options", options.String())
}

// ScopeFunctionExecutionOptions sets the execution options of sel.
func (s *RoleAdminService) ScopeFunctionExecutionOptions(ctx context.Context, roleID uint16, target common.Address, sel roles.Selector, options roles.ExecutionOptions) error {
	return s.mutate(ctx, "scope_function_options", roleID, func(r *roles.Role) error {
		return r.ScopeFunctionExecutionOptions(target, sel, options)
	}, "target", target.Hex(), "selector", sel.String(), "options", options.String())
}

// ScopeParameter sets a single-value rule on one parameter of sel.
func (s *RoleAdminService) ScopeParameter(
	ctx context.Context,
	roleID uint16,
	target common.Address,
	sel roles.Selector,
	index int,
	typ roles.ParameterType,
	comp roles.Comparison,
	value []byte,
) error {
	return s.mutate(ctx, "scope_parameter", roleID, func(r *roles.Role) error {
		return r.ScopeParameter(target, sel, index, typ, comp, value)
	}, "target", target.Hex(), "selector", sel.String(), "index", index, "type", typ.String(), "comparison", comp.String())
}

// ScopeParameterAsOneOf sets a membership rule on one parameter of sel.
func (s *RoleAdminService) ScopeParameterAsOneOf(
	ctx context.Context,
	roleID uint16,
	target common.Address,
	sel roles.Selector,
	index int,
	typ roles.ParameterType,
	values [][]byte,
) error {
	return s.mutate(ctx, "scope_parameter_oneof", roleID, func(r *roles.Role) error {
		return r.ScopeParameterAsOneOf(target, sel, index, typ, values)
	}, "target", target.Hex(), "selector", sel.String(), "index", index, "type", typ.String(), "values", len(values))
}

// UnscopeParameter removes the rule on one parameter of sel.
func (s *RoleAdminService) UnscopeParameter(ctx context.Context, roleID uint16, target common.Address, sel roles.Selector, index int) error {
	return s.mutate(ctx, "unscope_parameter", roleID, func(r *roles.Role) error {
		return r.UnscopeParameter(target, sel, index)
	}, "target", target.Hex(), "selector", sel.String(), "index", index)
}

// mutate runs fn on a copy of role roleID, persists the result and then
// stores it. attrs are logged with the mutation.
func (s *RoleAdminService) mutate(ctx context.Context, op string, roleID uint16, fn func(*roles.Role) error, attrs ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		s.recorder.AdminMutation(op, "error")
		return fmt.Errorf("get role %d: %w", roleID, err)
	}

	if err := fn(role); err != nil {
		s.recorder.AdminMutation(op, "rejected")
		s.logger.Debug("role mutation rejected",
			append([]any{"op", op, "role", roleID, "error", err}, attrs...)...)
		return err
	}

	entry := RoleToEntry(role)
	if err := s.persister.Update(func(st *state.AppState) error {
		replaceRoleEntry(st, entry)
		return nil
	}); err != nil {
		s.recorder.AdminMutation(op, "error")
		s.logger.Error("failed to persist state after role mutation", "op", op, "role", roleID, "error", err)
		return fmt.Errorf("persist state: %w", err)
	}

	if err := s.store.SaveRole(ctx, role); err != nil {
		s.recorder.AdminMutation(op, "error")
		return fmt.Errorf("save role %d: %w", roleID, err)
	}

	s.recorder.AdminMutation(op, "ok")
	s.logger.Info("role updated", append([]any{"op", op, "role", roleID}, attrs...)...)
	s.events.Emit(ctx, mutationRecord(op, roleID, attrs))
	return nil
}

// mutationRecord turns the key/value attrs of a mutation into an event.
// target and selector get their own fields; the rest go to Details.
func mutationRecord(op string, roleID uint16, attrs []any) audit.Record {
	rec := audit.Record{
		Kind:  audit.KindRole,
		Event: op,
		Role:  audit.RoleID(roleID),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		switch key {
		case "target":
			rec.Target, _ = attrs[i+1].(string)
		case "selector":
			rec.Selector, _ = attrs[i+1].(string)
		default:
			if rec.Details == nil {
				rec.Details = make(map[string]any)
			}
			rec.Details[key] = attrs[i+1]
		}
	}
	return rec
}

// LoadFromState loads every role in appState into the store. A role that
// fails to rebuild is logged and skipped; the remaining roles still load.
func (s *RoleAdminService) LoadFromState(ctx context.Context, appState *state.AppState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, entry := range appState.Roles {
		role, err := RoleFromEntry(entry)
		if err != nil {
			s.logger.Error("failed to load role from state", "role", entry.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := s.store.SaveRole(ctx, role); err != nil {
			return fmt.Errorf("save role %d: %w", entry.ID, err)
		}
		s.logger.Info("loaded role from state", "role", entry.ID, "targets", len(entry.Targets))
	}
	return errors.Join(errs...)
}

// SeedRoles stores configured roles that are not already present, then
// persists them. Roles loaded from state.json win over configuration.
func (s *RoleAdminService) SeedRoles(ctx context.Context, seeds []*roles.Role) error {
	if len(seeds) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	present := make(map[uint16]bool, len(existing))
	for _, r := range existing {
		present[r.ID] = true
	}

	var seeded []state.RoleEntry
	for _, role := range seeds {
		if present[role.ID] {
			s.logger.Debug("role already in state, skipping seed", "role", role.ID)
			continue
		}
		if err := s.store.SaveRole(ctx, role); err != nil {
			return fmt.Errorf("save role %d: %w", role.ID, err)
		}
		seeded = append(seeded, RoleToEntry(role))
		s.logger.Info("seeded role from config", "role", role.ID, "targets", len(role.Targets))
	}
	if len(seeded) == 0 {
		return nil
	}

	return s.persister.Update(func(st *state.AppState) error {
		for _, entry := range seeded {
			replaceRoleEntry(st, entry)
		}
		return nil
	})
}
