package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/config"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
	"github.com/Sentinel-Gate/rolegate/internal/service"
)

// ruleSet holds the stores and admin services built from state.json and
// the configured seeds.
type ruleSet struct {
	roleStore   *memory.RoleStore
	memberStore *memory.MembershipStore
	roleAdmin   *service.RoleAdminService
	members     *service.MembershipService
}

// loadRuleSet restores roles and memberships from appState and then applies
// the config seeds. With a nil persister nothing is written back, which is
// how the offline commands run.
func loadRuleSet(
	ctx context.Context,
	cfg *config.Config,
	appState *state.AppState,
	persister *service.StatePersister,
	recorder service.Recorder,
	logger *slog.Logger,
	opts ...service.AdminOption,
) (*ruleSet, error) {
	rs := &ruleSet{
		roleStore:   memory.NewRoleStore(),
		memberStore: memory.NewMembershipStore(),
	}
	rs.roleAdmin = service.NewRoleAdminService(rs.roleStore, persister, recorder, logger, opts...)
	rs.members = service.NewMembershipService(rs.memberStore, persister, recorder, logger, opts...)

	if err := rs.roleAdmin.LoadFromState(ctx, appState); err != nil {
		logger.Warn("some roles in state could not be loaded", "error", err)
	}
	if err := rs.members.LoadFromState(ctx, appState); err != nil {
		logger.Warn("some memberships in state could not be loaded", "error", err)
	}

	seeds, err := seedRoles(cfg.Roles)
	if err != nil {
		return nil, err
	}
	if err := rs.roleAdmin.SeedRoles(ctx, seeds); err != nil {
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	if err := rs.members.SeedMembers(ctx, seedMembers(cfg.Members)); err != nil {
		return nil, fmt.Errorf("seed members: %w", err)
	}
	return rs, nil
}

func seedRoles(cfgs []config.RoleConfig) ([]*roles.Role, error) {
	seeds := make([]*roles.Role, 0, len(cfgs))
	for _, rc := range cfgs {
		role, err := rc.ToRole()
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, role)
	}
	return seeds, nil
}

func seedMembers(cfgs []config.MemberConfig) []state.MemberEntry {
	entries := make([]state.MemberEntry, 0, len(cfgs))
	for _, mc := range cfgs {
		entries = append(entries, state.MemberEntry{
			Module:      mc.Module,
			Roles:       mc.Roles,
			DefaultRole: mc.DefaultRole,
		})
	}
	return entries
}

// loadOfflineConfig reads config and state for commands that do not start
// the server. A missing config file is fine; state alone is used then.
func loadOfflineConfig() (*config.Config, *state.AppState, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	appState, err := state.NewFileStateStore(resolveStatePath(), slog.New(slog.DiscardHandler)).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load state: %w", err)
	}
	return cfg, appState, nil
}
