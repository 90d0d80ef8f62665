package service

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rolegate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// RoleToEntry converts a role to its state.json form. Targets, functions
// and parameters are ordered so equal roles produce equal entries. Targets
// with no clearance and no stored functions are left out.
func RoleToEntry(role *roles.Role) state.RoleEntry {
	entry := state.RoleEntry{ID: role.ID, Targets: []state.TargetEntry{}}

	addrs := make([]common.Address, 0, len(role.Targets))
	for addr, t := range role.Targets {
		if t.Clearance == roles.ClearanceNone && len(t.Functions) == 0 {
			continue
		}
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })

	for _, addr := range addrs {
		t := role.Targets[addr]
		te := state.TargetEntry{
			Address:   addr.Hex(),
			Clearance: t.Clearance.String(),
			Options:   t.Options.String(),
		}

		sels := make([]roles.Selector, 0, len(t.Functions))
		for sel := range t.Functions {
			sels = append(sels, sel)
		}
		sort.Slice(sels, func(i, j int) bool { return bytes.Compare(sels[i][:], sels[j][:]) < 0 })

		for _, sel := range sels {
			fn := t.Functions[sel]
			fe := state.FunctionEntry{
				Selector: sel.String(),
				Allowed:  fn.Allowed,
				Options:  fn.Options.String(),
			}
			for i, p := range fn.Parameters {
				if !p.Scoped {
					continue
				}
				values := make([]string, len(p.CompValues))
				for k, v := range p.CompValues {
					values[k] = hexutil.Encode(v)
				}
				fe.Parameters = append(fe.Parameters, state.ParameterEntry{
					Index:      i,
					Type:       p.Type.String(),
					Comparison: p.Comparison.String(),
					Values:     values,
				})
			}
			te.Functions = append(te.Functions, fe)
		}
		entry.Targets = append(entry.Targets, te)
	}
	return entry
}

// RoleFromEntry rebuilds a role from its state.json form using the same
// mutations the admin API uses, so a hand-edited file cannot introduce a
// rule the API would refuse.
func RoleFromEntry(entry state.RoleEntry) (*roles.Role, error) {
	role := roles.NewRole(entry.ID)
	for _, te := range entry.Targets {
		if err := restoreTarget(role, te); err != nil {
			return nil, fmt.Errorf("role %d target %s: %w", entry.ID, te.Address, err)
		}
	}
	return role, nil
}

func restoreTarget(role *roles.Role, te state.TargetEntry) error {
	if !common.IsHexAddress(te.Address) {
		return fmt.Errorf("invalid address %q", te.Address)
	}
	addr := common.HexToAddress(te.Address)

	clearance, err := roles.ParseClearance(te.Clearance)
	if err != nil {
		return err
	}
	options, err := roles.ParseExecutionOptions(te.Options)
	if err != nil {
		return err
	}

	// Functions are written while scoped; the final clearance is applied
	// afterwards and leaves them in place.
	if len(te.Functions) > 0 || clearance == roles.ClearanceFunction {
		role.ScopeTarget(addr)
	}
	for _, fe := range te.Functions {
		if err := restoreFunction(role, addr, fe); err != nil {
			return fmt.Errorf("function %s: %w", fe.Selector, err)
		}
	}

	switch clearance {
	case roles.ClearanceTarget:
		return role.AllowTarget(addr, options)
	case roles.ClearanceNone:
		role.RevokeTarget(addr)
	}
	return nil
}

func restoreFunction(role *roles.Role, addr common.Address, fe state.FunctionEntry) error {
	sel, err := roles.ParseSelector(fe.Selector)
	if err != nil {
		return err
	}
	options, err := roles.ParseExecutionOptions(fe.Options)
	if err != nil {
		return err
	}

	if fe.Allowed {
		err = role.ScopeAllowFunction(addr, sel, options)
	} else {
		err = role.ScopeFunctionExecutionOptions(addr, sel, options)
	}
	if err != nil {
		return err
	}

	for _, pe := range fe.Parameters {
		if err := restoreParameter(role, addr, sel, pe); err != nil {
			return fmt.Errorf("parameter %d: %w", pe.Index, err)
		}
	}
	return nil
}

func restoreParameter(role *roles.Role, addr common.Address, sel roles.Selector, pe state.ParameterEntry) error {
	typ, err := roles.ParseParameterType(pe.Type)
	if err != nil {
		return err
	}
	comp, err := roles.ParseComparison(pe.Comparison)
	if err != nil {
		return err
	}
	values := make([][]byte, len(pe.Values))
	for i, v := range pe.Values {
		if values[i], err = hexutil.Decode(v); err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
	}

	if comp == roles.OneOf {
		return role.ScopeParameterAsOneOf(addr, sel, pe.Index, typ, values)
	}
	if len(values) != 1 {
		return fmt.Errorf("%w: got %d", roles.ErrInvalidCompValues, len(values))
	}
	return role.ScopeParameter(addr, sel, pe.Index, typ, comp, values[0])
}

// MemberToEntry converts a membership to its state.json form.
func MemberToEntry(m memory.Membership) state.MemberEntry {
	entry := state.MemberEntry{
		Module: m.Module.Hex(),
		Roles:  append([]uint16{}, m.Roles...),
	}
	if m.HasDefault {
		role := m.DefaultRole
		entry.DefaultRole = &role
	}
	return entry
}

// replaceRoleEntry stores entry in appState, replacing the entry with the
// same id and keeping entries ordered by id.
func replaceRoleEntry(appState *state.AppState, entry state.RoleEntry) {
	for i := range appState.Roles {
		if appState.Roles[i].ID == entry.ID {
			appState.Roles[i] = entry
			return
		}
	}
	appState.Roles = append(appState.Roles, entry)
	sort.Slice(appState.Roles, func(i, j int) bool { return appState.Roles[i].ID < appState.Roles[j].ID })
}
