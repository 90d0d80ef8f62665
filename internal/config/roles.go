package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Sentinel-Gate/rolegate/internal/domain/roles"
)

// MultisendAddress returns the configured multisend address, or the zero
// address when batch expansion is disabled.
func (m ModifierConfig) MultisendAddress() common.Address {
	if m.Multisend == "" {
		return common.Address{}
	}
	return common.HexToAddress(m.Multisend)
}

// ToRole builds the role described by r through the same mutations the
// admin API uses, so seeded roles obey every configuration rule.
func (r RoleConfig) ToRole() (*roles.Role, error) {
	role := roles.NewRole(r.ID)
	for i, t := range r.Targets {
		if err := applyTarget(role, t); err != nil {
			return nil, fmt.Errorf("role %d target %d (%s): %w", r.ID, i, t.Address, err)
		}
	}
	return role, nil
}

func applyTarget(role *roles.Role, t TargetConfig) error {
	addr := common.HexToAddress(t.Address)
	options, err := roles.ParseExecutionOptions(t.Options)
	if err != nil {
		return err
	}

	switch t.Clearance {
	case "none":
		role.RevokeTarget(addr)
		return nil
	case "target":
		return role.AllowTarget(addr, options)
	case "function":
		role.ScopeTarget(addr)
	default:
		return fmt.Errorf("unknown clearance %q", t.Clearance)
	}

	for _, fn := range t.Functions {
		sel, err := fn.selector()
		if err != nil {
			return err
		}
		fnOptions, err := roles.ParseExecutionOptions(fn.Options)
		if err != nil {
			return err
		}
		if err := role.ScopeAllowFunction(addr, sel, fnOptions); err != nil {
			return fmt.Errorf("function %s: %w", sel, err)
		}
		for _, p := range fn.Parameters {
			if err := applyParameter(role, addr, sel, p); err != nil {
				return fmt.Errorf("function %s parameter %d: %w", sel, p.Index, err)
			}
		}
	}
	return nil
}

func applyParameter(role *roles.Role, addr common.Address, sel roles.Selector, p ParameterConfig) error {
	typ, err := roles.ParseParameterType(p.Type)
	if err != nil {
		return err
	}
	comp, err := roles.ParseComparison(p.Comparison)
	if err != nil {
		return err
	}
	values, err := DecodeCompValues(typ, p.Values)
	if err != nil {
		return err
	}
	if comp == roles.OneOf {
		return role.ScopeParameterAsOneOf(addr, sel, p.Index, typ, values)
	}
	return role.ScopeParameter(addr, sel, p.Index, typ, comp, values[0])
}

// selector returns the configured selector, deriving it from the
// signature when needed.
func (f FunctionConfig) selector() (roles.Selector, error) {
	if f.Signature != "" {
		return SignatureSelector(f.Signature), nil
	}
	return roles.ParseSelector(f.Selector)
}

// SignatureSelector returns the first four bytes of keccak256(signature).
func SignatureSelector(signature string) roles.Selector {
	var sel roles.Selector
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// DecodeCompValues decodes 0x-prefixed hex comparison values. Static
// values shorter than a word are left-padded to 32 bytes, so "0x64" means
// the uint256 100.
func DecodeCompValues(typ roles.ParameterType, values []string) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		raw, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if typ == roles.Static && len(raw) < 32 {
			raw = common.LeftPadBytes(raw, 32)
		}
		out[i] = raw
	}
	return out, nil
}
