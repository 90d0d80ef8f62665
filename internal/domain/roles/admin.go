package roles

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// The methods below are the only way rule state changes. Each one validates
// all of its input before writing, so a returned error means r is
// unchanged.

// AllowTarget allows every function of target, gated by options. Stored
// function scopes stay in place but are not consulted.
func (r *Role) AllowTarget(target common.Address, options ExecutionOptions) error {
	if !options.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownExecutionOptions, options)
	}
	t := r.targetForWrite(target)
	t.Clearance = ClearanceTarget
	t.Options = options
	return nil
}

// RevokeTarget disallows target entirely.
func (r *Role) RevokeTarget(target common.Address) {
	t, ok := r.Targets[target]
	if !ok {
		return
	}
	t.Clearance = ClearanceNone
	t.Options = ExecNone
}

// ScopeTarget restricts target to explicitly allowed functions. Moving to
// function clearance from any other clearance starts from an empty function
// table, so rules from an earlier scope are never revived. Scoping an
// already scoped target changes nothing.
func (r *Role) ScopeTarget(target common.Address) {
	t := r.targetForWrite(target)
	if t.Clearance == ClearanceFunction {
		return
	}
	t.Clearance = ClearanceFunction
	t.Options = ExecNone
	t.Functions = make(map[Selector]*FunctionConfig)
}

// ScopeAllowFunction allows sel on a scoped target with the given options.
// Parameter rules already stored for sel keep applying.
func (r *Role) ScopeAllowFunction(target common.Address, sel Selector, options ExecutionOptions) error {
	if !options.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownExecutionOptions, options)
	}
	t, err := r.scopedTarget(target)
	if err != nil {
		return err
	}
	fn := t.function(sel)
	fn.Allowed = true
	fn.Options = options
	return nil
}

// ScopeRevokeFunction disallows sel on a scoped target. Other selectors are
// not affected.
func (r *Role) ScopeRevokeFunction(target common.Address, sel Selector) error {
	t, err := r.scopedTarget(target)
	if err != nil {
		return err
	}
	if fn, ok := t.Functions[sel]; ok {
		fn.Allowed = false
	}
	return nil
}

// ScopeFunction replaces the whole scope of sel: one entry per parameter
// position in each of scoped, types, comps and values, plus the execution
// options. The function ends up allowed.
func (r *Role) ScopeFunction(
	target common.Address,
	sel Selector,
	scoped []bool,
	types []ParameterType,
	comps []Comparison,
	values [][][]byte,
	options ExecutionOptions,
) error {
	n := len(scoped)
	if len(types) != n || len(comps) != n || len(values) != n {
		return fmt.Errorf("%w: scoped=%d types=%d comparisons=%d values=%d",
			ErrArraysDifferentLength, n, len(types), len(comps), len(values))
	}
	if n > MaxParameters {
		return fmt.Errorf("%w: %d parameters", ErrScopeMaxParametersExceeded, n)
	}
	if !options.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownExecutionOptions, options)
	}
	params := make([]ParamConfig, n)
	for i := range n {
		if !scoped[i] {
			continue
		}
		p, err := newParamConfig(types[i], comps[i], values[i])
		if err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		params[i] = p
	}
	t, err := r.scopedTarget(target)
	if err != nil {
		return err
	}

	t.Functions[sel] = &FunctionConfig{Allowed: true, Options: options, Parameters: params}
	return nil
}

// ScopeFunctionExecutionOptions sets the execution options of sel without
// touching its parameter rules or allowance.
func (r *Role) ScopeFunctionExecutionOptions(target common.Address, sel Selector, options ExecutionOptions) error {
	if !options.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownExecutionOptions, options)
	}
	t, err := r.scopedTarget(target)
	if err != nil {
		return err
	}
	t.function(sel).Options = options
	return nil
}

// ScopeParameter sets a single-value rule on one parameter of sel. Sibling
// parameters and the function's allowance are left as they are.
func (r *Role) ScopeParameter(
	target common.Address,
	sel Selector,
	index int,
	typ ParameterType,
	comp Comparison,
	value []byte,
) error {
	if comp == OneOf {
		return fmt.Errorf("%w: use ScopeParameterAsOneOf", ErrInvalidCompValues)
	}
	return r.setParameter(target, sel, index, typ, comp, [][]byte{value})
}

// ScopeParameterAsOneOf sets a membership rule on one parameter of sel.
func (r *Role) ScopeParameterAsOneOf(
	target common.Address,
	sel Selector,
	index int,
	typ ParameterType,
	values [][]byte,
) error {
	return r.setParameter(target, sel, index, typ, OneOf, values)
}

// UnscopeParameter removes the rule on one parameter of sel, so any value
// passes in that position. Clearing the last rule drops the parameter table.
func (r *Role) UnscopeParameter(target common.Address, sel Selector, index int) error {
	if index < 0 || index >= MaxParameters {
		return fmt.Errorf("%w: index %d", ErrScopeMaxParametersExceeded, index)
	}
	t, err := r.scopedTarget(target)
	if err != nil {
		return err
	}
	fn, ok := t.Functions[sel]
	if !ok || index >= len(fn.Parameters) {
		return nil
	}
	fn.Parameters[index] = ParamConfig{}
	if !fn.HasScopedParameters() {
		fn.Parameters = nil
	}
	return nil
}

func (r *Role) setParameter(
	target common.Address,
	sel Selector,
	index int,
	typ ParameterType,
	comp Comparison,
	values [][]byte,
) error {
	if index < 0 || index >= MaxParameters {
		return fmt.Errorf("%w: index %d", ErrScopeMaxParametersExceeded, index)
	}
	p, err := newParamConfig(typ, comp, values)
	if err != nil {
		return fmt.Errorf("parameter %d: %w", index, err)
	}
	t, err := r.scopedTarget(target)
	if err != nil {
		return err
	}

	fn := t.function(sel)
	if index >= len(fn.Parameters) {
		grown := make([]ParamConfig, index+1)
		copy(grown, fn.Parameters)
		fn.Parameters = grown
	}
	fn.Parameters[index] = p
	return nil
}

// newParamConfig validates a rule and returns a scoped slot holding copies
// of values.
func newParamConfig(typ ParameterType, comp Comparison, values [][]byte) (ParamConfig, error) {
	if !typ.Valid() {
		return ParamConfig{}, fmt.Errorf("%w: %d", ErrUnknownParameterType, typ)
	}
	if !comp.Valid() {
		return ParamConfig{}, fmt.Errorf("%w: %d", ErrUnknownComparison, comp)
	}
	if comp.IsRelative() && typ != Static {
		return ParamConfig{}, fmt.Errorf("%w: %s on %s", ErrUnsuitableRelativeComparison, comp, typ)
	}
	switch {
	case comp == OneOf && len(values) == 0:
		return ParamConfig{}, ErrNotEnoughCompValuesForOneOf
	case comp != OneOf && len(values) != 1:
		return ParamConfig{}, fmt.Errorf("%w: got %d", ErrInvalidCompValues, len(values))
	}
	copied := make([][]byte, len(values))
	for i, v := range values {
		if typ == Static && len(v) != wordSize {
			return ParamConfig{}, fmt.Errorf("%w: got %d", ErrUnsuitableStaticCompValueSize, len(v))
		}
		copied[i] = append([]byte{}, v...)
	}
	return ParamConfig{Scoped: true, Type: typ, Comparison: comp, CompValues: copied}, nil
}

func (r *Role) targetForWrite(addr common.Address) *TargetConfig {
	if r.Targets == nil {
		r.Targets = make(map[common.Address]*TargetConfig)
	}
	t, ok := r.Targets[addr]
	if !ok {
		t = &TargetConfig{}
		r.Targets[addr] = t
	}
	return t
}

func (r *Role) scopedTarget(addr common.Address) (*TargetConfig, error) {
	t := r.Target(addr)
	if t == nil || t.Clearance != ClearanceFunction {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrNotScoped)
	}
	if t.Functions == nil {
		t.Functions = make(map[Selector]*FunctionConfig)
	}
	return t, nil
}

func (t *TargetConfig) function(sel Selector) *FunctionConfig {
	fn, ok := t.Functions[sel]
	if !ok {
		fn = &FunctionConfig{}
		t.Functions[sel] = fn
	}
	return fn
}
