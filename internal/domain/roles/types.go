// Package roles contains the permission model for calls forwarded to an
// avatar account, and the decision procedure that accepts or rejects them.
package roles

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxParameters is the highest number of parameter slots a function scope
// may carry.
const MaxParameters = 48

// Clearance is the access level a role has on a target address.
type Clearance uint8

const (
	// ClearanceNone means no call to the target is allowed.
	ClearanceNone Clearance = iota
	// ClearanceTarget means every function of the target is allowed,
	// subject only to the target's execution options.
	ClearanceTarget
	// ClearanceFunction means only explicitly allowed functions are
	// permitted, each with its own execution options and parameter rules.
	ClearanceFunction
)

// String returns the clearance name used in logs and the admin API.
func (c Clearance) String() string {
	switch c {
	case ClearanceNone:
		return "none"
	case ClearanceTarget:
		return "target"
	case ClearanceFunction:
		return "function"
	default:
		return fmt.Sprintf("clearance(%d)", uint8(c))
	}
}

// ParseClearance parses the name produced by Clearance.String.
func ParseClearance(s string) (Clearance, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ClearanceNone, nil
	case "target":
		return ClearanceTarget, nil
	case "function":
		return ClearanceFunction, nil
	}
	return ClearanceNone, fmt.Errorf("%w: %q", ErrUnknownClearance, s)
}

// ExecutionOptions gates value transfer and delegatecall execution.
type ExecutionOptions uint8

const (
	ExecNone ExecutionOptions = iota
	ExecSend
	ExecDelegateCall
	ExecBoth
)

// CanSend reports whether calls carrying a nonzero value are allowed.
func (o ExecutionOptions) CanSend() bool {
	return o == ExecSend || o == ExecBoth
}

// CanDelegateCall reports whether delegatecall execution is allowed.
func (o ExecutionOptions) CanDelegateCall() bool {
	return o == ExecDelegateCall || o == ExecBoth
}

// Valid reports whether o is one of the defined options.
func (o ExecutionOptions) Valid() bool {
	return o <= ExecBoth
}

// String returns the option name.
func (o ExecutionOptions) String() string {
	switch o {
	case ExecNone:
		return "none"
	case ExecSend:
		return "send"
	case ExecDelegateCall:
		return "delegatecall"
	case ExecBoth:
		return "both"
	default:
		return fmt.Sprintf("options(%d)", uint8(o))
	}
}

// ParseExecutionOptions parses the name produced by ExecutionOptions.String.
// An empty string means ExecNone.
func ParseExecutionOptions(s string) (ExecutionOptions, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return ExecNone, nil
	case "send":
		return ExecSend, nil
	case "delegatecall":
		return ExecDelegateCall, nil
	case "both":
		return ExecBoth, nil
	}
	return ExecNone, fmt.Errorf("%w: %q", ErrUnknownExecutionOptions, s)
}

// ParameterType is the storage shape of an ABI-encoded parameter.
type ParameterType uint8

const (
	// Static is a single 32-byte word stored in the parameter's head slot.
	Static ParameterType = iota
	// Dynamic is a length-prefixed byte payload referenced by an offset.
	Dynamic
	// Dynamic32 is a length-prefixed array of 32-byte words referenced by
	// an offset.
	Dynamic32
)

// Valid reports whether t is a defined parameter type.
func (t ParameterType) Valid() bool {
	return t <= Dynamic32
}

// String returns the parameter type name.
func (t ParameterType) String() string {
	switch t {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	case Dynamic32:
		return "dynamic32"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseParameterType parses the name produced by ParameterType.String.
func ParseParameterType(s string) (ParameterType, error) {
	switch strings.ToLower(s) {
	case "static":
		return Static, nil
	case "dynamic":
		return Dynamic, nil
	case "dynamic32":
		return Dynamic32, nil
	}
	return Static, fmt.Errorf("%w: %q", ErrUnknownParameterType, s)
}

// Comparison is the operator a scoped parameter is checked with.
type Comparison uint8

const (
	EqualTo Comparison = iota
	GreaterThan
	LessThan
	OneOf
)

// Valid reports whether c is a defined comparison.
func (c Comparison) Valid() bool {
	return c <= OneOf
}

// IsRelative reports whether c orders values instead of matching them.
func (c Comparison) IsRelative() bool {
	return c == GreaterThan || c == LessThan
}

// String returns the comparison name.
func (c Comparison) String() string {
	switch c {
	case EqualTo:
		return "eq"
	case GreaterThan:
		return "gt"
	case LessThan:
		return "lt"
	case OneOf:
		return "oneof"
	default:
		return fmt.Sprintf("comparison(%d)", uint8(c))
	}
}

// ParseComparison parses the name produced by Comparison.String.
func ParseComparison(s string) (Comparison, error) {
	switch strings.ToLower(s) {
	case "eq", "equal", "equalto":
		return EqualTo, nil
	case "gt", "greaterthan":
		return GreaterThan, nil
	case "lt", "lessthan":
		return LessThan, nil
	case "oneof":
		return OneOf, nil
	}
	return EqualTo, fmt.Errorf("%w: %q", ErrUnknownComparison, s)
}

// Operation is the execution mode the avatar uses for a call.
type Operation uint8

const (
	Call Operation = iota
	DelegateCall
)

// String returns "call" or "delegatecall".
func (op Operation) String() string {
	if op == DelegateCall {
		return "delegatecall"
	}
	return "call"
}

// ParseOperation parses "call", "delegatecall", "0" or "1".
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(s) {
	case "", "call", "0":
		return Call, nil
	case "delegatecall", "1":
		return DelegateCall, nil
	}
	return Call, fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// Selector is the leading four bytes of calldata identifying a function.
type Selector [4]byte

// String returns the 0x-prefixed hex form.
func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// ParseSelector parses a 0x-prefixed (or bare) 8 hex digit selector.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil || len(raw) != len(sel) {
		return sel, fmt.Errorf("%w: %q", ErrInvalidSelector, s)
	}
	copy(sel[:], raw)
	return sel, nil
}

// ParamConfig is the rule for one parameter slot of a function.
type ParamConfig struct {
	Scoped     bool
	Type       ParameterType
	Comparison Comparison
	// CompValues holds exactly one value except for OneOf.
	CompValues [][]byte
}

// FunctionConfig is the scope of one selector on a Function-cleared target.
type FunctionConfig struct {
	Allowed bool
	Options ExecutionOptions
	// Parameters is indexed by parameter position. Unscoped slots are
	// skipped during checks.
	Parameters []ParamConfig
}

// HasScopedParameters reports whether any slot carries a rule.
func (f *FunctionConfig) HasScopedParameters() bool {
	for _, p := range f.Parameters {
		if p.Scoped {
			return true
		}
	}
	return false
}

// TargetConfig is the configuration of one target address within a role.
type TargetConfig struct {
	Clearance Clearance
	// Options applies while Clearance is ClearanceTarget.
	Options   ExecutionOptions
	Functions map[Selector]*FunctionConfig
}

// Role is a bundle of permission rules identified by a numeric id.
// Targets never mentioned are ClearanceNone.
type Role struct {
	ID      uint16
	Targets map[common.Address]*TargetConfig
}

// NewRole returns an empty role.
func NewRole(id uint16) *Role {
	return &Role{ID: id, Targets: make(map[common.Address]*TargetConfig)}
}

// Target returns the configuration stored for addr, or nil.
func (r *Role) Target(addr common.Address) *TargetConfig {
	if r == nil {
		return nil
	}
	return r.Targets[addr]
}

// Clone returns a deep copy of r.
func (r *Role) Clone() *Role {
	out := NewRole(r.ID)
	for addr, t := range r.Targets {
		out.Targets[addr] = t.clone()
	}
	return out
}

func (t *TargetConfig) clone() *TargetConfig {
	out := &TargetConfig{Clearance: t.Clearance, Options: t.Options}
	if t.Functions != nil {
		out.Functions = make(map[Selector]*FunctionConfig, len(t.Functions))
		for sel, f := range t.Functions {
			out.Functions[sel] = f.clone()
		}
	}
	return out
}

func (f *FunctionConfig) clone() *FunctionConfig {
	out := &FunctionConfig{Allowed: f.Allowed, Options: f.Options}
	if f.Parameters != nil {
		out.Parameters = make([]ParamConfig, len(f.Parameters))
		for i, p := range f.Parameters {
			out.Parameters[i] = p.clone()
		}
	}
	return out
}

func (p ParamConfig) clone() ParamConfig {
	out := p
	if p.CompValues != nil {
		out.CompValues = make([][]byte, len(p.CompValues))
		for i, v := range p.CompValues {
			out.CompValues[i] = bytes.Clone(v)
		}
	}
	return out
}

// Transaction is a call the avatar is asked to perform.
type Transaction struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
}

// hasValue reports whether the transaction transfers a nonzero value.
func (tx Transaction) hasValue() bool {
	return tx.Value != nil && tx.Value.Sign() > 0
}
