package roles

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxMultisendDepth expands the outer multisend batch only; a batch
// nested inside it is rejected.
const DefaultMaxMultisendDepth = 1

// Authorizer decides whether a role may have the avatar perform a
// transaction. It holds no rule state; roles are passed to Check.
type Authorizer struct {
	multisend common.Address
	maxDepth  int
}

// NewAuthorizer returns an Authorizer that expands calls to multisend into
// their sub-calls, up to maxDepth nested batches. The zero address disables
// multisend expansion; maxDepth below 1 means DefaultMaxMultisendDepth.
func NewAuthorizer(multisend common.Address, maxDepth int) *Authorizer {
	if maxDepth < 1 {
		maxDepth = DefaultMaxMultisendDepth
	}
	return &Authorizer{multisend: multisend, maxDepth: maxDepth}
}

// Multisend returns the configured multisend address.
func (a *Authorizer) Multisend() common.Address { return a.multisend }

// Check is a convenience wrapper around Authorizer.Check with the default
// nesting depth.
func Check(role *Role, multisend common.Address, tx Transaction) error {
	return NewAuthorizer(multisend, DefaultMaxMultisendDepth).Check(role, tx)
}

// Check returns nil when role permits tx, otherwise the rejection. A nil
// role permits nothing. Check never mutates role.
//
// Evaluation:
//  1. A call to the multisend address is unpacked and every sub-call is
//     checked on its own; the first rejection rejects the batch.
//  2. Target clearance none rejects.
//  3. Target clearance target checks execution options only.
//  4. Target clearance function looks up the selector, checks the
//     function's execution options, then every scoped parameter.
func (a *Authorizer) Check(role *Role, tx Transaction) error {
	return a.check(role, tx, 0)
}

func (a *Authorizer) check(role *Role, tx Transaction, depth int) error {
	if a.isMultisend(tx.To) {
		if depth >= a.maxDepth {
			return fmt.Errorf("depth %d: %w", depth+1, ErrMultisendDepthExceeded)
		}
		txs, err := UnpackMultisend(tx.Data)
		if err != nil {
			return err
		}
		for i, sub := range txs {
			if err := a.check(role, sub, depth+1); err != nil {
				return fmt.Errorf("multisend transaction %d: %w", i, err)
			}
		}
		return nil
	}
	return checkTransaction(role, tx)
}

func (a *Authorizer) isMultisend(to common.Address) bool {
	return a.multisend != (common.Address{}) && to == a.multisend
}

func checkTransaction(role *Role, tx Transaction) error {
	target := role.Target(tx.To)
	if target == nil {
		return ErrTargetAddressNotAllowed
	}

	switch target.Clearance {
	case ClearanceTarget:
		return checkExecutionOptions(tx, target.Options)
	case ClearanceFunction:
		sel, err := SelectorOf(tx.Data)
		if err != nil {
			return err
		}
		fn := target.Functions[sel]
		if fn == nil || !fn.Allowed {
			return fmt.Errorf("%s: %w", sel, ErrFunctionNotAllowed)
		}
		if err := checkExecutionOptions(tx, fn.Options); err != nil {
			return err
		}
		return checkParameters(fn, tx.Data)
	default:
		return ErrTargetAddressNotAllowed
	}
}

func checkExecutionOptions(tx Transaction, options ExecutionOptions) error {
	if tx.hasValue() && !options.CanSend() {
		return ErrSendNotAllowed
	}
	if tx.Operation == DelegateCall && !options.CanDelegateCall() {
		return ErrDelegateCallNotAllowed
	}
	return nil
}

func checkParameters(fn *FunctionConfig, data []byte) error {
	for i, p := range fn.Parameters {
		if !p.Scoped {
			continue
		}
		value, err := PluckParameter(data, i, p.Type)
		if err != nil {
			return err
		}
		if err := Compare(value, p); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return nil
}
