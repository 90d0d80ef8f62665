package roles

import "errors"

// Rejections returned by Check.
var (
	ErrTargetAddressNotAllowed     = errors.New("target address is not allowed")
	ErrFunctionNotAllowed          = errors.New("function is not allowed")
	ErrFunctionSignatureTooShort   = errors.New("function signature too short")
	ErrSendNotAllowed              = errors.New("sending value is not allowed")
	ErrDelegateCallNotAllowed      = errors.New("delegatecall is not allowed")
	ErrParameterNotAllowed         = errors.New("parameter is not allowed")
	ErrParameterLessThanAllowed    = errors.New("parameter is less than allowed")
	ErrParameterGreaterThanAllowed = errors.New("parameter is greater than allowed")
	ErrParameterNotOneOfAllowed    = errors.New("parameter is not one of the allowed values")
	ErrCalldataOutOfBounds         = errors.New("calldata out of bounds")
	ErrMalformedMultisend          = errors.New("malformed multisend payload")
	ErrMultisendDepthExceeded      = errors.New("multisend nesting depth exceeded")
)

// Configuration errors returned by the administrative mutations.
var (
	ErrArraysDifferentLength         = errors.New("arrays have different lengths")
	ErrNotScoped                     = errors.New("target is not scoped")
	ErrScopeMaxParametersExceeded    = errors.New("parameter index exceeds the maximum")
	ErrUnsuitableRelativeComparison  = errors.New("ordering comparison requires a static parameter")
	ErrUnsuitableStaticCompValueSize = errors.New("static comparison value must be 32 bytes")
	ErrInvalidCompValues             = errors.New("comparison requires exactly one value")
	ErrNotEnoughCompValuesForOneOf   = errors.New("oneof comparison requires at least one value")
	ErrUnknownClearance              = errors.New("unknown clearance")
	ErrUnknownExecutionOptions       = errors.New("unknown execution options")
	ErrUnknownParameterType          = errors.New("unknown parameter type")
	ErrUnknownComparison             = errors.New("unknown comparison")
	ErrUnknownOperation              = errors.New("unknown operation")
	ErrInvalidSelector               = errors.New("invalid function selector")
)

// Errors raised around the core by its callers.
var (
	ErrNoMembership            = errors.New("caller is not a member of the role")
	ErrModuleTransactionFailed = errors.New("module transaction failed")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrTargetAddressNotAllowed, "target_address_not_allowed"},
	{ErrFunctionNotAllowed, "function_not_allowed"},
	{ErrFunctionSignatureTooShort, "function_signature_too_short"},
	{ErrSendNotAllowed, "send_not_allowed"},
	{ErrDelegateCallNotAllowed, "delegatecall_not_allowed"},
	{ErrParameterNotAllowed, "parameter_not_allowed"},
	{ErrParameterLessThanAllowed, "parameter_less_than_allowed"},
	{ErrParameterGreaterThanAllowed, "parameter_greater_than_allowed"},
	{ErrParameterNotOneOfAllowed, "parameter_not_one_of_allowed"},
	{ErrCalldataOutOfBounds, "calldata_out_of_bounds"},
	{ErrMalformedMultisend, "malformed_multisend"},
	{ErrMultisendDepthExceeded, "multisend_depth_exceeded"},
	{ErrNoMembership, "no_membership"},
	{ErrModuleTransactionFailed, "module_transaction_failed"},
}

// Reason returns a stable snake_case identifier for err, suitable for
// metric labels and API responses. Unknown errors map to "error".
func Reason(err error) string {
	if err == nil {
		return "allowed"
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "error"
}

// IsRejection reports whether err is an authorization rejection produced by
// Check, as opposed to a configuration or infrastructure failure.
func IsRejection(err error) bool {
	switch Reason(err) {
	case "allowed", "error", "no_membership", "module_transaction_failed":
		return false
	}
	return true
}

var configErrors = []error{
	ErrArraysDifferentLength,
	ErrNotScoped,
	ErrScopeMaxParametersExceeded,
	ErrUnsuitableRelativeComparison,
	ErrUnsuitableStaticCompValueSize,
	ErrInvalidCompValues,
	ErrNotEnoughCompValuesForOneOf,
	ErrUnknownClearance,
	ErrUnknownExecutionOptions,
	ErrUnknownParameterType,
	ErrUnknownComparison,
	ErrUnknownOperation,
	ErrInvalidSelector,
}

// IsConfigError reports whether err is a rejected administrative mutation
// or unparseable input, as opposed to an authorization rejection or an
// infrastructure failure.
func IsConfigError(err error) bool {
	for _, target := range configErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
