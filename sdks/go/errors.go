package rolegate

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrRejected is returned when the role does not allow the transaction.
	ErrRejected = errors.New("transaction rejected")

	// ErrExecFailed is returned when an allowed transaction reverted and
	// should_revert was set.
	ErrExecFailed = errors.New("module transaction failed")

	// ErrRateLimited is returned when the server throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServerUnreachable is returned when the rolegate server cannot be contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// APIError is a non-2xx answer the client has no more specific type for.
type APIError struct {
	// StatusCode is the HTTP status.
	StatusCode int
	// Message is the server's error text.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rolegate [HTTP_%d]: %s", e.StatusCode, e.Message)
}

// RejectedError is returned when the role does not allow the transaction,
// the module is not a member or has no default role.
type RejectedError struct {
	// Reason is the stable identifier, e.g. "parameter_greater_than_allowed".
	Reason string
	// Message is the server's description.
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction rejected: %s", e.Reason)
}

// Is supports errors.Is(err, ErrRejected).
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// ExecFailedError carries the data a reverted inner call returned.
type ExecFailedError struct {
	Role       uint16
	ReturnData []byte
}

func (e *ExecFailedError) Error() string {
	return fmt.Sprintf("module transaction failed under role %d", e.Role)
}

// Is supports errors.Is(err, ErrExecFailed).
func (e *ExecFailedError) Is(target error) bool {
	return target == ErrExecFailed
}

// RateLimitedError is returned on 429.
type RateLimitedError struct {
	// RetryAfter is zero when the server sent no Retry-After header.
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Is supports errors.Is(err, ErrRateLimited).
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// ServerUnreachableError is returned when the rolegate server cannot be contacted.
type ServerUnreachableError struct {
	// Cause is the underlying error that caused the server to be unreachable.
	Cause error
}

func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
