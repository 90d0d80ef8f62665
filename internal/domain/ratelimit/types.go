// Package ratelimit holds the types used to throttle transaction execution
// per module and admin requests per client.
package ratelimit

import (
	"fmt"
	"time"
)

// Config is a GCRA limit: Rate events per Period with up to Burst at once.
type Config struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// Enabled reports whether c describes an actual limit.
func (c Config) Enabled() bool {
	return c.Rate > 0 && c.Period > 0
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int

	// RetryAfter is only meaningful when Allowed is false.
	RetryAfter time.Duration
	ResetAfter time.Duration
}

// KeyType identifies what a limit key is counted against.
type KeyType string

const (
	// KeyTypeModule counts executions by module address.
	KeyTypeModule KeyType = "module"

	// KeyTypeIP counts admin API requests by client IP.
	KeyTypeIP KeyType = "ip"
)

// FormatKey returns "ratelimit:{type}:{value}".
func FormatKey(keyType KeyType, value string) string {
	return fmt.Sprintf("ratelimit:%s:%s", keyType, value)
}
