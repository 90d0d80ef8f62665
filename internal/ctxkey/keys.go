// Package ctxkey defines context key types shared by the HTTP adapters.
// It has no internal dependencies so any package can import it.
package ctxkey

import "context"

// LoggerKey is the context key for the request-scoped logger carrying
// request_id.
type LoggerKey struct{}

// ClientIPKey is the context key for the client IP resolved by the HTTP
// middleware.
type ClientIPKey struct{}

// RequestIDKey is the context key for the X-Request-ID of the current
// request.
type RequestIDKey struct{}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey{}).(string)
	return id
}
