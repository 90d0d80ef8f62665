// Package http is the inbound HTTP adapter of rolegate.
//
// One listener serves three trees:
//
//	/admin/api/  role, membership, check and exec endpoints (package admin)
//	/health      component checks, 503 when state.json is unreadable
//	/metrics     Prometheus exposition
//
// Admin requests pass through, outermost first:
//
//  1. MetricsMiddleware - request count and duration
//  2. RequestIDMiddleware - X-Request-ID and a request-scoped logger
//  3. RealIPMiddleware - client IP for per-IP rate limiting
//  4. DNSRebindingProtection - Origin allowlist
//
// Authentication is done by the admin handler itself.
//
// Metrics also implements service.Recorder, so authorization decisions,
// mutations and executions are counted without the services importing
// prometheus.
package http
