// Package ctxkey defines shared context key types used across multiple
// packages. It must not depend on other internal packages.
package ctxkey

// LoggerKey is the context key type for the request-enriched logger.
type LoggerKey struct{}

// PrincipalKey is the context key type for the authenticated API-key
// principal.
type PrincipalKey struct{}

// RequestIDKey is the context key type for the request id.
type RequestIDKey struct{}
