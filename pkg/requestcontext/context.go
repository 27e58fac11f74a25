// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
// Usage in services (read values):
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//	ip := requestcontext.ClientIP(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7", "Mozilla/5.0")
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	clientIPKey    struct{}
	userAgentKey   struct{}
	referrerKey    struct{}
	countryHintKey struct{}
	sessionHintKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyReferrer    = referrerKey{}
	ContextKeyCountryHint = countryHintKey{}
	ContextKeySessionHint = sessionHintKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent, Referer)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	return stringValue(ctx, ContextKeyClientIP)
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	return stringValue(ctx, ContextKeyUserAgent)
}

// Referrer retrieves the Referer header value from the context.
func Referrer(ctx context.Context) string {
	return stringValue(ctx, ContextKeyReferrer)
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// WithReferrer injects the Referer header value into a context.
func WithReferrer(ctx context.Context, referrer string) context.Context {
	return context.WithValue(ctx, ContextKeyReferrer, referrer)
}

// -----------------------------------------------------------------------------
// Edge hints (country, session)
// -----------------------------------------------------------------------------

// CountryHint retrieves the country code supplied by an edge proxy header.
func CountryHint(ctx context.Context) string {
	return stringValue(ctx, ContextKeyCountryHint)
}

// WithCountryHint injects an edge-supplied country code into a context.
func WithCountryHint(ctx context.Context, country string) context.Context {
	return context.WithValue(ctx, ContextKeyCountryHint, country)
}

// SessionHint retrieves the session id supplied in a request header.
func SessionHint(ctx context.Context) string {
	return stringValue(ctx, ContextKeySessionHint)
}

// WithSessionHint injects a header-supplied session id into a context.
func WithSessionHint(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionHint, sessionID)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	return stringValue(ctx, ContextKeyRequestID)
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

func stringValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
