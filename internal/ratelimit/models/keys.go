package models

import "strings"

// KeyPrefixClient namespaces per-client sliding windows in shared stores.
const KeyPrefixClient = "ratelimit:client:"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// so a client identifier containing ':' cannot address another bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NewClientKey builds the bucket key for a client identifier.
func NewClientKey(clientID string) string {
	return KeyPrefixClient + SanitizeKeySegment(clientID)
}
