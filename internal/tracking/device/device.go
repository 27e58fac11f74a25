// Package device derives coarse device descriptors and the session
// fingerprint from request metadata.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeBot     = "bot"
	TypeUnknown = "unknown"
)

// Profile is what the User-Agent reveals about the client.
type Profile struct {
	Type    string
	Browser string
	OS      string
}

// Service parses User-Agent strings. It holds no state and is safe for
// concurrent use.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Describe classifies a User-Agent. An empty string yields TypeUnknown.
func (s *Service) Describe(userAgent string) Profile {
	if strings.TrimSpace(userAgent) == "" {
		return Profile{Type: TypeUnknown}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	return Profile{
		Type:    classify(ua, userAgent),
		Browser: browser,
		OS:      ua.OSInfo().Name,
	}
}

// ComputeFingerprint hashes User-Agent and IP into a stable hex digest.
func (s *Service) ComputeFingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ip))
	return hex.EncodeToString(sum[:])
}

// ParseUserAgent renders a short "Browser on OS" label for logs.
func ParseUserAgent(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	if os == "" {
		os = ua.Platform()
	}
	return strings.TrimSpace(strings.TrimSpace(browser) + " on " + strings.TrimSpace(os))
}

func classify(ua *useragent.UserAgent, raw string) string {
	switch {
	case ua.Bot():
		return TypeBot
	case strings.Contains(raw, "iPad") || strings.Contains(raw, "Tablet") ||
		(strings.Contains(raw, "Android") && !strings.Contains(raw, "Mobile")):
		return TypeTablet
	case ua.Mobile():
		return TypeMobile
	default:
		return TypeDesktop
	}
}
