package device

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

const (
	chromeMac   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	safariPad   = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	googlebot   = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

type DeviceServiceSuite struct {
	suite.Suite
	svc *Service
}

func (s *DeviceServiceSuite) SetupTest() {
	s.svc = NewService()
}

func TestDeviceServiceSuite(t *testing.T) {
	suite.Run(t, new(DeviceServiceSuite))
}

func (s *DeviceServiceSuite) TestDescribe() {
	s.Run("empty user agent is unknown", func() {
		s.Equal(Profile{Type: TypeUnknown}, s.svc.Describe(""))
	})

	s.Run("desktop chrome", func() {
		p := s.svc.Describe(chromeMac)
		s.Equal(TypeDesktop, p.Type)
		s.Equal("Chrome", p.Browser)
	})

	s.Run("iphone is mobile", func() {
		p := s.svc.Describe(safariPhone)
		s.Equal(TypeMobile, p.Type)
		s.Equal("Safari", p.Browser)
	})

	s.Run("ipad is tablet", func() {
		s.Equal(TypeTablet, s.svc.Describe(safariPad).Type)
	})

	s.Run("crawler is bot", func() {
		s.Equal(TypeBot, s.svc.Describe(googlebot).Type)
	})
}

func (s *DeviceServiceSuite) TestFingerprint() {
	s.Run("deterministic for the same inputs", func() {
		s.Equal(s.svc.ComputeFingerprint(chromeMac, "203.0.113.7"), s.svc.ComputeFingerprint(chromeMac, "203.0.113.7"))
	})

	s.Run("sensitive to address", func() {
		s.NotEqual(s.svc.ComputeFingerprint(chromeMac, "203.0.113.7"), s.svc.ComputeFingerprint(chromeMac, "203.0.113.8"))
	})

	s.Run("is a sha-256 hex digest", func() {
		s.Len(s.svc.ComputeFingerprint("", ""), 64)
	})
}

func (s *DeviceServiceSuite) TestParseUserAgent() {
	s.Equal("Unknown Device", ParseUserAgent(""))
	s.Contains(ParseUserAgent(chromeMac), "Chrome on")
}
