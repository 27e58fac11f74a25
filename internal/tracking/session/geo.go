package session

import (
	"context"
	"strings"
)

// GeoLookup resolves a country code for a client. hint carries an edge proxy
// country header when one was present.
type GeoLookup interface {
	Country(ctx context.Context, ip, hint string) (string, error)
}

// HeaderGeoLookup trusts the country code forwarded by the edge
// (CF-IPCountry or X-Country-Code). Codes for unknown or anonymized clients
// resolve to "".
type HeaderGeoLookup struct{}

func (HeaderGeoLookup) Country(_ context.Context, _ string, hint string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(hint))
	if len(code) != 2 || code == "XX" || code == "T1" {
		return "", nil
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return "", nil
		}
	}
	return code, nil
}

// NoopGeoLookup never resolves a country.
type NoopGeoLookup struct{}

func (NoopGeoLookup) Country(context.Context, string, string) (string, error) {
	return "", nil
}
