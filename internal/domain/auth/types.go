package auth

import (
	"strings"
	"time"
)

// Config drives bearer-token verification.
type Config struct {
	Secret string
	Issuer string
}

// Claims are extracted from a verified token.
type Claims struct {
	Subject   string
	Locations []string
	ExpiresAt time.Time
}

// AllowsLocation reports whether the token may read loc. An empty scope grants every location.
func (c Claims) AllowsLocation(loc string) bool {
	if len(c.Locations) == 0 {
		return true
	}
	for _, allowed := range c.Locations {
		if strings.EqualFold(allowed, loc) {
			return true
		}
	}
	return false
}
