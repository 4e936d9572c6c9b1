package models

import (
	"strings"
	"time"

	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
)

// WhitelistedDomain is an email domain pattern permitted to register.
type WhitelistedDomain struct {
	ID        domain.DomainID `json:"id"`
	Pattern   string          `json:"pattern"`
	CreatedAt time.Time       `json:"created_at"`
}

// NormalizePattern validates a domain pattern and returns its canonical
// lower-case form. A pattern starts with "@", contains a "." and does not end
// with ".".
func NormalizePattern(raw string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case !strings.HasPrefix(p, "@"):
		return "", dErrors.New(dErrors.CodeInvalidDomainFormat, "domain must start with @")
	case !strings.Contains(p, "."):
		return "", dErrors.New(dErrors.CodeInvalidDomainFormat, "domain must contain a dot")
	case strings.HasSuffix(p, "."):
		return "", dErrors.New(dErrors.CodeInvalidDomainFormat, "domain must not end with a dot")
	case strings.ContainsAny(p[1:], "@ \t"):
		return "", dErrors.New(dErrors.CodeInvalidDomainFormat, "domain contains invalid characters")
	}
	return p, nil
}

// Matches reports whether emailDomain (as "@host") is covered by the pattern.
// emailDomain must already be lower-case.
func (d WhitelistedDomain) Matches(emailDomain string) bool {
	return emailDomain != "" && strings.HasSuffix(emailDomain, strings.ToLower(d.Pattern))
}
