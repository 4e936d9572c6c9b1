package session

import (
	"strings"

	"zkbadge/internal/auth/models"
)

// AdminPolicy decides administrator status from verified identity only.
type AdminPolicy struct {
	emails   map[string]struct{}
	subjects map[string]struct{}
}

func NewAdminPolicy(emails, subjects []string) AdminPolicy {
	p := AdminPolicy{
		emails:   make(map[string]struct{}, len(emails)),
		subjects: make(map[string]struct{}, len(subjects)),
	}
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			p.emails[e] = struct{}{}
		}
	}
	for _, s := range subjects {
		if s = strings.TrimSpace(s); s != "" {
			p.subjects[s] = struct{}{}
		}
	}
	return p
}

func (p AdminPolicy) IsAdmin(id models.Identity) bool {
	if _, ok := p.subjects[id.SubjectID]; ok && id.SubjectID != "" {
		return true
	}
	_, ok := p.emails[strings.ToLower(id.Email)]
	return ok && id.Email != ""
}
