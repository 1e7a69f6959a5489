package tenancy

import (
	"errors"
	"strings"
)

var (
	// ErrAccessDenied is returned when a context may not touch the target organization
	ErrAccessDenied = errors.New("access denied to this organization")
	// ErrOrganizationNotFound is returned when no organization matches an id, slug or domain
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrSettingsNotFound signals an organization without its settings row
	ErrSettingsNotFound = errors.New("organization settings not found")
	// ErrOrphanedPrincipal signals a non-super-admin user with no organization
	ErrOrphanedPrincipal = errors.New("user has no organization and is not a super admin")
	// ErrDomainTaken is returned when a custom domain already belongs to another organization
	ErrDomainTaken = errors.New("domain already in use")
	// ErrSlugTaken is returned when a slug was claimed by another organization first
	ErrSlugTaken = errors.New("slug already in use")
)

// QuotaExceededError names every breached dimension of a limit check
type QuotaExceededError struct {
	Violations []string
}

func (e *QuotaExceededError) Error() string {
	return "quota exceeded: " + strings.Join(e.Violations, "; ")
}
