package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/models"
)

// Principal is the authenticated user as seen by the tenancy layer
type Principal struct {
	UserID         uuid.UUID       `json:"user_id"`
	Email          string          `json:"email"`
	Role           models.UserRole `json:"role"`
	OrganizationID *uuid.UUID      `json:"organization_id,omitempty"`
}

// PrincipalFromUser builds a Principal from a stored user row
func PrincipalFromUser(u *models.User) *Principal {
	if u == nil {
		return nil
	}
	return &Principal{
		UserID:         u.ID,
		Email:          u.Email,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
	}
}

// OrganizationContext scopes every downstream read and write of one request.
// It is built per request and must not be cached.
type OrganizationContext struct {
	OrganizationID *uuid.UUID      `json:"organization_id"`
	IsSuperAdmin   bool            `json:"is_super_admin"`
	IsOrgAdmin     bool            `json:"is_org_admin"`
	UserID         uuid.UUID       `json:"user_id"`
	UserRole       models.UserRole `json:"user_role"`
}

// Validate reports contexts that break the one-organization-per-user invariant
func (oc *OrganizationContext) Validate() error {
	if oc.OrganizationID == nil && !oc.IsSuperAdmin {
		return fmt.Errorf("user %s: %w", oc.UserID, ErrOrphanedPrincipal)
	}
	return nil
}

// OrganizationLookup resolves tenant hints to active organizations
type OrganizationLookup interface {
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	FindActiveBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

// Builder composes a principal and a tenant hint into an OrganizationContext
type Builder struct {
	orgs OrganizationLookup
}

// NewBuilder creates a context builder backed by the given lookup
func NewBuilder(orgs OrganizationLookup) *Builder {
	return &Builder{orgs: orgs}
}

// Build returns nil for a nil principal. Only super admins may switch tenant
// through the hint; an unresolvable hint falls back to the principal's own
// organization. Errors are returned only for datastore failures.
func (b *Builder) Build(ctx context.Context, p *Principal, hint TenantHint) (*OrganizationContext, error) {
	if p == nil {
		return nil, nil
	}

	oc := &OrganizationContext{
		OrganizationID: p.OrganizationID,
		IsSuperAdmin:   p.Role == models.RoleSuperAdmin,
		IsOrgAdmin:     p.Role == models.RoleAdmin,
		UserID:         p.UserID,
		UserRole:       p.Role,
	}

	if !oc.IsSuperAdmin || hint.IsEmpty() {
		return oc, nil
	}

	orgID, err := b.resolveHint(ctx, hint)
	if err != nil {
		return nil, err
	}
	if orgID != nil {
		oc.OrganizationID = orgID
	} else {
		logrus.WithFields(logrus.Fields{
			"user_id":           p.UserID,
			"organization_id":   hint.OrganizationID,
			"organization_slug": hint.OrganizationSlug,
		}).Warn("Tenant hint did not resolve, using principal organization")
	}

	return oc, nil
}

// resolveHint performs at most one lookup. A nil id with a nil error means the
// hint did not name an active organization.
func (b *Builder) resolveHint(ctx context.Context, hint TenantHint) (*uuid.UUID, error) {
	var (
		org *models.Organization
		err error
	)

	switch {
	case hint.OrganizationID != "":
		id, parseErr := uuid.Parse(hint.OrganizationID)
		if parseErr != nil {
			return nil, nil
		}
		org, err = b.orgs.FindActiveByID(ctx, id)
	case hint.OrganizationSlug != "":
		org, err = b.orgs.FindActiveBySlug(ctx, hint.OrganizationSlug)
	default:
		return nil, nil
	}

	if err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve tenant hint: %w", err)
	}

	id := org.ID
	return &id, nil
}

// AdminRoles are the roles allowed to administer an organization
func AdminRoles() []models.UserRole {
	return []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}
}
