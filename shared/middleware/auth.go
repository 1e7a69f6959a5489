package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/identity"
	"github.com/pavitra93/edu-tenancy/shared/metrics"
	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

const (
	organizationContextKey  = "organization_context"
	principalKey            = "principal"
	tokenKey                = "access_token"
	resolvedOrganizationKey = "resolved_organization_id"
)

// Authenticator maps a bearer token to a principal
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*tenancy.Principal, error)
}

// ContextBuilder turns a principal and tenant hint into an OrganizationContext
type ContextBuilder interface {
	Build(ctx context.Context, p *tenancy.Principal, hint tenancy.TenantHint) (*tenancy.OrganizationContext, error)
}

// LimitChecker measures an organization's usage against its limits
type LimitChecker interface {
	CheckLimits(ctx context.Context, organizationID uuid.UUID) (*tenancy.LimitReport, error)
}

// IdentifierLookup finds an organization by id, slug or custom domain
type IdentifierLookup interface {
	Lookup(ctx context.Context, identifier string) (*models.Organization, error)
}

// AuthMiddleware authenticates requests and scopes them to an organization
type AuthMiddleware struct {
	service  string
	auth     Authenticator
	builder  ContextBuilder
	resolver *tenancy.Resolver
}

// NewAuthMiddleware creates the middleware for one service
func NewAuthMiddleware(service string, auth Authenticator, builder ContextBuilder, resolver *tenancy.Resolver) *AuthMiddleware {
	return &AuthMiddleware{
		service:  service,
		auth:     auth,
		builder:  builder,
		resolver: resolver,
	}
}

// RequireAuth authenticates the bearer token and stores a freshly built
// OrganizationContext on the request
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, "Authorization token required")
			return
		}

		principal, err := am.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				utils.AbortWithError(c, http.StatusUnauthorized, "Invalid token")
				return
			}
			Logger(c).WithError(err).Error("Failed to authenticate request")
			utils.AbortWithError(c, http.StatusInternalServerError, "Failed to authenticate request")
			return
		}

		hint := am.resolver.Resolve(tenancy.RequestHeaders(c.Request), c.Query("org"))
		oc, err := am.builder.Build(c.Request.Context(), principal, hint)
		if err != nil {
			Logger(c).WithError(err).Error("Failed to build organization context")
			utils.AbortWithError(c, http.StatusInternalServerError, "Failed to resolve organization")
			return
		}
		if oc == nil {
			utils.AbortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if err := oc.Validate(); err != nil {
			Logger(c).WithError(err).Error("Organization context violates tenancy invariant")
			utils.AbortWithError(c, http.StatusInternalServerError, "User is not assigned to an organization")
			return
		}

		c.Set(tokenKey, token)
		c.Set(principalKey, principal)
		c.Set(organizationContextKey, oc)
		c.Next()
	}
}

// RequireRole admits only the listed roles
func (am *AuthMiddleware) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		oc, ok := GetOrganizationContext(c)
		if !ok {
			utils.AbortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		for _, role := range roles {
			if oc.UserRole == role {
				c.Next()
				return
			}
		}

		metrics.AccessDenied.WithLabelValues(am.service).Inc()
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success":   false,
			"error":     "Insufficient permissions",
			"user_role": oc.UserRole,
		})
	}
}

// RequireSuperAdmin admits only super admins
func (am *AuthMiddleware) RequireSuperAdmin() gin.HandlerFunc {
	return am.RequireRole(models.RoleSuperAdmin)
}

// RequireOrganizationAccess runs the access guard against the organization
// named by the path parameter
func (am *AuthMiddleware) RequireOrganizationAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		oc, ok := GetOrganizationContext(c)
		if !ok {
			utils.AbortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		target, err := OrganizationParam(c, param)
		if err != nil {
			utils.AbortWithError(c, http.StatusBadRequest, "Invalid organization ID")
			return
		}

		if err := tenancy.Authorize(oc, &target); err != nil {
			Logger(c).WithFields(logrus.Fields{
				"user_id":         oc.UserID,
				"organization_id": target,
			}).Warn("Organization access denied")
			am.denyAccess(c)
			return
		}

		c.Next()
	}
}

// ResolveOrganization lets the path parameter name an organization by slug or
// custom domain as well as by id. An unknown identifier is reported as missing
// only to super admins; everyone else is denied as for a foreign organization.
func (am *AuthMiddleware) ResolveOrganization(lookup IdentifierLookup, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(param)
		if raw == "" {
			c.Next()
			return
		}
		if _, err := uuid.Parse(raw); err == nil {
			c.Next()
			return
		}

		oc, ok := GetOrganizationContext(c)
		if !ok {
			utils.AbortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		org, err := lookup.Lookup(c.Request.Context(), strings.ToLower(raw))
		if err != nil {
			if !errors.Is(err, tenancy.ErrOrganizationNotFound) {
				Logger(c).WithError(err).Error("Failed to resolve organization identifier")
				utils.AbortWithError(c, http.StatusInternalServerError, "Failed to resolve organization")
				return
			}
			if oc.IsSuperAdmin {
				utils.AbortWithError(c, http.StatusNotFound, "Organization not found")
				return
			}
			am.denyAccess(c)
			return
		}

		c.Set(resolvedOrganizationKey, org.ID)
		c.Next()
	}
}

func (am *AuthMiddleware) denyAccess(c *gin.Context) {
	metrics.AccessDenied.WithLabelValues(am.service).Inc()
	utils.ForbiddenResponse(c, "Access denied to this organization")
	c.Abort()
}

// RequireWithinLimits rejects quota-gated actions for organizations at or over
// any limit, naming every breached dimension
func (am *AuthMiddleware) RequireWithinLimits(ledger LimitChecker, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := OrganizationParam(c, param)
		if err != nil {
			utils.AbortWithError(c, http.StatusBadRequest, "Invalid organization ID")
			return
		}

		report, err := ledger.CheckLimits(c.Request.Context(), target)
		if err != nil {
			if errors.Is(err, tenancy.ErrOrganizationNotFound) || errors.Is(err, tenancy.ErrSettingsNotFound) {
				utils.AbortWithError(c, http.StatusNotFound, "Organization not found")
				return
			}
			Logger(c).WithError(err).Error("Failed to check organization limits")
			utils.AbortWithError(c, http.StatusInternalServerError, "Failed to check organization limits")
			return
		}

		if !report.WithinLimits {
			for _, v := range report.Violations {
				metrics.QuotaViolations.WithLabelValues(am.service, v).Inc()
			}
			utils.QuotaExceededResponse(c, report.Violations)
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetOrganizationContext returns the context stored by RequireAuth
func GetOrganizationContext(c *gin.Context) (*tenancy.OrganizationContext, bool) {
	v, ok := c.Get(organizationContextKey)
	if !ok {
		return nil, false
	}
	oc, ok := v.(*tenancy.OrganizationContext)
	return oc, ok && oc != nil
}

// OrganizationParam returns the organization named by the path parameter,
// preferring the id ResolveOrganization found for a slug or domain
func OrganizationParam(c *gin.Context, param string) (uuid.UUID, error) {
	if v, ok := c.Get(resolvedOrganizationKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id, nil
		}
	}
	return uuid.Parse(c.Param(param))
}

// GetPrincipal returns the principal stored by RequireAuth
func GetPrincipal(c *gin.Context) (*tenancy.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*tenancy.Principal)
	return p, ok && p != nil
}

// GetToken returns the bearer token of the request
func GetToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return authHeader
}
