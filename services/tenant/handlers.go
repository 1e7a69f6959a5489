package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/middleware"
	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/repository"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

const (
	activityWindow = 24 * time.Hour
	activityLimit  = 50

	// attempts at claiming a generated slug when concurrent creates collide
	slugAttempts = 3
)

// CreateOrganizationRequest represents the create organization request
type CreateOrganizationRequest struct {
	Name        string                  `json:"name" binding:"required,min=2,max=100"`
	Description string                  `json:"description" binding:"max=500"`
	Domain      string                  `json:"domain" binding:"omitempty,fqdn"`
	Tier        models.OrganizationTier `json:"tier"`
}

// UpdateOrganizationRequest represents the update organization request
type UpdateOrganizationRequest struct {
	Name        *string                  `json:"name" binding:"omitempty,min=2,max=100"`
	Description *string                  `json:"description" binding:"omitempty,max=500"`
	Domain      *string                  `json:"domain"`
	Tier        *models.OrganizationTier `json:"tier"`
}

// OrganizationView is an organization together with its live usage
type OrganizationView struct {
	*models.Organization
	Usage tenancy.UsageSnapshot `json:"usage"`
}

func organizationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := middleware.OrganizationParam(c, "id")
	if err != nil {
		utils.BadRequestResponse(c, "Invalid organization ID")
		return uuid.Nil, false
	}
	return id, true
}

func auditEvent(c *gin.Context, orgID uuid.UUID, action string, details map[string]interface{}) tenancy.Event {
	ev := tenancy.Event{
		OrganizationID: &orgID,
		Action:         action,
		Resource:       "organization",
		ResourceID:     orgID.String(),
		Details:        details,
		Meta:           tenancy.RequestMetaFromHeaders(c.Request.Header),
	}
	if oc, ok := middleware.GetOrganizationContext(c); ok {
		userID := oc.UserID
		ev.UserID = &userID
	}
	return ev
}

// record appends an audit entry; failures are reported by the recorder and
// never change the response.
func record(app *App, c *gin.Context, ev tenancy.Event) {
	_, _ = app.Audit.Record(c.Request.Context(), ev)
}

// writeStoreError maps repository errors onto responses
func writeStoreError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, tenancy.ErrOrganizationNotFound), errors.Is(err, tenancy.ErrSettingsNotFound):
		utils.NotFoundResponse(c, "Organization not found")
	case errors.Is(err, tenancy.ErrDomainTaken):
		utils.ConflictResponse(c, "Domain already in use")
	case errors.Is(err, tenancy.ErrSlugTaken):
		utils.ConflictResponse(c, "Slug already in use")
	default:
		middleware.Logger(c).WithError(err).Error(message)
		utils.InternalServerErrorResponse(c, message)
	}
}

// handleGetCurrentOrganization returns the organization the request is scoped to
func handleGetCurrentOrganization(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		oc, _ := middleware.GetOrganizationContext(c)
		if oc.OrganizationID == nil {
			utils.OKResponse(c, "No organization selected", nil)
			return
		}

		org, err := app.Orgs.GetWithSettings(c.Request.Context(), *oc.OrganizationID)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization")
			return
		}

		usage, err := app.Ledger.GetUsage(c.Request.Context(), org.ID)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization usage")
			return
		}

		utils.OKResponse(c, "Organization retrieved successfully", OrganizationView{Organization: org, Usage: usage})
	}
}

// handleListOrganizations handles listing all organizations (super admin only)
func handleListOrganizations(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := app.Orgs.List(c.Request.Context())
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organizations")
			return
		}

		utils.OKResponse(c, "Organizations retrieved successfully", orgs)
	}
}

// handleCreateOrganization handles organization creation (super admin only)
func handleCreateOrganization(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		tier := req.Tier
		if tier == "" {
			tier = models.TierFree
		}
		if !tier.Valid() {
			utils.BadRequestResponse(c, "Invalid organization tier")
			return
		}

		ctx := c.Request.Context()
		org := &models.Organization{
			Name:        strings.TrimSpace(req.Name),
			Description: req.Description,
			Tier:        tier,
		}

		if req.Domain != "" {
			domain := strings.ToLower(req.Domain)
			ok, err := app.Orgs.IsDomainAvailable(ctx, domain, nil)
			if err != nil {
				writeStoreError(c, err, "Failed to check domain")
				return
			}
			if !ok {
				writeStoreError(c, tenancy.ErrDomainTaken, "")
				return
			}
			org.Domain = &domain
		}

		// the unique index has the final word; a slug claimed between the
		// availability check and the insert is regenerated
		for attempt := 1; ; attempt++ {
			slug, err := tenancy.UniqueSlug(ctx, org.Name, func(ctx2 context.Context, s string) (bool, error) {
				return app.Orgs.IsSlugAvailable(ctx2, s, nil)
			})
			if err != nil {
				writeStoreError(c, err, "Failed to generate slug")
				return
			}
			org.Slug = slug

			err = app.Orgs.Create(ctx, org)
			if err == nil {
				break
			}
			if errors.Is(err, tenancy.ErrSlugTaken) && attempt < slugAttempts {
				continue
			}
			writeStoreError(c, err, "Failed to create organization")
			return
		}

		record(app, c, auditEvent(c, org.ID, tenancy.ActionOrganizationCreated, map[string]interface{}{
			"name": org.Name,
			"slug": org.Slug,
			"tier": org.Tier,
		}))

		logrus.WithFields(logrus.Fields{
			"organization_id": org.ID,
			"slug":            org.Slug,
		}).Info("Organization created")

		utils.CreatedResponse(c, "Organization created successfully", org)
	}
}

// handleGetOrganization returns one organization with its usage
func handleGetOrganization(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		org, err := app.Orgs.GetWithSettings(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization")
			return
		}

		usage, err := app.Ledger.GetUsage(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization usage")
			return
		}

		utils.OKResponse(c, "Organization retrieved successfully", OrganizationView{Organization: org, Usage: usage})
	}
}

// handleUpdateOrganization handles renames, domain and tier changes
func handleUpdateOrganization(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		var req UpdateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if req.Tier != nil && !req.Tier.Valid() {
			utils.BadRequestResponse(c, "Invalid organization tier")
			return
		}

		ctx := c.Request.Context()
		org, err := app.Orgs.GetOrganization(ctx, id)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization")
			return
		}

		changes := map[string]interface{}{}
		if req.Name != nil && strings.TrimSpace(*req.Name) != org.Name {
			org.Name = strings.TrimSpace(*req.Name)
			slug, err := tenancy.UniqueSlug(ctx, org.Name, func(ctx2 context.Context, s string) (bool, error) {
				return app.Orgs.IsSlugAvailable(ctx2, s, &id)
			})
			if err != nil {
				writeStoreError(c, err, "Failed to generate slug")
				return
			}
			org.Slug = slug
			changes["name"] = org.Name
			changes["slug"] = org.Slug
		}
		if req.Description != nil {
			org.Description = *req.Description
			changes["description"] = org.Description
		}
		if req.Domain != nil {
			domain := strings.ToLower(strings.TrimSpace(*req.Domain))
			if domain == "" {
				org.Domain = nil
			} else {
				ok, err := app.Orgs.IsDomainAvailable(ctx, domain, &id)
				if err != nil {
					writeStoreError(c, err, "Failed to check domain")
					return
				}
				if !ok {
					writeStoreError(c, tenancy.ErrDomainTaken, "")
					return
				}
				org.Domain = &domain
			}
			changes["domain"] = domain
		}

		var tier *models.OrganizationTier
		if req.Tier != nil && *req.Tier != org.Tier {
			changes["tier"] = map[string]interface{}{"from": org.Tier, "to": *req.Tier}
			tier = req.Tier
		}

		if err := app.Orgs.UpdateDetails(ctx, org, tier); err != nil {
			writeStoreError(c, err, "Failed to update organization")
			return
		}

		updated, err := app.Orgs.GetWithSettings(ctx, id)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization")
			return
		}

		if len(changes) > 0 {
			record(app, c, auditEvent(c, id, tenancy.ActionOrganizationUpdated, changes))
		}

		utils.OKResponse(c, "Organization updated successfully", updated)
	}
}

// handleUpdateSettings applies explicit limit overrides
func handleUpdateSettings(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		var req repository.SettingsUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		settings, err := app.Orgs.UpdateSettings(c.Request.Context(), id, req)
		if err != nil {
			writeStoreError(c, err, "Failed to update organization settings")
			return
		}

		record(app, c, auditEvent(c, id, tenancy.ActionOrganizationSettingsUpdated, map[string]interface{}{
			"max_users":               settings.MaxUsers,
			"max_documents":           settings.MaxDocuments,
			"max_questions_per_month": settings.MaxQuestionsPerMonth,
			"max_storage_bytes":       settings.MaxStorageBytes,
			"evaluations_enabled":     settings.EvaluationsEnabled,
		}))

		utils.OKResponse(c, "Organization settings updated successfully", settings)
	}
}

// handleSetActive deactivates or reactivates an organization
func handleSetActive(app *App, active bool) gin.HandlerFunc {
	action, message := tenancy.ActionOrganizationDeactivated, "Organization deactivated"
	if active {
		action, message = tenancy.ActionOrganizationReactivated, "Organization reactivated"
	}

	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		if err := app.Orgs.SetActive(c.Request.Context(), id, active); err != nil {
			writeStoreError(c, err, "Failed to update organization")
			return
		}

		record(app, c, auditEvent(c, id, action, nil))
		utils.OKResponse(c, message, gin.H{"id": id, "is_active": active})
	}
}

// handlePurgeOrganization irreversibly deletes an organization. The caller
// must repeat the organization slug in ?confirm=.
func handlePurgeOrganization(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		org, err := app.Orgs.GetOrganization(ctx, id)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization")
			return
		}

		if c.Query("confirm") != org.Slug {
			utils.BadRequestResponse(c, "Purge must be confirmed with the organization slug")
			return
		}

		users, err := app.Orgs.CountUsers(ctx, id)
		if err != nil {
			writeStoreError(c, err, "Failed to count organization users")
			return
		}

		// recorded first so the entry exists even if the purge fails midway
		record(app, c, auditEvent(c, id, tenancy.ActionOrganizationPurged, map[string]interface{}{
			"name":  org.Name,
			"slug":  org.Slug,
			"users": users,
		}))

		if err := app.Orgs.Purge(ctx, id); err != nil {
			writeStoreError(c, err, "Failed to purge organization")
			return
		}

		logrus.WithFields(logrus.Fields{
			"organization_id": id,
			"slug":            org.Slug,
		}).Warn("Organization purged")

		utils.OKResponse(c, "Organization purged", nil)
	}
}

// handleGetUsage returns the usage snapshot of an organization
func handleGetUsage(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		usage, err := app.Ledger.GetUsage(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization usage")
			return
		}

		utils.OKResponse(c, "Usage retrieved successfully", usage)
	}
}

// handleGetLimits returns the limit report of an organization
func handleGetLimits(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		report, err := app.Ledger.CheckLimits(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err, "Failed to check organization limits")
			return
		}

		utils.OKResponse(c, "Limits retrieved successfully", report)
	}
}

// handleGetActivity returns the audit entries of the last day
func handleGetActivity(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		since := time.Now().UTC().Add(-activityWindow)
		entries, err := app.Audit.List(c.Request.Context(), id, since, activityLimit)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch organization activity")
			return
		}

		utils.OKResponse(c, "Activity retrieved successfully", entries)
	}
}

// handleResetUsage zeroes the monthly counters (super admin only)
func handleResetUsage(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := organizationID(c)
		if !ok {
			return
		}

		if err := app.Orgs.ResetMonthlyCounters(c.Request.Context(), id); err != nil {
			writeStoreError(c, err, "Failed to reset usage")
			return
		}

		record(app, c, auditEvent(c, id, tenancy.ActionUsageReset, nil))
		utils.OKResponse(c, "Monthly usage reset", nil)
	}
}

// handleListUsers lists the users visible to the request's organization context
func handleListUsers(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		oc, _ := middleware.GetOrganizationContext(c)

		users, err := app.Users.List(c.Request.Context(), oc)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch users")
			return
		}

		utils.OKResponse(c, "Users retrieved successfully", users)
	}
}

// handleListDocuments lists the documents visible to the request's organization context
func handleListDocuments(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		oc, _ := middleware.GetOrganizationContext(c)

		docs, err := app.Documents.List(c.Request.Context(), oc)
		if err != nil {
			writeStoreError(c, err, "Failed to fetch documents")
			return
		}

		utils.OKResponse(c, "Documents retrieved successfully", docs)
	}
}
