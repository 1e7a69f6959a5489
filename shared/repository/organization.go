package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
)

// OrganizationRepository persists organizations, their settings and counters
type OrganizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// UsageDelta is an atomic increment of the running counters
type UsageDelta struct {
	Questions    int64
	Documents    int64
	StorageBytes int64
}

// SettingsUpdate carries explicit limit edits; nil fields are left unchanged
type SettingsUpdate struct {
	MaxUsers             *int64 `json:"max_users" binding:"omitempty,min=0"`
	MaxDocuments         *int64 `json:"max_documents" binding:"omitempty,min=0"`
	MaxQuestionsPerMonth *int64 `json:"max_questions_per_month" binding:"omitempty,min=0"`
	MaxStorageBytes      *int64 `json:"max_storage_bytes" binding:"omitempty,min=0"`
	EvaluationsEnabled   *bool  `json:"evaluations_enabled"`
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// uniqueViolation maps a unique index failure on slug or domain to its
// sentinel. Postgres reports the index name; sqlite names the column.
func uniqueViolation(err error) error {
	var detail string
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		detail = pgErr.ConstraintName
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		detail = err.Error()
	default:
		return err
	}

	switch {
	case strings.Contains(detail, "domain"):
		return tenancy.ErrDomainTaken
	case strings.Contains(detail, "slug"):
		return tenancy.ErrSlugTaken
	}
	return err
}

// FindActiveByID returns an active organization by id
func (r *OrganizationRepository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&org).Error; err != nil {
		return nil, notFound(err, tenancy.ErrOrganizationNotFound)
	}
	return &org, nil
}

// FindActiveBySlug returns an active organization by slug
func (r *OrganizationRepository) FindActiveBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("slug = ? AND is_active = ?", slug, true).First(&org).Error; err != nil {
		return nil, notFound(err, tenancy.ErrOrganizationNotFound)
	}
	return &org, nil
}

// GetOrganization returns an organization regardless of its active flag
func (r *OrganizationRepository) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, notFound(err, tenancy.ErrOrganizationNotFound)
	}
	return &org, nil
}

// GetWithSettings returns an organization with its settings preloaded
func (r *OrganizationRepository) GetWithSettings(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Preload("Settings").Where("id = ?", id).First(&org).Error; err != nil {
		return nil, notFound(err, tenancy.ErrOrganizationNotFound)
	}
	return &org, nil
}

// Lookup finds an organization by id, slug or domain
func (r *OrganizationRepository) Lookup(ctx context.Context, identifier string) (*models.Organization, error) {
	query := r.db.WithContext(ctx).Preload("Settings")
	if id, err := uuid.Parse(identifier); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("slug = ? OR domain = ?", identifier, identifier)
	}

	var org models.Organization
	if err := query.First(&org).Error; err != nil {
		return nil, notFound(err, tenancy.ErrOrganizationNotFound)
	}
	return &org, nil
}

// List returns every organization with settings, newest first
func (r *OrganizationRepository) List(ctx context.Context) ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.db.WithContext(ctx).
		Preload("Settings").
		Order("created_at DESC").
		Find(&orgs).Error
	return orgs, err
}

// GetSettings returns the settings row of an organization
func (r *OrganizationRepository) GetSettings(ctx context.Context, organizationID uuid.UUID) (*models.OrganizationSettings, error) {
	var settings models.OrganizationSettings
	if err := r.db.WithContext(ctx).Where("organization_id = ?", organizationID).First(&settings).Error; err != nil {
		return nil, notFound(err, tenancy.ErrSettingsNotFound)
	}
	return &settings, nil
}

// CountUsers returns the live user count of an organization
func (r *OrganizationRepository) CountUsers(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("organization_id = ?", organizationID).Count(&count).Error
	return count, err
}

// CountDocuments returns the live document count of an organization
func (r *OrganizationRepository) CountDocuments(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Document{}).Where("organization_id = ?", organizationID).Count(&count).Error
	return count, err
}

// IsSlugAvailable reports whether slug is unused, ignoring excludeID
func (r *OrganizationRepository) IsSlugAvailable(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	return r.available(ctx, "slug", slug, excludeID)
}

// IsDomainAvailable reports whether domain is unused, ignoring excludeID
func (r *OrganizationRepository) IsDomainAvailable(ctx context.Context, domain string, excludeID *uuid.UUID) (bool, error) {
	return r.available(ctx, "domain", domain, excludeID)
}

func (r *OrganizationRepository) available(ctx context.Context, column, value string, excludeID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Organization{}).Where(column+" = ?", value)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

// Create inserts an organization together with its tier-default settings
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	org.IsActive = true

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Settings", "Users").Create(org).Error; err != nil {
			return fmt.Errorf("failed to create organization: %w", uniqueViolation(err))
		}

		settings := tenancy.LimitsForTier(org.Tier)
		settings.OrganizationID = org.ID
		if err := tx.Create(&settings).Error; err != nil {
			return fmt.Errorf("failed to create organization settings: %w", err)
		}

		org.Settings = &settings
		return nil
	})
}

// UpdateDetails writes name, slug, description and domain. A non-nil tier is
// changed in the same transaction, so a failed tier change leaves the
// organization untouched.
func (r *OrganizationRepository) UpdateDetails(ctx context.Context, org *models.Organization, tier *models.OrganizationTier) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Organization{}).
			Where("id = ?", org.ID).
			Updates(map[string]interface{}{
				"name":        org.Name,
				"slug":        org.Slug,
				"description": org.Description,
				"domain":      org.Domain,
			})
		if res.Error != nil {
			return uniqueViolation(res.Error)
		}
		if res.RowsAffected == 0 {
			return tenancy.ErrOrganizationNotFound
		}

		if tier != nil {
			return changeTier(tx, org.ID, *tier)
		}
		return nil
	})
}

// changeTier sets the tier and re-applies the tier defaults to the settings
func changeTier(tx *gorm.DB, id uuid.UUID, tier models.OrganizationTier) error {
	res := tx.Model(&models.Organization{}).Where("id = ?", id).Update("tier", tier)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tenancy.ErrOrganizationNotFound
	}

	var settings models.OrganizationSettings
	if err := tx.Where("organization_id = ?", id).First(&settings).Error; err != nil {
		return notFound(err, tenancy.ErrSettingsNotFound)
	}
	tenancy.ApplyTier(&settings, tier)

	// Select forces zero values such as EvaluationsEnabled=false to be written
	return tx.Model(&settings).
		Select("MaxUsers", "MaxDocuments", "MaxQuestionsPerMonth", "MaxStorageBytes", "EvaluationsEnabled").
		Updates(&settings).Error
}

// UpdateSettings applies explicit limit overrides
func (r *OrganizationRepository) UpdateSettings(ctx context.Context, organizationID uuid.UUID, upd SettingsUpdate) (*models.OrganizationSettings, error) {
	fields := map[string]interface{}{}
	if upd.MaxUsers != nil {
		fields["max_users"] = *upd.MaxUsers
	}
	if upd.MaxDocuments != nil {
		fields["max_documents"] = *upd.MaxDocuments
	}
	if upd.MaxQuestionsPerMonth != nil {
		fields["max_questions_per_month"] = *upd.MaxQuestionsPerMonth
	}
	if upd.MaxStorageBytes != nil {
		fields["max_storage_bytes"] = *upd.MaxStorageBytes
	}
	if upd.EvaluationsEnabled != nil {
		fields["evaluations_enabled"] = *upd.EvaluationsEnabled
	}

	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&models.OrganizationSettings{}).
			Where("organization_id = ?", organizationID).
			Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, tenancy.ErrSettingsNotFound
		}
	}

	return r.GetSettings(ctx, organizationID)
}

// SetActive deactivates or reactivates an organization
func (r *OrganizationRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.Organization{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tenancy.ErrOrganizationNotFound
	}
	return nil
}

// Purge irreversibly deletes an organization and everything it owns. Audit
// entries are kept.
func (r *OrganizationRepository) Purge(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("organization_id = ?", id).Delete(&models.Document{}).Error; err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("failed to delete users: %w", err)
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.OrganizationSettings{}).Error; err != nil {
			return fmt.Errorf("failed to delete settings: %w", err)
		}

		res := tx.Where("id = ?", id).Delete(&models.Organization{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete organization: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return tenancy.ErrOrganizationNotFound
		}
		return nil
	})
}

// IncrementUsage adds delta to the running counters with a single
// UPDATE ... SET col = col + ?, so concurrent increments never lose updates.
func (r *OrganizationRepository) IncrementUsage(ctx context.Context, id uuid.UUID, delta UsageDelta) error {
	return incrementUsage(r.db.WithContext(ctx), id, delta)
}

func incrementUsage(db *gorm.DB, id uuid.UUID, delta UsageDelta) error {
	fields := map[string]interface{}{}
	if delta.Questions != 0 {
		fields["monthly_questions"] = gorm.Expr("monthly_questions + ?", delta.Questions)
	}
	if delta.Documents != 0 {
		fields["monthly_documents"] = gorm.Expr("monthly_documents + ?", delta.Documents)
	}
	if delta.StorageBytes != 0 {
		fields["storage_used_bytes"] = gorm.Expr("storage_used_bytes + ?", delta.StorageBytes)
	}
	if len(fields) == 0 {
		return nil
	}

	res := db.Model(&models.Organization{}).Where("id = ?", id).UpdateColumns(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to increment usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return tenancy.ErrOrganizationNotFound
	}
	return nil
}

// ResetMonthlyCounters zeroes the monthly question and document counters
func (r *OrganizationRepository) ResetMonthlyCounters(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Organization{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"monthly_questions": 0,
			"monthly_documents": 0,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tenancy.ErrOrganizationNotFound
	}
	return nil
}
