package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrganizationTier is the subscription tier that drives default limits
type OrganizationTier string

const (
	TierFree       OrganizationTier = "free"
	TierBasic      OrganizationTier = "basic"
	TierPremium    OrganizationTier = "premium"
	TierEnterprise OrganizationTier = "enterprise"
)

// Valid reports whether the tier is one of the known tiers
func (t OrganizationTier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium, TierEnterprise:
		return true
	}
	return false
}

// Organization is the tenant root. Rows are soft-deactivated through IsActive
// and only physically removed by an explicit purge.
type Organization struct {
	ID               uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	Name             string           `json:"name" gorm:"not null"`
	Slug             string           `json:"slug" gorm:"uniqueIndex;not null"`
	Description      string           `json:"description,omitempty"`
	Domain           *string          `json:"domain,omitempty" gorm:"uniqueIndex"`
	Tier             OrganizationTier `json:"tier" gorm:"type:varchar(20);not null;default:'free'"`
	IsActive         bool             `json:"is_active" gorm:"not null;default:true"`
	MonthlyQuestions int64            `json:"monthly_questions" gorm:"not null;default:0"`
	MonthlyDocuments int64            `json:"monthly_documents" gorm:"not null;default:0"`
	StorageUsedBytes int64            `json:"storage_used_bytes" gorm:"not null;default:0"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`

	// Relationships
	Settings *OrganizationSettings `json:"settings,omitempty" gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE"`
	Users    []User                `json:"users,omitempty" gorm:"foreignKey:OrganizationID"`
}

// TableName returns the table name for the Organization model
func (Organization) TableName() string {
	return "organizations"
}

// BeforeCreate assigns an id when the caller did not
func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrganizationSettings holds the per-organization limits. It is created in the
// same transaction as its Organization.
type OrganizationSettings struct {
	ID                   uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID       uuid.UUID `json:"organization_id" gorm:"type:uuid;uniqueIndex;not null"`
	MaxUsers             int64     `json:"max_users" gorm:"not null"`
	MaxDocuments         int64     `json:"max_documents" gorm:"not null"`
	MaxQuestionsPerMonth int64     `json:"max_questions_per_month" gorm:"not null"`
	MaxStorageBytes      int64     `json:"max_storage_bytes" gorm:"not null"`
	EvaluationsEnabled   bool      `json:"evaluations_enabled" gorm:"not null;default:false"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName returns the table name for the OrganizationSettings model
func (OrganizationSettings) TableName() string {
	return "organization_settings"
}

func (s *OrganizationSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Document is an organization-owned document counted against MaxDocuments.
// OrganizationID is nil for legacy rows that predate multi-tenancy.
type Document struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID *uuid.UUID `json:"organization_id" gorm:"type:uuid;index"`
	CreatedByID    *uuid.UUID `json:"created_by_id,omitempty" gorm:"type:uuid"`
	Title          string     `json:"title" gorm:"not null"`
	SizeBytes      int64      `json:"size_bytes" gorm:"not null;default:0"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the table name for the Document model
func (Document) TableName() string {
	return "documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
