package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
)

// DocumentRepository stores organization-owned documents
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document and charges its organization's monthly document
// and storage counters in the same transaction.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		if doc.OrganizationID == nil {
			return nil
		}
		return incrementUsage(tx, *doc.OrganizationID, UsageDelta{
			Documents:    1,
			StorageBytes: doc.SizeBytes,
		})
	})
}

// List returns the documents visible to the organization context
func (r *DocumentRepository) List(ctx context.Context, oc *tenancy.OrganizationContext) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Scopes(tenancy.Scope(oc)).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}
