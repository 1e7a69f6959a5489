package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/edu-tenancy/shared/models"
)

// AuditLogRepository is the append-only audit store. It deliberately has no
// update or delete.
type AuditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append inserts one entry; the store assigns its sequence id
func (r *AuditLogRepository) Append(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByOrganization returns entries created at or after since, newest first.
// A zero since returns the full history up to limit.
func (r *AuditLogRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID, since time.Time, limit int) ([]models.AuditLog, error) {
	query := r.db.WithContext(ctx).Where("organization_id = ?", organizationID)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []models.AuditLog
	err := query.Order("created_at DESC").Order("id DESC").Find(&logs).Error
	return logs, err
}
