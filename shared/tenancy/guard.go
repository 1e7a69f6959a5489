package tenancy

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HasAccess reports whether the context may read or write data owned by
// target. A nil target is the "no organization" value used by legacy rows.
func HasAccess(oc *OrganizationContext, target *uuid.UUID) bool {
	if oc == nil {
		return false
	}
	if oc.IsSuperAdmin {
		return true
	}
	if oc.OrganizationID == nil || target == nil {
		return oc.OrganizationID == nil && target == nil
	}
	return *oc.OrganizationID == *target
}

// Authorize is HasAccess in error form. A denial is never an empty result.
func Authorize(oc *OrganizationContext, target *uuid.UUID) error {
	if !HasAccess(oc, target) {
		return ErrAccessDenied
	}
	return nil
}

// Scope injects the organization predicate into a gorm query. Super admins
// see every row; users without an organization only see unowned rows.
func Scope(oc *OrganizationContext) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case oc == nil:
			return db.Where("1 = 0")
		case oc.IsSuperAdmin:
			return db
		case oc.OrganizationID == nil:
			return db.Where("organization_id IS NULL")
		default:
			return db.Where("organization_id = ?", *oc.OrganizationID)
		}
	}
}
