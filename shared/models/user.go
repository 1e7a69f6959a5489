package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a principal. OrganizationID is nil only for super admins.
type User struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Email          string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name           string     `json:"name,omitempty"`
	Role           UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'student'"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`

	Organization *Organization `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`
}

type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin"
	RoleAdmin      UserRole = "admin"
	RoleTeacher    UserRole = "teacher"
	RoleStudent    UserRole = "student"
	RoleGuardian   UserRole = "guardian"
)

// ParseUserRole validates a raw role string at the identity boundary
func ParseUserRole(raw string) (UserRole, error) {
	switch role := UserRole(raw); role {
	case RoleSuperAdmin, RoleAdmin, RoleTeacher, RoleStudent, RoleGuardian:
		return role, nil
	}
	return "", fmt.Errorf("unknown user role %q", raw)
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
