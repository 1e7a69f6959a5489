package tenancy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pavitra93/edu-tenancy/shared/models"
)

func TestHasAccess(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()

	tests := []struct {
		name   string
		oc     *OrganizationContext
		target *uuid.UUID
		want   bool
	}{
		{"nil context", nil, &orgA, false},
		{"super admin any org", &OrganizationContext{IsSuperAdmin: true}, &orgB, true},
		{"super admin unowned", &OrganizationContext{IsSuperAdmin: true}, nil, true},
		{"same org", &OrganizationContext{OrganizationID: &orgA}, &orgA, true},
		{"other org", &OrganizationContext{OrganizationID: &orgA}, &orgB, false},
		{"org user unowned target", &OrganizationContext{OrganizationID: &orgA}, nil, false},
		{"no org owned target", &OrganizationContext{}, &orgA, false},
		{"no org unowned target", &OrganizationContext{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAccess(tt.oc, tt.target))
		})
	}
}

func TestAuthorize(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()

	assert.NoError(t, Authorize(&OrganizationContext{OrganizationID: &orgA}, &orgA))
	assert.ErrorIs(t, Authorize(&OrganizationContext{OrganizationID: &orgA}, &orgB), ErrAccessDenied)
	assert.ErrorIs(t, Authorize(nil, &orgA), ErrAccessDenied)
}

func TestProperty_AccessIsolation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("non-super-admins only reach their own organization", prop.ForAll(
		func(same bool) bool {
			own := uuid.New()
			target := uuid.New()
			if same {
				target = own
			}
			oc := &OrganizationContext{OrganizationID: &own, UserRole: models.RoleTeacher}
			return HasAccess(oc, &target) == same
		},
		gen.Bool(),
	))

	properties.Property("super admins reach every organization", prop.ForAll(
		func(hasOwn bool) bool {
			oc := &OrganizationContext{IsSuperAdmin: true}
			if hasOwn {
				own := uuid.New()
				oc.OrganizationID = &own
			}
			target := uuid.New()
			return HasAccess(oc, &target)
		},
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestScope_FiltersByOrganization(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:scope?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Document{}))

	orgA, orgB := uuid.New(), uuid.New()
	require.NoError(t, db.Create(&[]models.Document{
		{OrganizationID: &orgA, Title: "a1"},
		{OrganizationID: &orgA, Title: "a2"},
		{OrganizationID: &orgB, Title: "b1"},
		{Title: "legacy"},
	}).Error)

	count := func(oc *OrganizationContext) int64 {
		var n int64
		require.NoError(t, db.Model(&models.Document{}).Scopes(Scope(oc)).Count(&n).Error)
		return n
	}

	assert.Equal(t, int64(2), count(&OrganizationContext{OrganizationID: &orgA}))
	assert.Equal(t, int64(1), count(&OrganizationContext{OrganizationID: &orgB}))
	assert.Equal(t, int64(1), count(&OrganizationContext{}))
	assert.Equal(t, int64(4), count(&OrganizationContext{IsSuperAdmin: true}))
	assert.Equal(t, int64(0), count(nil))
}
