package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pavitra93/edu-tenancy/shared/config"
	"github.com/pavitra93/edu-tenancy/shared/models"
)

// newTestDB opens a private in-memory database with the tenancy schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

func createOrg(t *testing.T, repo *OrganizationRepository, name, slug string, tier models.OrganizationTier) *models.Organization {
	t.Helper()

	org := &models.Organization{Name: name, Slug: slug, Tier: tier}
	require.NoError(t, repo.Create(context.Background(), org))
	return org
}
