package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
)

func TestDocumentCreate_ChargesCounters(t *testing.T) {
	db := newTestDB(t)
	orgs := NewOrganizationRepository(db)
	docs := NewDocumentRepository(db)
	ctx := context.Background()
	org := createOrg(t, orgs, "Acme", "acme", models.TierFree)

	require.NoError(t, docs.Create(ctx, &models.Document{OrganizationID: &org.ID, Title: "a", SizeBytes: 100}))
	require.NoError(t, docs.Create(ctx, &models.Document{OrganizationID: &org.ID, Title: "b", SizeBytes: 50}))

	usage, err := tenancy.NewLedger(orgs).GetUsage(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage.Documents)
	assert.Equal(t, int64(2), usage.MonthlyDocuments)
	assert.Equal(t, int64(150), usage.StorageUsedBytes)
}

func TestDocumentCreate_UnknownOrganizationRollsBack(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db)
	ctx := context.Background()
	ghost := uuid.New()

	err := docs.Create(ctx, &models.Document{OrganizationID: &ghost, Title: "orphan"})

	assert.ErrorIs(t, err, tenancy.ErrOrganizationNotFound)
	var count int64
	require.NoError(t, db.Model(&models.Document{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDocumentList_ScopedByContext(t *testing.T) {
	db := newTestDB(t)
	orgs := NewOrganizationRepository(db)
	docs := NewDocumentRepository(db)
	ctx := context.Background()
	a := createOrg(t, orgs, "A", "a", models.TierFree)
	b := createOrg(t, orgs, "B", "b", models.TierFree)

	require.NoError(t, docs.Create(ctx, &models.Document{OrganizationID: &a.ID, Title: "a1"}))
	require.NoError(t, docs.Create(ctx, &models.Document{OrganizationID: &b.ID, Title: "b1"}))

	listA, err := docs.List(ctx, &tenancy.OrganizationContext{OrganizationID: &a.ID})
	require.NoError(t, err)
	require.Len(t, listA, 1)
	assert.Equal(t, "a1", listA[0].Title)

	all, err := docs.List(ctx, &tenancy.OrganizationContext{IsSuperAdmin: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
