package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
)

func TestAuditLog_OrderingBreaksTiesByInsertion(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))
	ctx := context.Background()
	orgID := uuid.New()
	same := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	for _, action := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Append(ctx, &models.AuditLog{OrganizationID: &orgID, Action: action, CreatedAt: same}))
	}
	require.NoError(t, repo.Append(ctx, &models.AuditLog{OrganizationID: &orgID, Action: "older", CreatedAt: same.Add(-time.Minute)}))

	entries, err := repo.ListByOrganization(ctx, orgID, time.Time{}, 0)

	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, []string{"third", "second", "first", "older"}, []string{
		entries[0].Action, entries[1].Action, entries[2].Action, entries[3].Action,
	})
}

func TestAuditLog_SinceAndLimit(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))
	ctx := context.Background()
	orgID, otherID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	require.NoError(t, repo.Append(ctx, &models.AuditLog{OrganizationID: &orgID, Action: "stale", CreatedAt: now.Add(-48 * time.Hour)}))
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx, &models.AuditLog{OrganizationID: &orgID, Action: "recent", CreatedAt: now}))
	}
	require.NoError(t, repo.Append(ctx, &models.AuditLog{OrganizationID: &otherID, Action: "foreign", CreatedAt: now}))

	entries, err := repo.ListByOrganization(ctx, orgID, now.Add(-24*time.Hour), 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "recent", e.Action)
	}
}

func TestAuditLog_DetailsRoundTrip(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))
	ctx := context.Background()
	orgID := uuid.New()
	ip := "203.0.113.9"

	require.NoError(t, repo.Append(ctx, &models.AuditLog{
		OrganizationID: &orgID,
		Action:         tenancy.ActionOrganizationUpdated,
		Details:        models.JSONMap{"name": "Acme"},
		IPAddress:      &ip,
		CreatedAt:      time.Now().UTC(),
	}))

	entries, err := repo.ListByOrganization(ctx, orgID, time.Time{}, 10)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotZero(t, entries[0].ID)
	assert.Equal(t, "Acme", entries[0].Details["name"])
	assert.Equal(t, ip, *entries[0].IPAddress)
	assert.Nil(t, entries[0].UserAgent)
}

func TestAuditLogRepository_SatisfiesAppendOnlyStore(t *testing.T) {
	var _ tenancy.AuditStore = NewAuditLogRepository(nil)
}
