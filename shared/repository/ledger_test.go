package repository

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
)

func seedUsage(t *testing.T, orgs *OrganizationRepository, users *UserRepository, docs *DocumentRepository) *models.Organization {
	t.Helper()
	ctx := context.Background()

	org := createOrg(t, orgs, "Tech Academy", "tech-academy", models.TierBasic)
	for _, email := range []string{"a@tech.edu", "b@tech.edu", "c@tech.edu"} {
		require.NoError(t, users.Create(ctx, &models.User{Email: email, Role: models.RoleTeacher, OrganizationID: &org.ID}))
	}
	require.NoError(t, docs.Create(ctx, &models.Document{OrganizationID: &org.ID, Title: "Syllabus", SizeBytes: 4096}))
	require.NoError(t, orgs.IncrementUsage(ctx, org.ID, UsageDelta{Questions: 17}))
	return org
}

func TestGetUsage_RepeatableWithoutMutation(t *testing.T) {
	db := newTestDB(t)
	orgs := NewOrganizationRepository(db)
	org := seedUsage(t, orgs, NewUserRepository(db), NewDocumentRepository(db))
	ledger := tenancy.NewLedger(orgs)
	ctx := context.Background()

	first, err := ledger.GetUsage(ctx, org.ID)
	require.NoError(t, err)
	second, err := ledger.GetUsage(ctx, org.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, tenancy.UsageSnapshot{
		Users:            3,
		Documents:        1,
		MonthlyQuestions: 17,
		MonthlyDocuments: 1,
		StorageUsedBytes: 4096,
	}, first)

	report1, err := ledger.CheckLimits(ctx, org.ID)
	require.NoError(t, err)
	report2, err := ledger.CheckLimits(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, report1.Violations, report2.Violations)
	assert.Equal(t, report1.Usage, report2.Usage)
}

func TestGetUsage_CountersNeverDecreaseOnIncrement(t *testing.T) {
	db := newTestDB(t)
	orgs := NewOrganizationRepository(db)
	docs := NewDocumentRepository(db)
	org := seedUsage(t, orgs, NewUserRepository(db), docs)
	ledger := tenancy.NewLedger(orgs)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("every snapshot field is at least its previous value", prop.ForAll(
		func(questions, storage int64, addDocument bool) bool {
			before, err := ledger.GetUsage(ctx, org.ID)
			if err != nil {
				return false
			}

			if addDocument {
				err = docs.Create(ctx, &models.Document{OrganizationID: &org.ID, Title: "notes", SizeBytes: storage})
			} else {
				err = orgs.IncrementUsage(ctx, org.ID, UsageDelta{Questions: questions, StorageBytes: storage})
			}
			if err != nil {
				return false
			}

			after, err := ledger.GetUsage(ctx, org.ID)
			if err != nil {
				return false
			}
			return after.Users >= before.Users &&
				after.Documents >= before.Documents &&
				after.MonthlyQuestions >= before.MonthlyQuestions &&
				after.MonthlyDocuments >= before.MonthlyDocuments &&
				after.StorageUsedBytes >= before.StorageUsedBytes
		},
		gen.Int64Range(0, 500),
		gen.Int64Range(0, 1<<20),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
