package tenancy

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pavitra93/edu-tenancy/shared/models"
)

// Violation messages, reported in this order
const (
	ViolationUsers            = "Maximum user limit reached"
	ViolationDocuments        = "Maximum document limit reached"
	ViolationMonthlyQuestions = "Monthly question limit reached"
	ViolationStorage          = "Storage limit reached"
)

// UsageSnapshot is the current consumption of one organization. Users and
// Documents are live counts; the rest are running counters on the
// organization row.
type UsageSnapshot struct {
	Users            int64 `json:"users"`
	Documents        int64 `json:"documents"`
	MonthlyQuestions int64 `json:"monthly_questions"`
	MonthlyDocuments int64 `json:"monthly_documents"`
	StorageUsedBytes int64 `json:"storage_used_bytes"`
}

// LimitReport is the result of CheckLimits
type LimitReport struct {
	WithinLimits bool                        `json:"within_limits"`
	Violations   []string                    `json:"violations"`
	Usage        UsageSnapshot               `json:"usage"`
	Limits       models.OrganizationSettings `json:"limits"`
}

// Err returns a *QuotaExceededError when the report has violations
func (r *LimitReport) Err() error {
	if r.WithinLimits {
		return nil
	}
	return &QuotaExceededError{Violations: r.Violations}
}

// UsageStore is the read side the ledger needs
type UsageStore interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetSettings(ctx context.Context, organizationID uuid.UUID) (*models.OrganizationSettings, error)
	CountUsers(ctx context.Context, organizationID uuid.UUID) (int64, error)
	CountDocuments(ctx context.Context, organizationID uuid.UUID) (int64, error)
}

// Ledger measures usage against limits. It never mutates state and never
// enforces; callers decide what to do with a report.
type Ledger struct {
	store UsageStore
}

// NewLedger creates a ledger over the given store
func NewLedger(store UsageStore) *Ledger {
	return &Ledger{store: store}
}

// GetUsage aggregates the usage snapshot of an organization
func (l *Ledger) GetUsage(ctx context.Context, organizationID uuid.UUID) (UsageSnapshot, error) {
	org, err := l.store.GetOrganization(ctx, organizationID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("failed to load organization counters: %w", err)
	}

	users, err := l.store.CountUsers(ctx, organizationID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("failed to count users: %w", err)
	}

	documents, err := l.store.CountDocuments(ctx, organizationID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("failed to count documents: %w", err)
	}

	return UsageSnapshot{
		Users:            users,
		Documents:        documents,
		MonthlyQuestions: org.MonthlyQuestions,
		MonthlyDocuments: org.MonthlyDocuments,
		StorageUsedBytes: org.StorageUsedBytes,
	}, nil
}

// CheckLimits compares usage with the organization settings. Reaching a limit
// counts as a violation.
func (l *Ledger) CheckLimits(ctx context.Context, organizationID uuid.UUID) (*LimitReport, error) {
	usage, err := l.GetUsage(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	settings, err := l.store.GetSettings(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization settings: %w", err)
	}

	return Evaluate(usage, *settings), nil
}

// Evaluate builds a LimitReport from a snapshot and settings
func Evaluate(usage UsageSnapshot, limits models.OrganizationSettings) *LimitReport {
	violations := []string{}

	if usage.Users >= limits.MaxUsers {
		violations = append(violations, ViolationUsers)
	}
	if usage.Documents >= limits.MaxDocuments {
		violations = append(violations, ViolationDocuments)
	}
	if usage.MonthlyQuestions >= limits.MaxQuestionsPerMonth {
		violations = append(violations, ViolationMonthlyQuestions)
	}
	if usage.StorageUsedBytes >= limits.MaxStorageBytes {
		violations = append(violations, ViolationStorage)
	}

	return &LimitReport{
		WithinLimits: len(violations) == 0,
		Violations:   violations,
		Usage:        usage,
		Limits:       limits,
	}
}
