package tenancy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/metrics"
	"github.com/pavitra93/edu-tenancy/shared/models"
)

// Audit actions recorded by the tenant service
const (
	ActionOrganizationCreated         = "organization_created"
	ActionOrganizationUpdated         = "organization_updated"
	ActionOrganizationSettingsUpdated = "organization_settings_updated"
	ActionOrganizationDeactivated     = "organization_deactivated"
	ActionOrganizationReactivated     = "organization_reactivated"
	ActionOrganizationPurged          = "organization_purged"
	ActionUsageReset                  = "organization_usage_reset"
	ActionDocumentCreated             = "document_created"
)

// AuditStore is append-only: entries can be added and listed, never changed
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditLog) error
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, since time.Time, limit int) ([]models.AuditLog, error)
}

// Publisher forwards stored entries to an event stream
type Publisher interface {
	Publish(entry *models.AuditLog) error
}

// FailureReporter receives audit appends that failed
type FailureReporter func(event Event, err error)

// RequestMeta is best-effort request provenance; nil fields were not available
type RequestMeta struct {
	IPAddress *string
	UserAgent *string
}

// RequestMetaFromHeaders extracts client ip and user agent
func RequestMetaFromHeaders(h http.Header) *RequestMeta {
	if h == nil {
		return nil
	}

	meta := &RequestMeta{}
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			meta.IPAddress = &ip
		}
	}
	if meta.IPAddress == nil {
		if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
			meta.IPAddress = &ip
		}
	}
	if ua := h.Get("User-Agent"); ua != "" {
		meta.UserAgent = &ua
	}
	return meta
}

// Event describes one privileged mutation
type Event struct {
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
	Action         string
	Resource       string
	ResourceID     string
	Details        map[string]interface{}
	Meta           *RequestMeta
}

// Recorder appends audit entries. A failed append never aborts the action it
// accompanies; it is logged, counted and reported instead.
type Recorder struct {
	store     AuditStore
	publisher Publisher
	onFailure FailureReporter
	now       func() time.Time
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithPublisher forwards every stored entry to p
func WithPublisher(p Publisher) RecorderOption {
	return func(r *Recorder) { r.publisher = p }
}

// WithFailureReporter sets the escalation hook for failed appends
func WithFailureReporter(fn FailureReporter) RecorderOption {
	return func(r *Recorder) { r.onFailure = fn }
}

// WithClock overrides the clock used for CreatedAt
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates an audit recorder
func NewRecorder(store AuditStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one entry. The returned error is informational; callers
// should not fail their primary action on it.
func (r *Recorder) Record(ctx context.Context, ev Event) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		OrganizationID: ev.OrganizationID,
		UserID:         ev.UserID,
		Action:         ev.Action,
		Resource:       optionalString(ev.Resource),
		ResourceID:     optionalString(ev.ResourceID),
		CreatedAt:      r.now().UTC(),
	}
	if len(ev.Details) > 0 {
		entry.Details = models.JSONMap(ev.Details)
	}
	if ev.Meta != nil {
		entry.IPAddress = ev.Meta.IPAddress
		entry.UserAgent = ev.Meta.UserAgent
	}

	if err := r.store.Append(ctx, entry); err != nil {
		r.fail(ev, err)
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(entry); err != nil {
			logrus.WithFields(logrus.Fields{
				"audit_id": entry.ID,
				"action":   entry.Action,
				"error":    err,
			}).Warn("Failed to publish audit event")
		}
	}

	return entry, nil
}

// List returns an organization's entries since the given time, newest first
func (r *Recorder) List(ctx context.Context, organizationID uuid.UUID, since time.Time, limit int) ([]models.AuditLog, error) {
	return r.store.ListByOrganization(ctx, organizationID, since, limit)
}

func (r *Recorder) fail(ev Event, err error) {
	metrics.AuditWriteFailures.WithLabelValues(ev.Action).Inc()

	fields := logrus.Fields{
		"action": ev.Action,
		"error":  err,
	}
	if ev.OrganizationID != nil {
		fields["organization_id"] = ev.OrganizationID.String()
	}
	if ev.UserID != nil {
		fields["user_id"] = ev.UserID.String()
	}
	logrus.WithFields(fields).Error("Failed to record audit entry")

	if r.onFailure != nil {
		r.onFailure(ev, err)
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
