package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/edu-tenancy/shared/metrics"
	"github.com/pavitra93/edu-tenancy/shared/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	block    chan struct{}
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func auditEntry(id uint64, orgID uuid.UUID) *models.AuditLog {
	resource := "organization"
	return &models.AuditLog{
		ID:             id,
		OrganizationID: &orgID,
		Action:         "organization_updated",
		Resource:       &resource,
		Details:        models.JSONMap{"name": "Acme"},
		CreatedAt:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAuditPublisher_PublishesKeyedMessages(t *testing.T) {
	w := &fakeWriter{}
	p := newAuditPublisher(w, "audit-events", 2, 10)
	orgID := uuid.New()

	require.NoError(t, p.Publish(auditEntry(1, orgID)))
	require.NoError(t, p.Publish(auditEntry(2, orgID)))
	require.NoError(t, p.Close())

	require.Len(t, w.messages, 2)
	assert.True(t, w.closed)
	for _, msg := range w.messages {
		assert.Equal(t, "audit-events", msg.Topic)
		assert.Equal(t, orgID.String(), string(msg.Key))

		var ev AuditEvent
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		assert.Equal(t, "organization_updated", ev.Action)
		assert.Equal(t, "organization", ev.Resource)
	}
}

func TestAuditPublisher_DropsWhenQueueFull(t *testing.T) {
	w := &fakeWriter{block: make(chan struct{})}
	p := newAuditPublisher(w, "audit-events", 1, 1)
	before := testutil.ToFloat64(metrics.AuditEventsDropped)

	// the single worker blocks on the first event, the second fills the queue
	require.NoError(t, p.Publish(auditEntry(1, uuid.New())))
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.Publish(auditEntry(2, uuid.New())))

	err := p.Publish(auditEntry(3, uuid.New()))

	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuditEventsDropped))

	close(w.block)
	require.NoError(t, p.Close())
	assert.Len(t, w.messages, 2)
}

func TestAuditPublisher_WriteFailureDoesNotStopWorkers(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := newAuditPublisher(w, "audit-events", 1, 10)

	require.NoError(t, p.Publish(auditEntry(1, uuid.New())))
	require.NoError(t, p.Publish(auditEntry(2, uuid.New())))

	require.NoError(t, p.Close())
	assert.Empty(t, w.messages)
}

func TestAuditPublisher_RejectsAfterClose(t *testing.T) {
	p := newAuditPublisher(&fakeWriter{}, "audit-events", 1, 1)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Publish(auditEntry(1, uuid.New())), ErrPublisherClosed)
}

func TestNewAuditEvent_OptionalFields(t *testing.T) {
	ev := NewAuditEvent(&models.AuditLog{ID: 9, Action: "organization_usage_reset"})

	assert.Equal(t, uint64(9), ev.ID)
	assert.Empty(t, ev.OrganizationID)
	assert.Empty(t, ev.UserID)
	assert.Empty(t, ev.Resource)
}
