package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/metrics"
	"github.com/pavitra93/edu-tenancy/shared/models"
)

// ErrQueueFull is returned when the publish queue has no room
var ErrQueueFull = errors.New("audit event queue full, event dropped")

// ErrPublisherClosed is returned after Close
var ErrPublisherClosed = errors.New("audit publisher closed")

// messageWriter is the part of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditEvent is the wire form of an audit entry on the event stream
type AuditEvent struct {
	ID             uint64                 `json:"id"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	UserID         string                 `json:"user_id,omitempty"`
	Action         string                 `json:"action"`
	Resource       string                 `json:"resource,omitempty"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewAuditEvent converts a stored entry
func NewAuditEvent(entry *models.AuditLog) AuditEvent {
	ev := AuditEvent{
		ID:        entry.ID,
		Action:    entry.Action,
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
	if entry.OrganizationID != nil {
		ev.OrganizationID = entry.OrganizationID.String()
	}
	if entry.UserID != nil {
		ev.UserID = entry.UserID.String()
	}
	if entry.Resource != nil {
		ev.Resource = *entry.Resource
	}
	if entry.ResourceID != nil {
		ev.ResourceID = *entry.ResourceID
	}
	return ev
}

// AuditPublisher streams audit entries to Kafka from a bounded queue drained
// by a fixed worker pool. Publish never blocks the request path.
type AuditPublisher struct {
	writer       messageWriter
	topic        string
	queue        chan AuditEvent
	workerCount  int
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAuditPublisher creates a publisher writing to topic on broker
func NewAuditPublisher(broker, topic string, workers, queueSize int) *AuditPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return newAuditPublisher(writer, topic, workers, queueSize)
}

func newAuditPublisher(writer messageWriter, topic string, workers, queueSize int) *AuditPublisher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &AuditPublisher{
		writer:       writer,
		topic:        topic,
		queue:        make(chan AuditEvent, queueSize),
		workerCount:  workers,
		writeTimeout: 5 * time.Second,
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logrus.WithFields(logrus.Fields{"topic": topic, "workers": workers}).Info("Audit publisher started")

	return p
}

// Publish queues an entry; a full queue drops the event
func (p *AuditPublisher) Publish(entry *models.AuditLog) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- NewAuditEvent(entry):
		return nil
	default:
		metrics.AuditEventsDropped.Inc()
		return ErrQueueFull
	}
}

func (p *AuditPublisher) worker(id int) {
	defer p.wg.Done()

	for ev := range p.queue {
		if err := p.send(ev); err != nil {
			logrus.WithFields(logrus.Fields{
				"worker":   id,
				"audit_id": ev.ID,
				"action":   ev.Action,
				"error":    err,
			}).Error("Failed to send audit event")
		}
	}
}

func (p *AuditPublisher) send(ev AuditEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.OrganizationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("audit")},
			{Key: "action", Value: []byte(ev.Action)},
			{Key: "audit_id", Value: []byte(strconv.FormatUint(ev.ID, 10))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write audit event to Kafka: %w", err)
	}
	return nil
}

// Close stops accepting events, drains the queue and closes the writer
func (p *AuditPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	logrus.Info("Audit publisher stopped")
	return nil
}
