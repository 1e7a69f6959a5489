package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessDenied counts access guard denials
	AccessDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_access_denied_total",
			Help: "Total number of requests denied by the organization access guard",
		},
		[]string{"service"},
	)

	// QuotaViolations counts rejected quota-gated actions per breached dimension
	QuotaViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_quota_violations_total",
			Help: "Total number of quota violations reported when admitting an action",
		},
		[]string{"service", "violation"},
	)

	// AuditWriteFailures counts audit entries that could not be appended
	AuditWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_audit_write_failures_total",
			Help: "Total number of audit log appends that failed",
		},
		[]string{"action"},
	)

	// AuditEventsDropped counts audit events not handed to the event stream
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenancy_audit_events_dropped_total",
			Help: "Total number of audit events dropped because the publish queue was full",
		},
	)
)
