package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters. Drops are never silent: every stage that sheds load
// increments DroppedTotal with its stage label.
var (
	PacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_packets_total",
		Help: "Packets accepted from the capture source, by protocol.",
	}, []string{"protocol"})

	ParseErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_parse_errors_total",
		Help: "Packets discarded because they could not be decoded.",
	})

	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_dropped_total",
		Help: "Items dropped under backpressure, by pipeline stage.",
	}, []string{"stage"})

	FlowsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_flows_closed_total",
		Help: "Flow records closed, by close reason.",
	}, []string{"reason"})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_detections_total",
		Help: "Classifier verdicts, by label.",
	}, []string{"label"})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_alerts_total",
		Help: "Finalized alerts, by severity.",
	}, []string{"severity"})

	AuditEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_audit_entries_total",
		Help: "Entries appended to the audit hash chain.",
	})

	AuditRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_audit_retries_total",
		Help: "Audit journal append retries.",
	})

	CaptureReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_capture_reconnects_total",
		Help: "Capture source reconnect attempts.",
	})

	ActiveFlows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netsentry_active_flows",
		Help: "Open flow records across all shards.",
	})

	TrackedSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netsentry_tracked_sources",
		Help: "Source addresses with live threat state.",
	})
)
