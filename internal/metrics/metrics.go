package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicecall_calls_active",
		Help: "Currently active voice calls",
	})

	CallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecall_calls_total",
		Help: "Total voice calls that reached the active state",
	})

	CallStartFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecall_start_failures_total",
		Help: "Call starts that ended in teardown, by reason",
	}, []string{"reason"})

	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicecall_duration_seconds",
		Help:    "Duration of finished calls",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicecall_flush_duration_seconds",
		Help:    "Latency of a persistence flush (call record update plus transcript append)",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
	})

	FlushSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecall_flush_skipped_total",
		Help: "Periodic flushes skipped because one was still in flight",
	})

	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecall_persistence_errors_total",
		Help: "Persistence failures by operation",
	}, []string{"operation"})

	TranscriptEntriesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecall_transcript_entries_saved_total",
		Help: "Transcript entries acknowledged by the transcript store",
	})

	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecall_inbound_events_total",
		Help: "Realtime protocol events received, by type",
	}, []string{"type"})

	ControlMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicecall_control_messages_dropped_total",
		Help: "Outbound control messages dropped because the data channel was not open",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicecall_tool_calls_total",
		Help: "Function calls requested by the voice model, by outcome",
	}, []string{"status"})

	CredentialRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_credential_requests_total",
		Help: "Realtime credential requests served by the tutor API, by outcome",
	}, []string{"status"})

	TranscriptionsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutor_transcriptions_stored_total",
		Help: "Call transcription rows written by the tutor API",
	})
)
