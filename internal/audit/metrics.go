package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus counter set spec.md §4.9 requires: agent
// invocations, per-tool invocations, cache hits, timeouts, retries,
// emergency detections, and PHI detections. Every write here is
// non-blocking and cannot fail the request, matching the teacher's
// promauto-registered counter pattern.
type Metrics struct {
	AgentInvocations  *prometheus.CounterVec
	ToolInvocations   *prometheus.CounterVec
	CacheHits         *prometheus.CounterVec
	AgentTimeouts     *prometheus.CounterVec
	ToolRetries       *prometheus.CounterVec
	EmergencyDetected *prometheus.CounterVec
	PHIDetected       *prometheus.CounterVec
}

// NewMetrics registers and returns the counter set. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		AgentInvocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinorch_agent_invocations_total",
				Help: "Total number of agent task invocations by agent name and outcome.",
			},
			[]string{"agent", "status"},
		),
		ToolInvocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinorch_tool_invocations_total",
				Help: "Total number of tool invocations by tool name and outcome.",
			},
			[]string{"tool", "status"},
		),
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinorch_cache_hits_total",
				Help: "Total number of response cache lookups by hit/miss.",
			},
			[]string{"result"},
		),
		AgentTimeouts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinorch_agent_timeouts_total",
				Help: "Total number of agent tasks that ended in timeout.",
			},
			[]string{"agent"},
		),
		ToolRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinorch_tool_retries_total",
				Help: "Total number of tool-call retry attempts by tool name.",
			},
			[]string{"tool"},
		),
		EmergencyDetected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinorch_emergency_detections_total",
				Help: "Total number of emergency-keyword detections by category.",
			},
			[]string{"category"},
		),
		PHIDetected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinorch_phi_detections_total",
				Help: "Total number of PHI spans detected by kind.",
			},
			[]string{"kind"},
		),
	}
}

// RecordAgentInvocation increments AgentInvocations and, on timeout,
// AgentTimeouts.
func (m *Metrics) RecordAgentInvocation(agent, status string) {
	m.AgentInvocations.WithLabelValues(agent, status).Inc()
	if status == "timeout" {
		m.AgentTimeouts.WithLabelValues(agent).Inc()
	}
}

// RecordToolInvocation increments ToolInvocations.
func (m *Metrics) RecordToolInvocation(tool, status string) {
	m.ToolInvocations.WithLabelValues(tool, status).Inc()
}

// RecordToolRetry increments ToolRetries.
func (m *Metrics) RecordToolRetry(tool string) {
	m.ToolRetries.WithLabelValues(tool).Inc()
}

// RecordCacheLookup increments CacheHits with result "hit" or "miss".
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheHits.WithLabelValues(result).Inc()
}

// RecordEmergencyDetection increments EmergencyDetected.
func (m *Metrics) RecordEmergencyDetection(category string) {
	m.EmergencyDetected.WithLabelValues(category).Inc()
}

// RecordPHIDetection increments PHIDetected.
func (m *Metrics) RecordPHIDetection(kind string) {
	m.PHIDetected.WithLabelValues(kind).Inc()
}
