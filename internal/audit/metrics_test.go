package audit

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newIsolatedMetrics builds a Metrics whose vectors are registered to a
// fresh local registry rather than the global default, so the test
// functions in this file don't collide on duplicate registration (the
// same reason the teacher's own metrics tests avoid calling NewMetrics
// directly).
func newIsolatedMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		AgentInvocations:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_agent_invocations_total"}, []string{"agent", "status"}),
		ToolInvocations:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_tool_invocations_total"}, []string{"tool", "status"}),
		CacheHits:         prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_hits_total"}, []string{"result"}),
		AgentTimeouts:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_agent_timeouts_total"}, []string{"agent"}),
		ToolRetries:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_tool_retries_total"}, []string{"tool"}),
		EmergencyDetected: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_emergency_detections_total"}, []string{"category"}),
		PHIDetected:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_phi_detections_total"}, []string{"kind"}),
	}
	reg.MustRegister(m.AgentInvocations, m.ToolInvocations, m.CacheHits, m.AgentTimeouts, m.ToolRetries, m.EmergencyDetected, m.PHIDetected)
	return m
}

func TestRecordAgentInvocationAlsoCountsTimeout(t *testing.T) {
	m := newIsolatedMetrics()
	m.RecordAgentInvocation("medical_literature_search", "timeout")

	if got := testutil.ToFloat64(m.AgentInvocations.WithLabelValues("medical_literature_search", "timeout")); got != 1 {
		t.Errorf("expected 1 invocation recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.AgentTimeouts.WithLabelValues("medical_literature_search")); got != 1 {
		t.Errorf("expected 1 timeout recorded, got %v", got)
	}
}

func TestRecordCacheLookupLabelsHitAndMiss(t *testing.T) {
	m := newIsolatedMetrics()
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	if got := testutil.ToFloat64(m.CacheHits.WithLabelValues("hit")); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheHits.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestRecordPHIAndEmergencyDetections(t *testing.T) {
	m := newIsolatedMetrics()
	m.RecordPHIDetection("government_id")
	m.RecordEmergencyDetection("cardiac")

	if got := testutil.ToFloat64(m.PHIDetected.WithLabelValues("government_id")); got != 1 {
		t.Errorf("expected 1 PHI detection, got %v", got)
	}
	if got := testutil.ToFloat64(m.EmergencyDetected.WithLabelValues("cardiac")); got != 1 {
		t.Errorf("expected 1 emergency detection, got %v", got)
	}
}
