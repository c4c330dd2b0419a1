// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover the request surface and the multi-agent runtime:
//   - Request counters and latency histograms by endpoint and status
//   - Debate fan-out outcomes by per-agent status
//   - SharedMemory cache hits and misses
//   - Active request gauge for the backpressure gate
//
// # Integration
//
// Metrics are exposed on /metrics. Use with Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "seocho"

// Subsystem for orchestrator runtime metrics.
const orchestratorSubsystem = "orchestrator"

// Metrics holds all Prometheus metrics for the orchestrator runtime.
// Initialize once at startup via InitMetrics().
type Metrics struct {
	// RequestsTotal counts orchestration requests.
	// Labels: endpoint (run_agent, run_debate, run_agent_semantic,
	// platform_chat), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures end-to-end request latency.
	// Labels: endpoint, status
	RequestDurationSeconds *prometheus.HistogramVec

	// DebateAgentsTotal counts fan-out children by terminal status.
	// Labels: status (success, timeout, tool_error, unreachable)
	DebateAgentsTotal *prometheus.CounterVec

	// CacheEventsTotal counts SharedMemory query-cache lookups.
	// Labels: outcome (hit, miss)
	CacheEventsTotal *prometheus.CounterVec

	// ActiveRequests tracks requests currently in flight.
	ActiveRequests prometheus.Gauge

	// AgentPoolState tracks the last readiness snapshot per state.
	// Labels: state (ready, degraded, unreachable)
	AgentPoolState *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "requests_total",
				Help:      "Orchestration requests by endpoint and status.",
			},
			[]string{"endpoint", "status"},
		),
		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request latency.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint", "status"},
		),
		DebateAgentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "debate_agents_total",
				Help:      "Debate fan-out children by terminal status.",
			},
			[]string{"status"},
		),
		CacheEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "cache_events_total",
				Help:      "SharedMemory query-cache lookups by outcome.",
			},
			[]string{"outcome"},
		),
		ActiveRequests: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "active_requests",
				Help:      "Requests currently in flight.",
			},
		),
		AgentPoolState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "agent_pool_state",
				Help:      "Databases per readiness state in the last snapshot.",
			},
			[]string{"state"},
		),
	}
	return DefaultMetrics
}

// ObserveRequest records one completed request on all request-level
// metrics. Safe to call with a nil receiver so handlers work in tests
// without registration.
func (m *Metrics) ObserveRequest(endpoint, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(endpoint, status).Observe(seconds)
}

// ObserveDebate records per-agent outcomes of one debate.
func (m *Metrics) ObserveDebate(statuses map[string]string) {
	if m == nil {
		return
	}
	for _, status := range statuses {
		m.DebateAgentsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveCache records SharedMemory counters after a request completes.
func (m *Metrics) ObserveCache(hits, misses int64) {
	if m == nil {
		return
	}
	m.CacheEventsTotal.WithLabelValues("hit").Add(float64(hits))
	m.CacheEventsTotal.WithLabelValues("miss").Add(float64(misses))
}

// ObserveReadiness publishes the latest pool readiness snapshot.
func (m *Metrics) ObserveReadiness(ready, degraded, unreachable int) {
	if m == nil {
		return
	}
	m.AgentPoolState.WithLabelValues("ready").Set(float64(ready))
	m.AgentPoolState.WithLabelValues("degraded").Set(float64(degraded))
	m.AgentPoolState.WithLabelValues("unreachable").Set(float64(unreachable))
}
