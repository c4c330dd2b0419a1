// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// InitMetrics registers against the default registry, so it may run only
// once per process.
var initOnce sync.Once

func metrics(t *testing.T) *Metrics {
	t.Helper()
	initOnce.Do(func() { InitMetrics() })
	require.NotNil(t, DefaultMetrics)
	return DefaultMetrics
}

func TestObserveRequest(t *testing.T) {
	m := metrics(t)

	m.ObserveRequest("run_debate", "success", 1.2)
	m.ObserveRequest("run_debate", "success", 0.3)
	m.ObserveRequest("run_debate", "error", 0.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("run_debate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("run_debate", "error")))
}

func TestObserveDebate(t *testing.T) {
	m := metrics(t)

	m.ObserveDebate(map[string]string{
		"kgnormal": "success",
		"kgfibo":   "success",
		"kgbroken": "timeout",
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DebateAgentsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DebateAgentsTotal.WithLabelValues("timeout")))
}

func TestObserveCacheAndReadiness(t *testing.T) {
	m := metrics(t)

	m.ObserveCache(5, 2)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CacheEventsTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheEventsTotal.WithLabelValues("miss")))

	m.ObserveReadiness(3, 1, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AgentPoolState.WithLabelValues("ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentPoolState.WithLabelValues("degraded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AgentPoolState.WithLabelValues("unreachable")))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("x", "success", 0)
		m.ObserveDebate(map[string]string{"db": "success"})
		m.ObserveCache(1, 1)
		m.ObserveReadiness(0, 0, 0)
	})
}
