// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the updater service.
//
// # Description
//
// Metrics cover the update/rollback lifecycle:
//   - Operation counters and duration histograms (by kind, terminal status)
//   - Pipeline step counters (by step status)
//   - Snapshot creation counter
//   - Active progress-stream gauges (by transport)
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "netpanel"

// Subsystem for updater metrics
const updaterSubsystem = "updater"

// UpdaterMetrics holds all Prometheus metrics for the updater service.
//
// Initialize once at startup via InitMetrics().
type UpdaterMetrics struct {
	// OperationsTotal counts finished operations.
	// Labels: kind (update, rollback), status (success, error, restarting)
	OperationsTotal *prometheus.CounterVec

	// OperationDurationSeconds measures operation wall time.
	// Labels: kind (update, rollback)
	OperationDurationSeconds *prometheus.HistogramVec

	// StepsTotal counts executed pipeline steps by outcome.
	// Labels: status (ok, spawnFailure, nonZeroExit, timeout)
	StepsTotal *prometheus.CounterVec

	// SnapshotsCreatedTotal counts snapshots written by the archive store.
	SnapshotsCreatedTotal prometheus.Counter

	// ActiveStreams tracks currently connected progress observers.
	// Labels: transport (sse, websocket)
	ActiveStreams *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance of UpdaterMetrics.
// Initialized by InitMetrics(); nil until then, and every helper on a nil
// receiver is a no-op so library code never needs a guard.
var DefaultMetrics *UpdaterMetrics

// InitMetrics initializes the default metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *UpdaterMetrics {
	DefaultMetrics = &UpdaterMetrics{
		OperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "operations_total",
				Help:      "Total finished operations by kind and terminal status",
			},
			[]string{"kind", "status"},
		),

		OperationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "operation_duration_seconds",
				Help:      "Wall time of update and rollback operations",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"kind"},
		),

		StepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "steps_total",
				Help:      "Total executed pipeline steps by outcome",
			},
			[]string{"status"},
		),

		SnapshotsCreatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "snapshots_created_total",
				Help:      "Total snapshots written by the archive store",
			},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "active_streams",
				Help:      "Currently connected progress observers by transport",
			},
			[]string{"transport"},
		),
	}
	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordOperation records one finished operation.
func (m *UpdaterMetrics) RecordOperation(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(kind, status).Inc()
	m.OperationDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStep records one executed pipeline step.
func (m *UpdaterMetrics) RecordStep(status string) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(status).Inc()
}

// RecordSnapshot records one snapshot creation.
func (m *UpdaterMetrics) RecordSnapshot() {
	if m == nil {
		return
	}
	m.SnapshotsCreatedTotal.Inc()
}

// StreamOpened increments the active-stream gauge for a transport.
func (m *UpdaterMetrics) StreamOpened(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Inc()
}

// StreamClosed decrements the active-stream gauge for a transport.
func (m *UpdaterMetrics) StreamClosed(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Dec()
}
