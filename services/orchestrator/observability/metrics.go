// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover the streaming chat pipeline:
//   - Request and error counters
//   - Envelope counters by kind (content, error, end, ...)
//   - Stream duration histogram
//   - Active stream gauge
//
// Metrics are exposed via the /metrics endpoint for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "meethub"
	chatSubsystem    = "chat"
)

// ErrorCode categorizes request failures for the errors counter.
type ErrorCode string

const (
	// ErrorCodeValidation is a malformed or invalid request body.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodePolicy is a query blocked by the content policy.
	ErrorCodePolicy ErrorCode = "policy_violation"

	// ErrorCodeLLM is an LLM backend failure.
	ErrorCodeLLM ErrorCode = "llm_error"

	// ErrorCodeInternal is any other server-side failure.
	ErrorCodeInternal ErrorCode = "internal"
)

// Metrics holds the Prometheus collectors for the chat pipeline.
//
// # Fields
//
//   - RequestsTotal: Counter of accepted streaming chat requests.
//   - EnvelopesTotal: Counter of delivered envelopes by kind.
//   - ErrorsTotal: Counter of failed requests by error code.
//   - StreamDurationSeconds: Histogram of request-to-end durations.
//   - ActiveStreams: Gauge of streams currently open.
type Metrics struct {
	RequestsTotal         prometheus.Counter
	EnvelopesTotal        *prometheus.CounterVec
	ErrorsTotal           *prometheus.CounterVec
	StreamDurationSeconds prometheus.Histogram
	ActiveStreams         prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// DefaultMetrics returns the process-wide metrics instance, registering
// the collectors on first use.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "requests_total",
			Help:      "Total accepted streaming chat requests",
		}),
		EnvelopesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "envelopes_total",
			Help:      "Total envelopes delivered to clients by kind",
		}, []string{"kind"}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "errors_total",
			Help:      "Total failed chat requests by error code",
		}, []string{"error_code"}),
		StreamDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Total stream duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "active_streams",
			Help:      "Number of currently open chat streams",
		}),
	}
}

// RecordChatRequest counts one accepted request and marks its stream open.
func (m *Metrics) RecordChatRequest() {
	m.RequestsTotal.Inc()
	m.ActiveStreams.Inc()
}

// RecordEnvelope counts one delivered envelope.
func (m *Metrics) RecordEnvelope(kind string) {
	m.EnvelopesTotal.WithLabelValues(kind).Inc()
}

// RecordError counts one failed request.
func (m *Metrics) RecordError(code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(code)).Inc()
}

// RecordStreamDuration observes one finished stream and marks it closed.
func (m *Metrics) RecordStreamDuration(d time.Duration) {
	m.StreamDurationSeconds.Observe(d.Seconds())
	m.ActiveStreams.Dec()
}
