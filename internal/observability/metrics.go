// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the SDK's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	CallsTotal       *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	ConnectsTotal    *prometheus.CounterVec
	EventsTotal      *prometheus.CounterVec
	CallbackFailures *prometheus.CounterVec
	StreamSubscribed prometheus.Gauge
}

// NewMetrics creates the SDK collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escapepod_calls_total",
				Help: "Total number of proxy calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escapepod_call_duration_seconds",
				Help:    "Latency of proxy calls by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ConnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escapepod_connects_total",
				Help: "Total number of connection attempts by result",
			},
			[]string{"result"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escapepod_events_total",
				Help: "Total number of proxy events dispatched by event name",
			},
			[]string{"event"},
		),
		CallbackFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escapepod_callback_failures_total",
				Help: "Total number of event callbacks that returned an error",
			},
			[]string{"event"},
		),
		StreamSubscribed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "escapepod_stream_subscribed",
			Help: "1 while the event stream is subscribed, 0 otherwise",
		}),
	}

	reg.MustRegister(
		m.CallsTotal,
		m.CallDuration,
		m.ConnectsTotal,
		m.EventsTotal,
		m.CallbackFailures,
		m.StreamSubscribed,
	)
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordCall counts one proxy call and observes its latency.
func (m *Metrics) RecordCall(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(operation, status(err)).Inc()
	m.CallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordConnect counts a connection attempt.
func (m *Metrics) RecordConnect(err error) {
	if m == nil {
		return
	}
	m.ConnectsTotal.WithLabelValues(status(err)).Inc()
}

// RecordEvent counts an event handed to the dispatcher.
func (m *Metrics) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(event).Inc()
}

// RecordCallbackFailure counts a callback that failed.
func (m *Metrics) RecordCallbackFailure(event string) {
	if m == nil {
		return
	}
	m.CallbackFailures.WithLabelValues(event).Inc()
}

// SetStreamSubscribed tracks the event stream subscription state.
func (m *Metrics) SetStreamSubscribed(subscribed bool) {
	if m == nil {
		return
	}
	if subscribed {
		m.StreamSubscribed.Set(1)
		return
	}
	m.StreamSubscribed.Set(0)
}
