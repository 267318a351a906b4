// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes the server's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instruments the orchestrator and transports update.
type Metrics struct {
	registry *prometheus.Registry

	// EventsAppended counts events appended to the store, by kind.
	EventsAppended *prometheus.CounterVec
	// AppendRetries counts transient append failures that were retried.
	AppendRetries prometheus.Counter
	// ActiveSessions tracks sessions with a live adapter, by kind.
	ActiveSessions *prometheus.GaugeVec
	// Subscribers tracks currently attached event subscriptions.
	Subscribers prometheus.Gauge
	// OverflowDrops counts subscriptions dropped for falling behind.
	OverflowDrops prometheus.Counter
}

// NewMetrics creates the metric set on a fresh registry, alongside the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "events_appended_total",
			Help:      "Events appended to the event store.",
		}, []string{"kind"}),
		AppendRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "append_retries_total",
			Help:      "Transient event store append failures that were retried.",
		}),
		ActiveSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "active_sessions",
			Help:      "Sessions with a live adapter.",
		}, []string{"kind"}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dispatch",
			Name:      "event_subscribers",
			Help:      "Currently attached event subscriptions.",
		}),
		OverflowDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "subscription_overflow_drops_total",
			Help:      "Subscriptions dropped because the client fell too far behind.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
