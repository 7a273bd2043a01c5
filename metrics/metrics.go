/*
 * Copyright 2026 The Anchorchain Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics is the ambient observability collaborator: prometheus
// counters/gauges for Multiverse accept/reject decisions, peer counts and
// worker health. No HTTP exporter is wired here — that would be a JSON/UI
// surface this core leaves out — but the registry itself is real and
// usable by an embedder that wants to expose it. Grounded on CovenantSQL's
// go.mod dependency on prometheus/client_golang (used by its own metric
// package for chain/peer gauges).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the core's counters and gauges. The zero value is not
// usable; construct with New or Noop.
type Metrics struct {
	BlocksAccepted   prometheus.Counter
	BlocksRejected   prometheus.Counter
	ResyncsTriggered prometheus.Counter
	PeersConnected   prometheus.Gauge
	WorkersHealthy   prometheus.Gauge
}

// New creates and registers a fresh Metrics with reg. If reg is nil, the
// metrics are created but never registered — useful for embedding without
// committing to global registry ownership.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multiverse", Name: "blocks_accepted_total",
			Help: "Composite blocks accepted into the local window.",
		}),
		BlocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multiverse", Name: "blocks_rejected_total",
			Help: "Composite blocks rejected by the acceptance algorithm.",
		}),
		ResyncsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multiverse", Name: "resyncs_triggered_total",
			Help: "Resync requests granted by add_resync_request.",
		}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multiverse", Name: "peers_connected",
			Help: "Currently connected peer count.",
		}),
		WorkersHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multiverse", Name: "workers_healthy",
			Help: "Worker processes currently reporting heartbeats.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BlocksAccepted, m.BlocksRejected, m.ResyncsTriggered, m.PeersConnected, m.WorkersHealthy)
	}
	return m
}

// Noop returns a Metrics backed by freshly constructed, unregistered
// collectors — safe to call from tests and from components that don't care
// about observability wiring.
func Noop() *Metrics { return New(nil) }
