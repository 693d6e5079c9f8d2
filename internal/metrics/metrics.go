// SNAP - Schnorr-Native Agent Protocol
// Copyright (C) 2026 snap-protocol
//
// This file is part of SNAP.
//
// SNAP is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SNAP is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SNAP. If not, see <https://www.gnu.org/licenses/>.

// Package metrics holds the Prometheus instrumentation for the SDK.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snap"

// Registry is the SDK's private metrics registry.
var Registry = prometheus.NewRegistry()

var (
	// MessagesProcessed tracks inbound envelopes by type and outcome.
	MessagesProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "processed_total",
			Help:      "Total number of inbound envelopes processed",
		},
		[]string{"type", "status"}, // request/response/event, success/failure
	)

	// ReplayRejections tracks envelopes dropped by the duplicate guard.
	ReplayRejections = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "replay_rejections_total",
			Help:      "Total number of envelopes rejected as duplicates",
		},
	)

	// FreshnessRejections tracks envelopes dropped by the clock-drift check.
	FreshnessRejections = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "freshness_rejections_total",
			Help:      "Total number of envelopes rejected for stale timestamps",
		},
	)

	// SignatureVerifications tracks envelope verifications by outcome.
	SignatureVerifications = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crypto",
			Name:      "signature_verifications_total",
			Help:      "Total number of envelope signature verifications",
		},
		[]string{"status"}, // valid, invalid
	)

	// ProcessingDuration tracks inbound handler latency.
	ProcessingDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "processing_duration_seconds",
			Help:      "Inbound envelope processing duration",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RelayPublishes tracks relay event publishes by outcome.
	RelayPublishes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "publishes_total",
			Help:      "Total number of relay event publishes",
		},
		[]string{"status"}, // accepted, failed
	)

	// SocketConnections tracks currently open socket transport connections.
	SocketConnections = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "open_connections",
			Help:      "Currently open socket transport connections",
		},
	)
)
