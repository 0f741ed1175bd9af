// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

// Package meshmetrics exposes prometheus collectors for the handful of
// counters and gauges that matter for operating a mesh node: connected
// peer count, pings sent/received, and gossip fan-out dial outcomes.
// Non-goal per the spec is any consensus/chain telemetry the teacher's
// API carried; this package keeps only what the p2p layer itself
// produces.
package meshmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectedPeers tracks the current registry size.
	ConnectedPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mesh",
		Name:      "connected_peers",
		Help:      "Number of peers currently registered and driven.",
	})

	// PingsSent counts outbound Ping messages.
	PingsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mesh",
		Name:      "pings_sent_total",
		Help:      "Total Ping messages sent to peers.",
	})

	// PingsReceived counts inbound Ping messages.
	PingsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mesh",
		Name:      "pings_received_total",
		Help:      "Total Ping messages received from peers.",
	})

	// DialAttempts counts outbound gossip-triggered dial attempts by
	// outcome ("ok" or "failed").
	DialAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mesh",
		Name:      "dial_attempts_total",
		Help:      "Outbound dials attempted after a gossip response, by outcome.",
	}, []string{"outcome"})

	// DuplicatePeerSightings counts gossip entries that were already
	// known and therefore skipped.
	DuplicatePeerSightings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mesh",
		Name:      "duplicate_peer_sightings_total",
		Help:      "Gossip response entries naming an address already in the registry.",
	})
)

// Handler returns the standard /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
