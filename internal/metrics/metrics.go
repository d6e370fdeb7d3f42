// Package metrics registers the agent's Prometheus collectors. They are
// served by the debug listener's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the agent's collectors so tests can use an isolated registry.
type Set struct {
	ArtifactsCreated *prometheus.CounterVec
	Anomalies        *prometheus.CounterVec
	Uploads          *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
}

// Upload outcome label values.
const (
	OutcomeDelivered          = "delivered"
	OutcomeRetriedCredentials = "retried_credentials"
	OutcomeRetriedNetwork     = "retried_network"
	OutcomeRetriedUnexpected  = "retried_unexpected"
	OutcomeDroppedMissingFile = "dropped_missing_file"
	OutcomeDroppedRejected    = "dropped_rejected"
	OutcomeDroppedCredentials = "dropped_incomplete_credentials"
)

// New creates the collector set and registers it with reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		ArtifactsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_artifacts_created_total",
			Help: "Artifacts materialised in the local spool, by kind.",
		}, []string{"kind"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_input_anomalies_total",
			Help: "Scripted-input anomaly signals, by input device.",
		}, []string{"input"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_uploads_total",
			Help: "Delivery attempts, by outcome classification.",
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_delivery_queue_depth",
			Help: "Artifacts currently waiting in the delivery queue.",
		}),
	}
	reg.MustRegister(s.ArtifactsCreated, s.Anomalies, s.Uploads, s.QueueDepth)
	return s
}

// NewDefault registers the collector set with the default registry.
func NewDefault() *Set {
	return New(prometheus.DefaultRegisterer)
}
