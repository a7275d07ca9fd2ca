// Package metrics exposes Prometheus counters for relays and grid calls.
// All methods are safe to call on a nil *Relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gridvnc"

// Relay outcomes.
const (
	OutcomeNotFound            = "not_found"
	OutcomeDisplayDisabled     = "display_disabled"
	OutcomeEndpointInvalid     = "endpoint_invalid"
	OutcomeTopologyUnavailable = "topology_unavailable"
	OutcomeConnectFailed       = "connect_failed"
	OutcomeClosed              = "closed"
)

// Frame directions.
const (
	DirectionClientToRemote = "client_to_remote"
	DirectionRemoteToClient = "remote_to_client"
)

type Relay struct {
	registry *prometheus.Registry

	active       prometheus.Gauge
	relays       *prometheus.CounterVec
	frames       *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	gridRequests *prometheus.CounterVec
}

func New() *Relay {
	m := &Relay{
		registry: prometheus.NewRegistry(),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relays_active",
			Help:      "Relay sessions currently forwarding frames.",
		}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Relay requests by terminal outcome.",
		}, []string{"outcome"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_frames_total",
			Help:      "Frames forwarded by direction.",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_bytes_total",
			Help:      "Payload bytes forwarded by direction.",
		}, []string{"direction"}),
		gridRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_requests_total",
			Help:      "Requests made to the grid API.",
		}, []string{"endpoint", "result"}),
	}

	m.registry.MustRegister(
		m.active,
		m.relays,
		m.frames,
		m.bytes,
		m.gridRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Relay) RelayStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Relay) RelayFinished() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Relay) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.relays.WithLabelValues(outcome).Inc()
}

func (m *Relay) ObserveFrame(direction string, size int) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(direction).Inc()
	m.bytes.WithLabelValues(direction).Add(float64(size))
}

func (m *Relay) ObserveGridRequest(endpoint, result string) {
	if m == nil {
		return
	}
	m.gridRequests.WithLabelValues(endpoint, result).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Relay) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Relay) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
