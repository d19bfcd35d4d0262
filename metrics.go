// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the broker's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectedClients      prometheus.Gauge
	Rooms                 prometheus.Gauge
	InboundMessages       *prometheus.CounterVec
	RequestErrors         *prometheus.CounterVec
	SendFailures          prometheus.Counter
	RoomsExpired          prometheus.Counter
	HeartbeatTerminations prometheus.Counter
	RateLimitViolations   prometheus.Counter
}

// NewMetrics creates the collectors and registers them on a fresh
// registry, so several brokers can live in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomsocket",
			Name:      "connected_clients",
			Help:      "Number of open client connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomsocket",
			Name:      "rooms",
			Help:      "Number of live rooms.",
		}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomsocket",
			Name:      "inbound_messages_total",
			Help:      "Inbound envelopes by type.",
		}, []string{"type"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomsocket",
			Name:      "request_errors_total",
			Help:      "Error envelopes sent, by error code.",
		}, []string{"code"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomsocket",
			Name:      "send_failures_total",
			Help:      "Outbound sends that could not be queued.",
		}),
		RoomsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomsocket",
			Name:      "rooms_expired_total",
			Help:      "Rooms removed by the expiration sweep.",
		}),
		HeartbeatTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomsocket",
			Name:      "heartbeat_terminations_total",
			Help:      "Connections terminated for missing pings.",
		}),
		RateLimitViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomsocket",
			Name:      "rate_limit_violations_total",
			Help:      "Inbound frames dropped by the rate limiter.",
		}),
	}

	m.Registry.MustRegister(
		m.ConnectedClients,
		m.Rooms,
		m.InboundMessages,
		m.RequestErrors,
		m.SendFailures,
		m.RoomsExpired,
		m.HeartbeatTerminations,
		m.RateLimitViolations,
	)
	return m
}

func (m *Metrics) setClients(n int) {
	if m != nil {
		m.ConnectedClients.Set(float64(n))
	}
}

func (m *Metrics) setRooms(n int) {
	if m != nil {
		m.Rooms.Set(float64(n))
	}
}

func (m *Metrics) inbound(t string) {
	if m != nil {
		m.InboundMessages.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) requestError(code string) {
	if m != nil {
		m.RequestErrors.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) broadcastFailed() {
	if m != nil {
		m.SendFailures.Inc()
	}
}

func (m *Metrics) roomsExpired(n int) {
	if m != nil {
		m.RoomsExpired.Add(float64(n))
	}
}

func (m *Metrics) heartbeatTerminated() {
	if m != nil {
		m.HeartbeatTerminations.Inc()
	}
}

func (m *Metrics) rateLimited() {
	if m != nil {
		m.RateLimitViolations.Inc()
	}
}
