// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the small opt-in /metrics endpoint: connection/session
// gauges and packet/frame counters, no wire-protocol data.
type Metrics struct {
	registry *prometheus.Registry

	ChatActiveConnections prometheus.Gauge
	ChatDirectorySize     prometheus.Gauge
	ChatFramesTotal       *prometheus.CounterVec

	RUDPActiveSessions  prometheus.Gauge
	RUDPRetransmits     prometheus.Counter
	RUDPTimeoutAborts   prometheus.Counter
	RUDPPacketsTotal    *prometheus.CounterVec

	srv *http.Server
}

// NewMetrics registers all netlab series on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ChatActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netlab_chat_active_connections",
			Help: "Currently open chat router connections.",
		}),
		ChatDirectorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netlab_chat_directory_size",
			Help: "Currently registered chat client names.",
		}),
		ChatFramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netlab_chat_frames_total",
			Help: "Chat frames processed, by direction.",
		}, []string{"direction"}),
		RUDPActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netlab_rudp_active_sessions",
			Help: "1 while an RUDP server session is in progress, else 0.",
		}),
		RUDPRetransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlab_rudp_retransmits_total",
			Help: "RUDP window retransmissions due to ACK timeout.",
		}),
		RUDPTimeoutAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlab_rudp_timeout_aborts_total",
			Help: "RUDP sessions aborted after reaching the consecutive timeout limit.",
		}),
		RUDPPacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netlab_rudp_packets_total",
			Help: "RUDP packets sent/received, by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.ChatActiveConnections,
		m.ChatDirectorySize,
		m.ChatFramesTotal,
		m.RUDPActiveSessions,
		m.RUDPRetransmits,
		m.RUDPTimeoutAborts,
		m.RUDPPacketsTotal,
	)
	return m
}

// Serve starts the /metrics HTTP endpoint on listen until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.srv = &http.Server{Addr: listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- m.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return m.srv.Close()
	case err := <-errCh:
		return err
	}
}
