/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes pulsard's Prometheus collectors behind a
// process-lifetime Registry constructed once at startup, rather than
// the package-level prometheus.MustRegister globals lib/srv/regular
// uses — the collectors here are fields on a struct with an explicit
// constructor and Stop, so tests can build a throwaway Registry per
// case instead of sharing process-global state.
package metrics

import (
	"net"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Registry holds every collector pulsard reports and the HTTP server
// exposing them.
type Registry struct {
	Sessions       prometheus.Gauge
	AttachedClients prometheus.Gauge
	IPCConnections prometheus.Gauge
	TransfersActive prometheus.Gauge
	TransferBytesReceived prometheus.Counter
	ChunkHashMismatches prometheus.Counter

	reg *prometheus.Registry
	srv *http.Server
	lis net.Listener
	log *logrus.Entry
}

// New constructs a Registry bound to its own prometheus.Registry (not
// the global DefaultRegisterer), so multiple daemons in one test
// binary never collide on collector names, and binds its listener if
// addr is non-empty. An empty addr disables the /metrics endpoint
// entirely; the collectors themselves are still usable.
func New(addr string, log *logrus.Entry) (*Registry, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Registry{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsar",
			Name:      "sessions_active",
			Help:      "Number of sessions currently tracked by the Session Manager.",
		}),
		AttachedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsar",
			Name:      "attached_clients",
			Help:      "Number of clients currently attached across all sessions.",
		}),
		IPCConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsar",
			Name:      "ipc_connections",
			Help:      "Number of open connections to the IPC socket.",
		}),
		TransfersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsar",
			Name:      "transfers_active",
			Help:      "Number of file transfers currently in progress.",
		}),
		TransferBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsar",
			Name:      "transfer_bytes_received_total",
			Help:      "Total bytes received across all chunk transfers.",
		}),
		ChunkHashMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsar",
			Name:      "chunk_hash_mismatches_total",
			Help:      "Total chunks rejected for a BLAKE3 hash mismatch.",
		}),
		reg: prometheus.NewRegistry(),
		log: log,
	}
	r.reg.MustRegister(
		r.Sessions, r.AttachedClients, r.IPCConnections,
		r.TransfersActive, r.TransferBytesReceived, r.ChunkHashMismatches,
	)

	if addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, trace.ConvertSystemError(err)
		}
		r.lis = lis
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
		r.srv = &http.Server{Handler: mux}
	}
	return r, nil
}

// Addr returns the bound listener address, or nil if the endpoint is
// disabled.
func (r *Registry) Addr() net.Addr {
	if r.lis == nil {
		return nil
	}
	return r.lis.Addr()
}

// Serve runs the /metrics HTTP endpoint until Stop is called. A
// Registry with the endpoint disabled returns immediately.
func (r *Registry) Serve() error {
	if r.srv == nil {
		return nil
	}
	if err := r.srv.Serve(r.lis); err != nil && err != http.ErrServerClosed {
		return trace.Wrap(err)
	}
	return nil
}

// Stop shuts down the HTTP endpoint, if one was started.
func (r *Registry) Stop() {
	if r.srv != nil {
		r.srv.Close()
	}
}
