/*
Copyright 2018-2019 Gravitational, Inc.

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

// Package pulsar holds constants shared across the daemon's components:
// the IPC protocol version, metric names, and component tags used to
// annotate component loggers.
package pulsar

import "time"

// ProtocolVersion is the current IPC protocol version advertised during
// the version-negotiation envelope. Peers are compatible iff MAJOR is
// equal; a client with a higher MINOR degrades to the server's feature
// set.
const ProtocolVersion = "1.0.0"

// Component tags used with trace.Component when building component
// loggers, so every log line self-identifies its subsystem.
const (
	ComponentSessionManager = "session"
	ComponentIPC            = "ipc"
	ComponentStreaming      = "streaming"
	ComponentTransfer       = "transfer"
	ComponentVault          = "vault"
	ComponentHostKeys       = "hostkeys"
	ComponentWorkspace      = "workspace"
	ComponentDaemon         = "daemon"
)

// Prometheus metric names, namespaced under "pulsar".
const (
	MetricNamespace            = "pulsar"
	MetricActiveSessions       = "sessions_active"
	MetricAttachedClients      = "attached_clients"
	MetricIPCConnections       = "ipc_connections"
	MetricTransfersInProgress  = "transfers_active"
	MetricTransferBytesTotal   = "transfer_bytes_received_total"
	MetricFanoutDroppedClients = "fanout_dropped_clients" // no collector in lib/metrics uses this name
)

// Default resource caps, per spec section 5.
const (
	DefaultMaxConn             = 100
	DefaultFanoutQueueSize     = 1024
	DefaultMaxIPCMessageBytes  = 1 << 20  // 1 MiB
	DefaultMaxFileTransferSize = 100 << 30 // 100 GiB
	DefaultChunkSize           = 1 << 20  // 1 MiB
	DefaultMaxParallelChunks   = 4
)

// DefaultTransferTimeout is the no-activity window after which an
// in-progress transfer is marked Failed (chunk state is preserved).
const DefaultTransferTimeout = 30 * time.Minute

// DefaultReapInterval is how often the Session Manager scans for dead
// sessions to retire.
const DefaultReapInterval = 60 * time.Second
