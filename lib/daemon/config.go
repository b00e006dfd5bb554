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

// Package daemon wires together the Session Manager, IPC Server,
// Streaming Channels, File-Transfer Engine, Credential Vault,
// Host-Key Store, and Workspace Store into the pulsard process, the
// Go analogue of tshd's lib/teleterm.Serve entry point.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/pulsarterm/pulsar/lib/hostkeys"
)

// Config assembles every pulsard component from flags parsed in
// tool/pulsard/main.go. No TOML/YAML settings loader is wired here —
// that belongs to the out-of-scope desktop app per spec.md §1.
type Config struct {
	// HomeDir holds the daemon's persisted state: known_hosts, the
	// vault database, the workspace database, and transfer staging.
	HomeDir string
	// IPCSocketPath is where the local control-plane socket is
	// created. Defaults to "<HomeDir>/pulsar.sock".
	IPCSocketPath string
	// StreamingHTTPAddr is the WebSocket listen address. Empty
	// disables the WebSocket endpoint.
	StreamingHTTPAddr string
	// StreamingGRPCAddr is the bidirectional-stream listen address.
	// Empty disables it.
	StreamingGRPCAddr string
	// TransferQUICAddr is the File-Transfer Engine's QUIC listen
	// address. Empty disables the QUIC transport; chunk transfer then
	// only runs over whatever transport the IPC caller layers itself.
	TransferQUICAddr string
	// MetricsAddr serves the Prometheus exposition endpoint. Empty
	// disables it.
	MetricsAddr string
	// HostKeyPolicy controls behavior on an unrecognized SSH host key.
	HostKeyPolicy hostkeys.Policy
	// ShutdownSignals is the set of captured signals that cause
	// server shutdown.
	ShutdownSignals []os.Signal
	// ReapInterval/IdleTimeout tune the Session Manager's reaper.
	ReapInterval time.Duration
	IdleTimeout  time.Duration
	// TransferTimeout tunes the File-Transfer Engine's reaper.
	TransferTimeout time.Duration
	// Clock is injected for tests; production callers leave it nil.
	Clock clockwork.Clock
	// Log is the top-level component logger; subordinate components
	// each get a field-tagged child of it.
	Log *logrus.Entry
}

func (c *Config) CheckAndSetDefaults() error {
	if c.HomeDir == "" {
		return trace.BadParameter("daemon: HomeDir is required")
	}
	if c.IPCSocketPath == "" {
		c.IPCSocketPath = filepath.Join(c.HomeDir, "pulsar.sock")
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.TransferTimeout == 0 {
		c.TransferTimeout = 30 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return nil
}

// String returns the config's string representation for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("HomeDir=%s, IPCSocketPath=%s", c.HomeDir, c.IPCSocketPath)
}
