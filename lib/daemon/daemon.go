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

package daemon

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/gravitational/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pulsarterm/pulsar/lib/hostkeys"
	"github.com/pulsarterm/pulsar/lib/ipc"
	"github.com/pulsarterm/pulsar/lib/metrics"
	"github.com/pulsarterm/pulsar/lib/srv"
	"github.com/pulsarterm/pulsar/lib/streaming"
	"github.com/pulsarterm/pulsar/lib/transfer"
	"github.com/pulsarterm/pulsar/lib/vault"
	"github.com/pulsarterm/pulsar/lib/workspace"
)

// Daemon owns every long-lived component wired together by Serve. It
// is returned only for tests; tool/pulsard/main.go only ever calls
// Serve.
type Daemon struct {
	Manager     *srv.Manager
	IPC         *ipc.Server
	Streaming   *streaming.Service
	Transfer    *transfer.Receiver
	TransferQUIC *transfer.QUICServer
	Vault       *vault.Vault
	HostKeys    *hostkeys.Store
	Workspaces  *workspace.Store
	Metrics     *metrics.Registry
}

// Stop tears down every component. Safe to call once, in shutdown
// order: network-facing servers first, then the registries they
// dispatch onto.
func (d *Daemon) Stop() {
	d.IPC.Stop()
	d.Streaming.Stop()
	if d.TransferQUIC != nil {
		d.TransferQUIC.Stop()
	}
	d.Transfer.Stop()
	d.Manager.Stop()
	d.Vault.Close()
	d.Workspaces.Close()
	d.Metrics.Stop()
}

// New constructs every pulsard component without serving anything.
func New(cfg Config) (*Daemon, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := os.MkdirAll(cfg.HomeDir, 0o700); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	hostKeyStore, err := hostkeys.Open(filepath.Join(cfg.HomeDir, "known_hosts"))
	if err != nil {
		return nil, trace.Wrap(err, "opening host key store")
	}

	manager, err := srv.NewManager(srv.ManagerConfig{
		Clock:         cfg.Clock,
		Log:           cfg.Log.WithField(trace.Component, "session"),
		HostKeys:      hostKeyStore,
		HostKeyPolicy: cfg.HostKeyPolicy,
		ReapInterval:  cfg.ReapInterval,
		IdleTimeout:   cfg.IdleTimeout,
	})
	if err != nil {
		return nil, trace.Wrap(err, "starting session manager")
	}

	v, err := vault.Open(vault.Config{
		Path:  filepath.Join(cfg.HomeDir, "vault.db"),
		Clock: cfg.Clock,
		Log:   cfg.Log.WithField(trace.Component, "vault"),
	})
	if err != nil {
		manager.Stop()
		return nil, trace.Wrap(err, "opening credential vault")
	}

	workspaces, err := workspace.Open(workspace.Config{
		Path:  filepath.Join(cfg.HomeDir, "workspaces.db"),
		Clock: cfg.Clock,
		Log:   cfg.Log.WithField(trace.Component, "workspace"),
	})
	if err != nil {
		manager.Stop()
		v.Close()
		return nil, trace.Wrap(err, "opening workspace store")
	}

	receiver, err := transfer.NewReceiver(transfer.Config{
		StorageRoot:     filepath.Join(cfg.HomeDir, "transfers"),
		Clock:           cfg.Clock,
		Log:             cfg.Log.WithField(trace.Component, "transfer"),
		TransferTimeout: cfg.TransferTimeout,
	})
	if err != nil {
		manager.Stop()
		v.Close()
		workspaces.Close()
		return nil, trace.Wrap(err, "starting file-transfer engine")
	}

	ipcServer, err := ipc.New(ipc.Config{
		SocketPath: cfg.IPCSocketPath,
		Backend:    manager,
		Clock:      cfg.Clock,
		Log:        cfg.Log.WithField(trace.Component, "ipc"),
	})
	if err != nil {
		manager.Stop()
		v.Close()
		workspaces.Close()
		receiver.Stop()
		return nil, trace.Wrap(err, "starting ipc server")
	}

	streamingSvc, err := streaming.New(streaming.Config{
		Backend:  manager,
		HTTPAddr: cfg.StreamingHTTPAddr,
		GRPCAddr: cfg.StreamingGRPCAddr,
		Log:      cfg.Log.WithField(trace.Component, "streaming"),
	})
	if err != nil {
		manager.Stop()
		v.Close()
		workspaces.Close()
		receiver.Stop()
		ipcServer.Stop()
		return nil, trace.Wrap(err, "starting streaming channels")
	}

	var quicServer *transfer.QUICServer
	if cfg.TransferQUICAddr != "" {
		quicServer, err = transfer.NewQUICServer(transfer.QUICConfig{
			Addr:     cfg.TransferQUICAddr,
			Receiver: receiver,
			Log:      cfg.Log.WithField(trace.Component, "transfer-quic"),
		})
		if err != nil {
			manager.Stop()
			v.Close()
			workspaces.Close()
			receiver.Stop()
			ipcServer.Stop()
			streamingSvc.Stop()
			return nil, trace.Wrap(err, "starting transfer quic listener")
		}
	}

	metricsReg, err := metrics.New(cfg.MetricsAddr, cfg.Log.WithField(trace.Component, "metrics"))
	if err != nil {
		manager.Stop()
		v.Close()
		workspaces.Close()
		receiver.Stop()
		ipcServer.Stop()
		streamingSvc.Stop()
		if quicServer != nil {
			quicServer.Stop()
		}
		return nil, trace.Wrap(err, "starting metrics endpoint")
	}

	return &Daemon{
		Manager:      manager,
		IPC:          ipcServer,
		Streaming:    streamingSvc,
		Transfer:     receiver,
		TransferQUIC: quicServer,
		Vault:        v,
		HostKeys:     hostKeyStore,
		Workspaces:   workspaces,
		Metrics:      metricsReg,
	}, nil
}

// Serve constructs every component and runs until ctx is cancelled or
// a shutdown signal is captured, mirroring lib/teleterm.Serve's
// wiring in the teacher.
func Serve(ctx context.Context, cfg Config) error {
	d, err := New(cfg)
	if err != nil {
		return trace.Wrap(err)
	}

	var servers errgroup.Group
	servers.Go(func() error {
		return trace.Wrap(d.IPC.Serve(), "ipc server exited")
	})
	servers.Go(func() error {
		return trace.Wrap(d.Streaming.Serve(), "streaming service exited")
	})
	if d.TransferQUIC != nil {
		servers.Go(func() error {
			return trace.Wrap(d.TransferQUIC.Serve(ctx), "transfer quic listener exited")
		})
	}
	servers.Go(func() error {
		return trace.Wrap(d.Metrics.Serve(), "metrics endpoint exited")
	})

	go func() {
		c := make(chan os.Signal, len(cfg.ShutdownSignals))
		if len(cfg.ShutdownSignals) > 0 {
			signal.Notify(c, cfg.ShutdownSignals...)
		}
		select {
		case <-ctx.Done():
			cfg.Log.Info("Context closed, stopping pulsard.")
		case sig := <-c:
			cfg.Log.WithField("signal", sig).Info("Captured signal, stopping pulsard.")
		}
		d.Stop()
	}()

	return servers.Wait()
}
