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

package main

import (
	"context"
	"flag"
	"os"
	"syscall"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/pulsarterm/pulsar/lib/daemon"
	"github.com/pulsarterm/pulsar/lib/hostkeys"
)

var (
	logFormat      = flag.String("log_format", "", "Log format to use (json or text)")
	logLevel       = flag.String("log_level", "", "Log level to use")
	ipcSocketPath  = flag.String("ipc_socket", "", "Path to the local control-plane socket (default: <home_dir>/pulsar.sock)")
	streamingHTTP  = flag.String("streaming_http_addr", "", "Bind address for the WebSocket streaming endpoint, empty to disable")
	streamingGRPC  = flag.String("streaming_grpc_addr", "", "Bind address for the bidirectional-stream endpoint, empty to disable")
	transferQUIC   = flag.String("transfer_quic_addr", "", "Bind address for the file-transfer QUIC listener, empty to disable")
	metricsAddr    = flag.String("metrics_addr", "", "Bind address for the Prometheus /metrics endpoint, empty to disable")
	homeDir        = flag.String("home_dir", "", "Directory to store pulsard state (host keys, vault, workspaces, transfers)")
	hostKeyTOFU    = flag.Bool("host_key_tofu", false, "Trust unknown SSH host keys on first use instead of refusing them")
)

func main() {
	flag.Parse()
	configureLogging()

	if err := run(); err != nil {
		log.Fatal(trace.Wrap(err))
	}
}

func configureLogging() {
	switch *logFormat {
	case "": // OK, use defaults
		log.SetFormatter(&trace.TextFormatter{})
	case "json":
		log.SetFormatter(&trace.JSONFormatter{})
	case "text":
		log.SetFormatter(&trace.TextFormatter{})
	default:
		log.Warnf("Invalid log_format flag: %q", *logFormat)
	}
	if ll := *logLevel; ll != "" {
		switch level, err := log.ParseLevel(ll); {
		case err != nil:
			log.WithError(err).Warn("Invalid -log_level flag")
		default:
			log.SetLevel(level)
		}
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := hostkeys.Strict
	if *hostKeyTOFU {
		policy = hostkeys.TrustOnFirstUse
	}

	err := daemon.Serve(ctx, daemon.Config{
		HomeDir:           *homeDir,
		IPCSocketPath:     *ipcSocketPath,
		StreamingHTTPAddr: *streamingHTTP,
		StreamingGRPCAddr: *streamingGRPC,
		TransferQUICAddr:  *transferQUIC,
		MetricsAddr:       *metricsAddr,
		HostKeyPolicy:     policy,
		ShutdownSignals:   []os.Signal{os.Interrupt, syscall.SIGTERM},
	})
	if err != nil {
		return trace.Wrap(err)
	}

	return nil
}
