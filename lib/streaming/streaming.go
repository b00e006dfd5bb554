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

// Package streaming exposes per-session Streaming Channels: a
// WebSocket endpoint and a gRPC bidirectional-stream endpoint, each
// forwarding a session's output fanout to one attached client and
// relaying client frames back as input.
package streaming

import (
	"net"
	"net/http"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/pulsarterm/pulsar/lib/srv"
)

// Backend is the narrow session surface Streaming dispatches onto.
// *srv.Manager satisfies it.
type Backend interface {
	Attach(id srv.SessionID, client srv.ClientID) (*srv.Subscription, error)
	Detach(id srv.SessionID, client srv.ClientID) error
	SendInput(id srv.SessionID, data []byte) (int, error)
}

// Config configures a Service.
type Config struct {
	// Backend dispatches attach/detach/input onto the session registry.
	Backend Backend
	// HTTPAddr is the listen address for the WebSocket endpoint, e.g.
	// "127.0.0.1:0". Empty disables the WebSocket endpoint.
	HTTPAddr string
	// GRPCAddr is the listen address for the bidirectional-stream
	// endpoint. Empty disables it.
	GRPCAddr string
	Log      *logrus.Entry
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Backend == nil {
		return trace.BadParameter("streaming: Backend is required")
	}
	if c.Log == nil {
		c.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return nil
}

// Service owns the WebSocket and gRPC listeners for the Streaming
// Channels module.
type Service struct {
	cfg Config

	httpServer *http.Server
	httpLis    net.Listener

	grpcServer *grpc.Server
	grpcLis    net.Listener
}

// New constructs a Service and binds whichever listeners are
// configured, without yet serving.
func New(cfg Config) (*Service, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	s := &Service{cfg: cfg}

	if cfg.HTTPAddr != "" {
		lis, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return nil, trace.ConvertSystemError(err)
		}
		s.httpLis = lis
		mux := http.NewServeMux()
		mux.HandleFunc("/ws/", s.handleWebSocket)
		s.httpServer = &http.Server{Handler: mux}
	}

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return nil, trace.ConvertSystemError(err)
		}
		s.grpcLis = lis
		s.grpcServer = grpc.NewServer(grpc.ForceServerCodec(rawCodec{}))
		s.grpcServer.RegisterService(&sessionStreamServiceDesc, s)
	}

	return s, nil
}

// Addr returns the bound WebSocket listener address, or nil if the
// endpoint is disabled.
func (s *Service) Addr() net.Addr {
	if s.httpLis == nil {
		return nil
	}
	return s.httpLis.Addr()
}

// GRPCAddrBound returns the bound gRPC listener address, or nil if the
// endpoint is disabled.
func (s *Service) GRPCAddrBound() net.Addr {
	if s.grpcLis == nil {
		return nil
	}
	return s.grpcLis.Addr()
}

// Serve runs both endpoints (whichever are configured) until Stop is
// called, returning once all goroutines have exited.
func (s *Service) Serve() error {
	errCh := make(chan error, 2)
	running := 0

	if s.httpServer != nil {
		running++
		go func() {
			errCh <- s.httpServer.Serve(s.httpLis)
		}()
	}
	if s.grpcServer != nil {
		running++
		go func() {
			errCh <- s.grpcServer.Serve(s.grpcLis)
		}()
	}

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && err != http.ErrServerClosed && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop shuts down both endpoints.
func (s *Service) Stop() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}
