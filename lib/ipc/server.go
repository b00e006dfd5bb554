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

package ipc

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/pulsarterm/pulsar/lib/ipc/transport"
	"github.com/pulsarterm/pulsar/lib/srv"
)

// Config configures a Server.
type Config struct {
	// SocketPath is where the unix socket (or named pipe path on
	// Windows) is created.
	SocketPath string
	// Backend dispatches session operations.
	Backend Backend
	// MaxConn bounds simultaneous connections.
	MaxConn int
	// MaxMessageBytes bounds one frame's declared length.
	MaxMessageBytes uint32
	// ProtocolVersion is reported by get_status and carried in the
	// version-negotiation envelope.
	ProtocolVersion string
	// Clock is injected for uptime testing.
	Clock clockwork.Clock
	// Log is the component logger.
	Log *logrus.Entry
}

func (c *Config) CheckAndSetDefaults() error {
	if c.SocketPath == "" {
		return trace.BadParameter("ipc: SocketPath is required")
	}
	if c.Backend == nil {
		return trace.BadParameter("ipc: Backend is required")
	}
	if c.MaxConn == 0 {
		c.MaxConn = 100
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = "1.0.0"
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return nil
}

type subscriptionEntry struct {
	sessionID srv.SessionID
	sub       *srv.Subscription
}

// Server accepts connections on a local transport and dispatches
// framed JSON requests onto a Backend.
type Server struct {
	cfg Config

	listener  transport.Listener
	sem       chan struct{}
	startedAt time.Time

	mu   sync.Mutex
	subs map[string]subscriptionEntry

	closing chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Server and binds its listener without yet accepting
// connections.
func New(cfg Config) (*Server, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	ls, err := transport.Listen(cfg.SocketPath)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Server{
		cfg:       cfg,
		listener:  ls,
		sem:       make(chan struct{}, cfg.MaxConn),
		startedAt: cfg.Clock.Now(),
		subs:      make(map[string]subscriptionEntry),
		closing:   make(chan struct{}),
	}, nil
}

// Serve accepts connections until Stop is called.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
				return trace.Wrap(err)
			}
		}

		select {
		case s.sem <- struct{}{}:
			s.wg.Add(1)
			go s.handleConn(conn)
		default:
			s.cfg.Log.Warn("Connection rejected: MaxConn reached.")
			conn.Close()
		}
	}
}

// Stop closes the listener, unblocking Serve.
func (s *Server) Stop() {
	close(s.closing)
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		<-s.sem
		s.wg.Done()
	}()

	for {
		raw, err := readFrame(conn, s.cfg.MaxMessageBytes)
		if err != nil {
			var tooLarge *MessageTooLargeError
			if asMessageTooLarge(err, &tooLarge) {
				s.writeError(conn, "", CodeInvalidRequest, tooLarge.Error())
				continue
			}
			if err != io.EOF {
				s.cfg.Log.WithError(err).Debug("Connection closed.")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			s.writeError(conn, "", CodeInvalidRequest, "malformed request envelope")
			continue
		}

		result, rerr := s.dispatch(req.Method, req.Params)
		if rerr != nil {
			s.writeError(conn, req.ID, rerr.Code, rerr.Message)
			continue
		}
		resp := Response{ID: req.ID, Result: mustMarshal(result)}
		if err := s.writeResponse(conn, resp); err != nil {
			return
		}
	}
}

func asMessageTooLarge(err error, target **MessageTooLargeError) bool {
	if tl, ok := err.(*MessageTooLargeError); ok {
		*target = tl
		return true
	}
	return false
}

func (s *Server) writeError(conn net.Conn, id string, code int, message string) {
	_ = s.writeResponse(conn, Response{ID: id, Error: &RPCError{Code: code, Message: message}})
}

func (s *Server) writeResponse(conn net.Conn, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(writeFrame(conn, data))
}

func (s *Server) registerSubscription(id srv.SessionID, sub *srv.Subscription) string {
	subID := uuid.NewString()
	s.mu.Lock()
	s.subs[subID] = subscriptionEntry{sessionID: id, sub: sub}
	s.mu.Unlock()
	return subID
}
