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

package srv

import (
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// EventKind tags the events a Session publishes onto its owning
// Manager's event channel. Sessions never call back into the Manager
// directly; they only ever emit events, breaking the cyclic
// reference the naive design would otherwise have.
type EventKind int

const (
	EventTerminated EventKind = iota
	EventIdle
)

// Event is published by a Session when its lifecycle changes in a way
// the Manager must react to (reaping, metrics).
type Event struct {
	SessionID SessionID
	Kind      EventKind
}

// Session wraps one endpoint (PTY or SSH), its output fan-out, the
// attached-client set, and its lifecycle status.
type Session struct {
	id      SessionID
	kind    SessionKind
	name    string
	created time.Time

	clock  clockwork.Clock
	log    *logrus.Entry
	events chan<- Event

	endpoint Endpoint
	fanout   *Fanout

	mu         sync.Mutex
	status     Status
	lastActive time.Time
	dims       Dimensions
	attached   map[ClientID]struct{}
	writeMu    sync.Mutex
}

func newSession(id SessionID, kind SessionKind, name string, dims Dimensions, endpoint Endpoint, clock clockwork.Clock, log *logrus.Entry, events chan<- Event) *Session {
	s := &Session{
		id:       id,
		kind:     kind,
		name:     name,
		created:  clock.Now(),
		clock:    clock,
		log:      log,
		events:   events,
		endpoint: endpoint,
		status:   StatusRunning,
		dims:     dims,
		attached: make(map[ClientID]struct{}),
	}
	s.lastActive = s.created
	s.fanout = NewFanout(0, log, s.onSubscriberDropped)
	go s.pump()
	return s
}

func (s *Session) onSubscriberDropped(id ClientID) {
	s.mu.Lock()
	delete(s.attached, id)
	s.mu.Unlock()
}

// pump is the single dedicated reader task per session: it forwards
// endpoint output to the fanout in order, and terminates the session
// on any read error (including io.EOF).
func (s *Session) pump() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.endpoint.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			s.touch()
			s.fanout.Publish(cp)
		}
		if err != nil {
			s.terminate()
			return
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.clock.Now()
	s.mu.Unlock()
}

// Attach subscribes a client to this session's output fanout.
// Idempotent per (session, client): re-attaching supersedes the prior
// subscription.
func (s *Session) Attach(client ClientID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusTerminated {
		return nil, trace.NotFound("session %v is terminated", s.id)
	}
	s.attached[client] = struct{}{}
	if s.status == StatusDetached {
		s.status = StatusRunning
	}
	sub := s.fanout.Subscribe(client)
	return sub, nil
}

// Detach removes a client from the attached set. A session with no
// remaining attached clients becomes Detached but keeps running.
func (s *Session) Detach(client ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, client)
	if len(s.attached) == 0 && s.status == StatusRunning {
		s.status = StatusDetached
	}
	s.fanout.unsubscribe(client)
}

// SendInput writes bytes to the endpoint, retrying partial writes
// internally until the full slice is sent or the endpoint errors.
func (s *Session) SendInput(data []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.touch()
	total := 0
	for total < len(data) {
		n, err := s.endpoint.Write(data[total:])
		total += n
		if err != nil {
			return total, trace.Wrap(err)
		}
		if n == 0 {
			return total, trace.ConnectionProblem(nil, "endpoint accepted zero bytes")
		}
	}
	return total, nil
}

// Resize updates the session's recorded dimensions and forwards the
// change to the endpoint.
func (s *Session) Resize(cols, rows uint16) error {
	s.mu.Lock()
	s.dims = Dimensions{Cols: cols, Rows: rows}
	s.mu.Unlock()
	return trace.Wrap(s.endpoint.Resize(cols, rows))
}

// Terminate closes the endpoint, marks the session Terminated, and
// drains the fanout by signalling EOF to every subscriber.
func (s *Session) Terminate() {
	s.terminate()
}

func (s *Session) terminate() {
	s.mu.Lock()
	if s.status == StatusTerminated {
		s.mu.Unlock()
		return
	}
	s.status = StatusTerminated
	s.mu.Unlock()

	_ = s.endpoint.Close()
	s.fanout.Close()

	if s.events != nil {
		s.events <- Event{SessionID: s.id, Kind: EventTerminated}
	}
}

// Summary returns the read-only view of this session for List.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:            s.id,
		Kind:          s.kind,
		Name:          s.name,
		Status:        s.status,
		CreatedAt:     s.created,
		LastActive:    s.lastActive,
		AttachedCount: len(s.attached),
		Dims:          s.dims,
	}
}

func (s *Session) isIdleSince(threshold time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive.Before(threshold)
}

func (s *Session) currentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
