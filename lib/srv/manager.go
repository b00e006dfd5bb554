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
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/pulsarterm/pulsar/lib/hostkeys"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Clock is injected for reap-interval and idle-threshold testing.
	Clock clockwork.Clock
	// Log is the component logger.
	Log *logrus.Entry
	// HostKeys backs SSH endpoint host-key verification.
	HostKeys *hostkeys.Store
	// HostKeyPolicy controls behavior on an unrecognized host key.
	HostKeyPolicy hostkeys.Policy
	// ReapInterval is how often dead sessions are scanned for.
	ReapInterval time.Duration
	// IdleTimeout is how long a session may sit with a dead endpoint
	// and no activity before the reaper retires it.
	IdleTimeout time.Duration
}

func (c *ManagerConfig) checkAndSetDefaults() error {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	return nil
}

// Manager is the top-level session registry: it owns every Session,
// dispatches create/attach/detach/terminate, and periodically reaps
// sessions whose endpoint has ended and which have sat idle past the
// configured threshold.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[SessionID]*Session

	events chan Event
	cancel context.CancelFunc
}

// NewManager constructs a Manager and starts its background reaper.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.checkAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		sessions: make(map[SessionID]*Session),
		events:   make(chan Event, 256),
		cancel:   cancel,
	}
	go m.consumeEvents(ctx)
	go m.reapLoop(ctx)
	return m, nil
}

func (m *Manager) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			if ev.Kind == EventTerminated {
				m.cfg.Log.WithField("session_id", ev.SessionID).Debug("Session terminated.")
			}
		}
	}
}

// CreateLocal allocates a Session backed by a local PTY endpoint.
func (m *Manager) CreateLocal(name string, cols, rows uint16) (SessionID, error) {
	endpoint, err := NewPTYEndpoint(cols, rows)
	if err != nil {
		return "", trace.Wrap(err, "EndpointStartFailed")
	}
	kind := SessionKind{Kind: KindLocal}
	return m.register(kind, name, Dimensions{Cols: cols, Rows: rows}, endpoint), nil
}

// CreateSSH allocates a Session backed by a remote SSH endpoint.
func (m *Manager) CreateSSH(name string, dial SSHDialConfig) (SessionID, error) {
	if dial.HostKeys == nil {
		dial.HostKeys = m.cfg.HostKeys
	}
	if dial.Policy == hostkeys.Strict && m.cfg.HostKeyPolicy == hostkeys.TrustOnFirstUse {
		dial.Policy = m.cfg.HostKeyPolicy
	}
	endpoint, err := NewSSHEndpoint(dial)
	if err != nil {
		return "", trace.Wrap(err, "EndpointStartFailed")
	}
	kind := SessionKind{Kind: KindSSH, Host: dial.Host, Port: dial.Port}
	return m.register(kind, name, dial.Dims, endpoint), nil
}

func (m *Manager) register(kind SessionKind, name string, dims Dimensions, endpoint Endpoint) SessionID {
	id := NewSessionID()
	sess := newSession(id, kind, name, dims, endpoint, m.cfg.Clock, m.cfg.Log.WithField("session_id", id), m.events)

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	return id
}

// List returns session summaries sorted by creation time ascending.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		summaries = append(summaries, s.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

func (m *Manager) lookup(id SessionID) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, trace.NotFound("session %v not found", id)
	}
	return sess, nil
}

// Attach subscribes a client to a session's output fanout.
func (m *Manager) Attach(id SessionID, client ClientID) (*Subscription, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if sess.currentStatus() == StatusTerminated {
		return nil, trace.NotFound("session %v is terminated", id)
	}
	return sess.Attach(client)
}

// Detach unsubscribes a client from a session.
func (m *Manager) Detach(id SessionID, client ClientID) error {
	sess, err := m.lookup(id)
	if err != nil {
		return trace.Wrap(err)
	}
	sess.Detach(client)
	return nil
}

// SendInput writes bytes to a session's endpoint.
func (m *Manager) SendInput(id SessionID, data []byte) (int, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return sess.SendInput(data)
}

// Resize updates a session's terminal dimensions.
func (m *Manager) Resize(id SessionID, cols, rows uint16) error {
	sess, err := m.lookup(id)
	if err != nil {
		return trace.Wrap(err)
	}
	return sess.Resize(cols, rows)
}

// Terminate closes a session's endpoint and retires it from the
// registry.
func (m *Manager) Terminate(id SessionID) error {
	sess, err := m.lookup(id)
	if err != nil {
		return trace.Wrap(err)
	}
	sess.Terminate()
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// reapLoop periodically retires sessions whose endpoint has ended and
// whose last activity is older than the idle threshold.
func (m *Manager) reapLoop(ctx context.Context) {
	ticker := m.cfg.Clock.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.reap()
		}
	}
}

func (m *Manager) reap() {
	threshold := m.cfg.Clock.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		// Endpoint end-of-stream already transitions a session to
		// Terminated via its pump goroutine; the reaper only retires
		// it from the registry once it has also sat idle past the
		// threshold.
		if sess.currentStatus() == StatusTerminated && sess.isIdleSince(threshold) {
			delete(m.sessions, id)
		}
	}
}

// Stop halts the reaper and event-consumer goroutines. It does not
// terminate any session.
func (m *Manager) Stop() {
	m.cancel()
}
