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

// Package srv owns the daemon's session registry: PTY and SSH endpoint
// lifecycle, output fan-out to attached clients, and input fan-in.
package srv

import (
	"time"

	"github.com/google/uuid"
)

// SessionID is an opaque, process-wide unique identifier allocated on
// session creation. It is never reused.
type SessionID string

// NewSessionID allocates a fresh SessionID.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// ClientID is an opaque identifier minted by an attaching client.
type ClientID string

// Kind tags a session as local or remote.
type Kind int

const (
	// KindLocal is a session backed by a local PTY and child shell.
	KindLocal Kind = iota
	// KindSSH is a session backed by a remote SSH channel.
	KindSSH
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

// SessionKind describes what an endpoint connects to. Host/Port are
// only meaningful when Kind == KindSSH.
type SessionKind struct {
	Kind Kind
	Host string
	Port uint16
}

// Status is the lifecycle state of a Session. It is monotonic with
// respect to StatusTerminated: once terminated, a session never
// transitions to any other status.
type Status int

const (
	StatusStarting Status = iota
	StatusRunning
	StatusDetached
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusDetached:
		return "detached"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Dimensions are the terminal's column/row geometry.
type Dimensions struct {
	Cols uint16
	Rows uint16
}

// Summary is the read-only view of a session returned by List.
type Summary struct {
	ID            SessionID
	Kind          SessionKind
	Name          string
	Status        Status
	CreatedAt     time.Time
	LastActive    time.Time
	AttachedCount int
	Dims          Dimensions
}
