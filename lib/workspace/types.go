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

// Package workspace persists named workspace layouts (pane trees,
// optionally bound to live sessions) and immutable layout snapshots in
// a local relational store.
package workspace

import "time"

// Pane is one node of a workspace's layout tree. SessionID is empty
// for a pane not currently bound to a live session (e.g. a template
// or a restored snapshot). Direction is meaningful only on a pane with
// children, and is empty on a leaf pane.
type Pane struct {
	ID        string  `json:"id"`
	SizePct   float64 `json:"size_pct"`
	Direction string  `json:"direction,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	Children  []Pane  `json:"children,omitempty"`
}

// Workspace is a named, persisted pane-tree arrangement.
type Workspace struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Layout     Pane      `json:"layout"`
	Tags       []string  `json:"tags"`
	IsTemplate bool      `json:"is_template"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot is an immutable, point-in-time capture of a workspace's
// layout. Snapshots are append-only: restoring one never consumes it.
type Snapshot struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Layout      Pane      `json:"layout"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows List to workspaces matching every non-zero field.
type Filter struct {
	Tag            string
	IsTemplate     *bool
	NameContains   string
}
