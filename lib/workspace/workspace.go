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

package workspace

import (
	"database/sql"
	"math"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const defaultMaxDepth = 32
const sizeTolerance = 0.01

// Config configures a Store.
type Config struct {
	// Path is the sqlite DSN, e.g. a file path or ":memory:".
	Path string
	// MaxDepth bounds the pane tree's nesting depth.
	MaxDepth int
	Clock    clockwork.Clock
	Log      *logrus.Entry
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Path == "" {
		return trace.BadParameter("workspace: Path is required")
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return nil
}

// Store persists Workspace and Snapshot records in a local sqlite
// database.
type Store struct {
	cfg Config
	db  *sql.DB
}

// Open opens (creating if necessary) the workspace database at
// cfg.Path.
func Open(cfg Config) (*Store, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	db, err := openDB(cfg.Path)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Store{cfg: cfg, db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return trace.Wrap(s.db.Close())
}

// validateLayout enforces spec.md's invariants: sibling size
// percentages sum to 100 (within floating-point tolerance) and the
// tree depth is bounded.
func validateLayout(p Pane, depth, maxDepth int) error {
	if depth > maxDepth {
		return trace.BadParameter("workspace: layout depth exceeds %d", maxDepth)
	}
	if len(p.Children) == 0 {
		return nil
	}
	var total float64
	for _, child := range p.Children {
		total += child.SizePct
	}
	if math.Abs(total-100) > sizeTolerance {
		return trace.BadParameter("workspace: sibling size percentages sum to %.4f, not 100", total)
	}
	for _, child := range p.Children {
		if err := validateLayout(child, depth+1, maxDepth); err != nil {
			return err
		}
	}
	return nil
}

// Create validates w.Layout, assigns an ID if absent, sets CreatedAt
// and UpdatedAt to the current time, and persists it.
func (s *Store) Create(w Workspace) (Workspace, error) {
	if w.Name == "" {
		return Workspace{}, trace.BadParameter("workspace: Name is required")
	}
	if err := validateLayout(w.Layout, 0, s.cfg.MaxDepth); err != nil {
		return Workspace{}, trace.Wrap(err)
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Tags == nil {
		w.Tags = []string{}
	}
	now := s.cfg.Clock.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	if err := insertWorkspace(s.db, w); err != nil {
		return Workspace{}, trace.Wrap(err)
	}
	return w, nil
}

// Get returns the workspace with the given id.
func (s *Store) Get(id string) (Workspace, error) {
	return getWorkspaceRow(s.db, id)
}

// List returns workspaces matching filter, unfiltered fields ignored.
func (s *Store) List(filter Filter) ([]Workspace, error) {
	return listWorkspaceRows(s.db, filter)
}

// Update validates the new layout and persists it over the existing
// record, bumping UpdatedAt.
func (s *Store) Update(w Workspace) (Workspace, error) {
	if err := validateLayout(w.Layout, 0, s.cfg.MaxDepth); err != nil {
		return Workspace{}, trace.Wrap(err)
	}
	existing, err := getWorkspaceRow(s.db, w.ID)
	if err != nil {
		return Workspace{}, trace.Wrap(err)
	}
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = s.cfg.Clock.Now()
	if w.Tags == nil {
		w.Tags = []string{}
	}
	if err := updateWorkspaceRow(s.db, w); err != nil {
		return Workspace{}, trace.Wrap(err)
	}
	return w, nil
}

// Delete removes a workspace and cascades to its snapshots.
func (s *Store) Delete(id string) error {
	return deleteWorkspaceRow(s.db, id)
}

// SaveSnapshot captures the workspace's current layout as a new,
// immutable snapshot.
func (s *Store) SaveSnapshot(workspaceID string) (Snapshot, error) {
	w, err := getWorkspaceRow(s.db, workspaceID)
	if err != nil {
		return Snapshot{}, trace.Wrap(err)
	}
	snap := Snapshot{
		ID:          uuid.NewString(),
		WorkspaceID: w.ID,
		Layout:      w.Layout,
		CreatedAt:   s.cfg.Clock.Now(),
	}
	if err := insertSnapshot(s.db, snap); err != nil {
		return Snapshot{}, trace.Wrap(err)
	}
	return snap, nil
}

// ListSnapshots returns every snapshot of workspaceID, oldest first.
func (s *Store) ListSnapshots(workspaceID string) ([]Snapshot, error) {
	return listSnapshotRows(s.db, workspaceID)
}

// RestoreSnapshot returns a workspace with the snapshot's layout.
// When asNew is true a new workspace record is created (named
// newName, or "<source> (restored)" if newName is empty); otherwise
// the snapshot's source workspace is updated in place. The snapshot
// itself is never consumed or deleted.
func (s *Store) RestoreSnapshot(snapshotID string, asNew bool, newName string) (Workspace, error) {
	snap, err := getSnapshotRow(s.db, snapshotID)
	if err != nil {
		return Workspace{}, trace.Wrap(err)
	}

	if !asNew {
		existing, err := getWorkspaceRow(s.db, snap.WorkspaceID)
		if err != nil {
			return Workspace{}, trace.Wrap(err)
		}
		existing.Layout = snap.Layout
		return s.Update(existing)
	}

	source, err := getWorkspaceRow(s.db, snap.WorkspaceID)
	if err != nil {
		return Workspace{}, trace.Wrap(err)
	}
	name := newName
	if name == "" {
		name = source.Name + " (restored)"
	}
	return s.Create(Workspace{
		Name:       name,
		Layout:     snap.Layout,
		Tags:       append([]string(nil), source.Tags...),
		IsTemplate: source.IsTemplate,
	})
}
