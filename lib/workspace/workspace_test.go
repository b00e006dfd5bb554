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
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s, err := Open(Config{
		Path:  filepath.Join(t.TempDir(), "workspace.db"),
		Clock: clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func sampleLayout() Pane {
	return Pane{
		ID:        "root",
		SizePct:   100,
		Direction: "horizontal",
		Children: []Pane{
			{ID: "left", SizePct: 40, SessionID: "sess-1"},
			{
				ID:        "right",
				SizePct:   60,
				Direction: "vertical",
				Children: []Pane{
					{ID: "top", SizePct: 50, SessionID: "sess-2"},
					{ID: "bottom", SizePct: 50},
				},
			},
		},
	}
}

func TestCreateGetListRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	w, err := s.Create(Workspace{Name: "dev", Layout: sampleLayout(), Tags: []string{"work"}})
	require.NoError(t, err)
	require.NotEmpty(t, w.ID)

	got, err := s.Get(w.ID)
	require.NoError(t, err)
	require.Equal(t, w.Layout, got.Layout)

	list, err := s.List(Filter{Tag: "work"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = s.List(Filter{Tag: "nope"})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestCreateRejectsLayoutWhoseSiblingSizesDoNotSumTo100(t *testing.T) {
	s, _ := newTestStore(t)
	bad := Pane{
		ID:      "root",
		SizePct: 100,
		Children: []Pane{
			{ID: "a", SizePct: 40},
			{ID: "b", SizePct: 40},
		},
	}
	_, err := s.Create(Workspace{Name: "broken", Layout: bad})
	require.Error(t, err)
}

func TestCreateRejectsLayoutExceedingMaxDepth(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "workspace.db"), Clock: clock, MaxDepth: 1})
	require.NoError(t, err)
	defer s.Close()

	deep := Pane{
		ID:      "root",
		SizePct: 100,
		Children: []Pane{
			{
				ID:      "mid",
				SizePct: 100,
				Children: []Pane{
					{ID: "leaf", SizePct: 100},
				},
			},
		},
	}
	_, err = s.Create(Workspace{Name: "too-deep", Layout: deep})
	require.Error(t, err)
}

func TestUpdateBumpsUpdatedAtAndPreservesCreatedAt(t *testing.T) {
	s, clock := newTestStore(t)
	w, err := s.Create(Workspace{Name: "dev", Layout: sampleLayout()})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	w.Name = "dev-renamed"
	updated, err := s.Update(w)
	require.NoError(t, err)
	require.Equal(t, w.CreatedAt, updated.CreatedAt)
	require.True(t, updated.UpdatedAt.After(updated.CreatedAt))
}

func TestDeleteCascadesSnapshots(t *testing.T) {
	s, _ := newTestStore(t)
	w, err := s.Create(Workspace{Name: "dev", Layout: sampleLayout()})
	require.NoError(t, err)

	_, err = s.SaveSnapshot(w.ID)
	require.NoError(t, err)

	require.NoError(t, s.Delete(w.ID))

	_, err = s.Get(w.ID)
	require.Error(t, err)

	snaps, err := s.ListSnapshots(w.ID)
	require.NoError(t, err)
	require.Empty(t, snaps)
}

// TestSaveSnapshotThenRestoreYieldsStructurallyEqualLayout is P10:
// for any workspace with layout T, save_snapshot then restore_snapshot
// yields a workspace whose layout equals T by pane-tree structural
// equality.
func TestSaveSnapshotThenRestoreYieldsStructurallyEqualLayout(t *testing.T) {
	s, _ := newTestStore(t)
	layout := sampleLayout()
	w, err := s.Create(Workspace{Name: "dev", Layout: layout, Tags: []string{"a", "b"}})
	require.NoError(t, err)

	snap, err := s.SaveSnapshot(w.ID)
	require.NoError(t, err)

	// Mutate the source workspace so restore must come from the
	// snapshot, not from whatever the source currently holds.
	mutated := w
	mutated.Layout = Pane{ID: "root", SizePct: 100}
	_, err = s.Update(mutated)
	require.NoError(t, err)

	restoredInPlace, err := s.RestoreSnapshot(snap.ID, false, "")
	require.NoError(t, err)
	require.Equal(t, layout, restoredInPlace.Layout)

	restoredAsNew, err := s.RestoreSnapshot(snap.ID, true, "")
	require.NoError(t, err)
	require.Equal(t, layout, restoredAsNew.Layout)
	require.NotEqual(t, w.ID, restoredAsNew.ID)
	require.Equal(t, "dev (restored)", restoredAsNew.Name)

	// The snapshot itself must still be listed: restoring never
	// consumes it.
	snaps, err := s.ListSnapshots(w.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}
