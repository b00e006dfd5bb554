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
	"encoding/json"
	"strings"

	"github.com/gravitational/trace"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	layout_json TEXT NOT NULL,
	tags        TEXT NOT NULL DEFAULT '[]',
	is_template INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	layout_json  TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_workspace ON snapshots(workspace_id);
`

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, trace.Wrap(err, "opening workspace database %q", dsn)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, trace.Wrap(err, "initializing workspace schema")
	}
	return db, nil
}

func scanWorkspace(scan func(dest ...any) error) (Workspace, error) {
	var w Workspace
	var layoutJSON, tagsJSON string
	var isTemplate int
	if err := scan(&w.ID, &w.Name, &layoutJSON, &tagsJSON, &isTemplate, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Workspace{}, trace.Wrap(err)
	}
	if err := json.Unmarshal([]byte(layoutJSON), &w.Layout); err != nil {
		return Workspace{}, trace.Wrap(err, "decoding workspace layout")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &w.Tags); err != nil {
		return Workspace{}, trace.Wrap(err, "decoding workspace tags")
	}
	w.IsTemplate = isTemplate != 0
	return w, nil
}

const workspaceColumns = "id, name, layout_json, tags, is_template, created_at, updated_at"

func insertWorkspace(db *sql.DB, w Workspace) error {
	layoutJSON, err := json.Marshal(w.Layout)
	if err != nil {
		return trace.Wrap(err)
	}
	tagsJSON, err := json.Marshal(w.Tags)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = db.Exec(
		`INSERT INTO workspaces (`+workspaceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, string(layoutJSON), string(tagsJSON), boolToInt(w.IsTemplate), w.CreatedAt, w.UpdatedAt,
	)
	return trace.Wrap(err)
}

func updateWorkspaceRow(db *sql.DB, w Workspace) error {
	layoutJSON, err := json.Marshal(w.Layout)
	if err != nil {
		return trace.Wrap(err)
	}
	tagsJSON, err := json.Marshal(w.Tags)
	if err != nil {
		return trace.Wrap(err)
	}
	res, err := db.Exec(
		`UPDATE workspaces SET name = ?, layout_json = ?, tags = ?, is_template = ?, updated_at = ? WHERE id = ?`,
		w.Name, string(layoutJSON), string(tagsJSON), boolToInt(w.IsTemplate), w.UpdatedAt, w.ID,
	)
	if err != nil {
		return trace.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return trace.Wrap(err)
	}
	if n == 0 {
		return trace.NotFound("workspace %q not found", w.ID)
	}
	return nil
}

func getWorkspaceRow(db *sql.DB, id string) (Workspace, error) {
	q := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = ?`
	w, err := scanWorkspace(db.QueryRow(q, id).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return Workspace{}, trace.NotFound("workspace %q not found", id)
		}
		return Workspace{}, trace.Wrap(err)
	}
	return w, nil
}

func listWorkspaceRows(db *sql.DB, filter Filter) ([]Workspace, error) {
	q := `SELECT ` + workspaceColumns + ` FROM workspaces`
	rows, err := db.Query(q)
	if err != nil {
		return nil, trace.Wrap(err, "listing workspaces")
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows.Scan)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if !matchesFilter(w, filter) {
			continue
		}
		out = append(out, w)
	}
	return out, trace.Wrap(rows.Err())
}

func matchesFilter(w Workspace, f Filter) bool {
	if f.Tag != "" {
		found := false
		for _, t := range w.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.IsTemplate != nil && w.IsTemplate != *f.IsTemplate {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(w.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	return true
}

func deleteWorkspaceRow(db *sql.DB, id string) error {
	res, err := db.Exec(`DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return trace.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return trace.Wrap(err)
	}
	if n == 0 {
		return trace.NotFound("workspace %q not found", id)
	}
	if _, err := db.Exec(`DELETE FROM snapshots WHERE workspace_id = ?`, id); err != nil {
		return trace.Wrap(err, "cascading delete of snapshots")
	}
	return nil
}

func insertSnapshot(db *sql.DB, s Snapshot) error {
	layoutJSON, err := json.Marshal(s.Layout)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = db.Exec(
		`INSERT INTO snapshots (id, workspace_id, layout_json, created_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.WorkspaceID, string(layoutJSON), s.CreatedAt,
	)
	return trace.Wrap(err)
}

func scanSnapshot(scan func(dest ...any) error) (Snapshot, error) {
	var s Snapshot
	var layoutJSON string
	if err := scan(&s.ID, &s.WorkspaceID, &layoutJSON, &s.CreatedAt); err != nil {
		return Snapshot{}, trace.Wrap(err)
	}
	if err := json.Unmarshal([]byte(layoutJSON), &s.Layout); err != nil {
		return Snapshot{}, trace.Wrap(err, "decoding snapshot layout")
	}
	return s, nil
}

func getSnapshotRow(db *sql.DB, id string) (Snapshot, error) {
	q := `SELECT id, workspace_id, layout_json, created_at FROM snapshots WHERE id = ?`
	s, err := scanSnapshot(db.QueryRow(q, id).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, trace.NotFound("snapshot %q not found", id)
		}
		return Snapshot{}, trace.Wrap(err)
	}
	return s, nil
}

func listSnapshotRows(db *sql.DB, workspaceID string) ([]Snapshot, error) {
	q := `SELECT id, workspace_id, layout_json, created_at FROM snapshots WHERE workspace_id = ? ORDER BY created_at ASC`
	rows, err := db.Query(q, workspaceID)
	if err != nil {
		return nil, trace.Wrap(err, "listing snapshots")
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		out = append(out, s)
	}
	return out, trace.Wrap(rows.Err())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
