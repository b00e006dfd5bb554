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

package vault

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"path"
	"time"

	"github.com/gravitational/trace"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS vault_meta (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	salt     BLOB NOT NULL,
	verifier TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS credentials (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	type         INTEGER NOT NULL,
	username     TEXT NOT NULL DEFAULT '',
	host_pattern TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	sealed_data  TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);
`

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, trace.Wrap(err, "opening vault database %q", dsn)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, trace.Wrap(err, "initializing vault schema")
	}
	return db, nil
}

// loadMeta returns the stored salt and verifier, or (nil, nil, nil) if
// the vault has never been initialized.
func loadMeta(db *sql.DB) (salt []byte, verifier []byte, err error) {
	var verifierB64 string
	row := db.QueryRow(`SELECT salt, verifier FROM vault_meta WHERE id = 1`)
	if err := row.Scan(&salt, &verifierB64); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, trace.Wrap(err, "loading vault metadata")
	}
	verifier, err = base64.StdEncoding.DecodeString(verifierB64)
	if err != nil {
		return nil, nil, trace.Wrap(err, "decoding vault verifier")
	}
	return salt, verifier, nil
}

func storeMeta(db *sql.DB, salt, verifier []byte) error {
	_, err := db.Exec(
		`INSERT INTO vault_meta (id, salt, verifier) VALUES (1, ?, ?)`,
		salt, base64.StdEncoding.EncodeToString(verifier),
	)
	return trace.Wrap(err)
}

type credentialRow struct {
	id          string
	name        string
	ctype       CredentialType
	username    string
	hostPattern string
	tags        []string
	sealed      []byte
	createdAt   time.Time
}

func insertCredential(db *sql.DB, row credentialRow) error {
	tagsJSON, err := json.Marshal(row.tags)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = db.Exec(
		`INSERT INTO credentials (id, name, type, username, host_pattern, tags, sealed_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.name, int(row.ctype), row.username, row.hostPattern,
		string(tagsJSON), base64.StdEncoding.EncodeToString(row.sealed), row.createdAt,
	)
	return trace.Wrap(err)
}

func scanCredentialRow(scan func(dest ...any) error) (credentialRow, error) {
	var row credentialRow
	var tagsJSON, sealedB64 string
	var ctype int
	if err := scan(&row.id, &row.name, &ctype, &row.username, &row.hostPattern, &tagsJSON, &sealedB64, &row.createdAt); err != nil {
		return credentialRow{}, trace.Wrap(err)
	}
	row.ctype = CredentialType(ctype)
	if err := json.Unmarshal([]byte(tagsJSON), &row.tags); err != nil {
		return credentialRow{}, trace.Wrap(err, "decoding credential tags")
	}
	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return credentialRow{}, trace.Wrap(err, "decoding credential ciphertext")
	}
	row.sealed = sealed
	return row, nil
}

const credentialColumns = "id, name, type, username, host_pattern, tags, sealed_data, created_at"

func getCredential(db *sql.DB, id string) (credentialRow, error) {
	q := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`
	r := db.QueryRow(q, id)
	row, err := scanCredentialRow(r.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return credentialRow{}, trace.NotFound("credential %q not found", id)
		}
		return credentialRow{}, trace.Wrap(err)
	}
	return row, nil
}

func listCredentials(db *sql.DB, ctype *CredentialType) ([]credentialRow, error) {
	q := `SELECT ` + credentialColumns + ` FROM credentials`
	var rows *sql.Rows
	var err error
	if ctype != nil {
		rows, err = db.Query(q+` WHERE type = ?`, int(*ctype))
	} else {
		rows, err = db.Query(q)
	}
	if err != nil {
		return nil, trace.Wrap(err, "listing credentials")
	}
	defer rows.Close()

	var out []credentialRow
	for rows.Next() {
		row, err := scanCredentialRow(rows.Scan)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		out = append(out, row)
	}
	return out, trace.Wrap(rows.Err())
}

func findCredentialsByHost(db *sql.DB, host string) ([]credentialRow, error) {
	all, err := listCredentials(db, nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var matched []credentialRow
	for _, row := range all {
		if row.hostPattern == "" {
			continue
		}
		ok, err := path.Match(row.hostPattern, host)
		if err != nil {
			continue
		}
		if ok {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func deleteCredential(db *sql.DB, id string) error {
	res, err := db.Exec(`DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return trace.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return trace.Wrap(err)
	}
	if n == 0 {
		return trace.NotFound("credential %q not found", id)
	}
	return nil
}

func (r credentialRow) summary() CredentialSummary {
	return CredentialSummary{
		ID:          r.id,
		Name:        r.name,
		Type:        r.ctype,
		Tags:        r.tags,
		Username:    r.username,
		HostPattern: r.hostPattern,
		CreatedAt:   r.createdAt,
	}
}
