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
	"crypto/cipher"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	// lockoutThreshold is the number of consecutive failed unlock
	// attempts tolerated before backoff kicks in.
	lockoutThreshold = 3
	lockoutBase      = time.Second
	lockoutMax       = 5 * time.Minute
)

// LockedError is returned by every credential operation while the
// vault is Locked or Uninitialized.
type LockedError struct{}

func (e *LockedError) Error() string {
	return trace.AccessDenied("vault is locked").Error()
}

// BackoffError is returned by Unlock while a prior run of consecutive
// failures is still under its backoff window.
type BackoffError struct {
	RetryAfter time.Duration
}

func (e *BackoffError) Error() string {
	return trace.LimitExceeded("too many failed unlock attempts, retry after %s", e.RetryAfter).Error()
}

// Config configures a Vault.
type Config struct {
	// Path is the sqlite database file backing the vault.
	Path string
	// Clock is injected for lockout-backoff testing.
	Clock clockwork.Clock
	// Log is the component logger.
	Log *logrus.Entry
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Path == "" {
		return trace.BadParameter("vault: Path is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return nil
}

// Vault is the authenticated-encrypted credential store gated by a
// master-password state machine. It exclusively owns the master key
// while Unlocked; credentials handed back to callers are the caller's
// to zero when done.
type Vault struct {
	cfg Config
	db  *sql.DB

	mu        sync.Mutex
	state     State
	masterKey []byte
	aead      cipher.AEAD

	consecutiveFailures int
	backoffUntil        time.Time
}

// Open opens (creating if necessary) the vault's backing database and
// determines its initial state without requiring a password.
func Open(cfg Config) (*Vault, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	db, err := openDB(cfg.Path)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	salt, _, err := loadMeta(db)
	if err != nil {
		db.Close()
		return nil, trace.Wrap(err)
	}

	v := &Vault{cfg: cfg, db: db, state: StateLocked}
	if salt == nil {
		v.state = StateUninitialized
	}
	return v, nil
}

// State returns the vault's current lifecycle state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Initialize derives a master key from password with a freshly
// generated salt, stores an encrypted verification blob, and
// transitions the vault to Locked. It fails if the vault was already
// initialized.
func (v *Vault) Initialize(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUninitialized {
		return trace.AlreadyExists("vault is already initialized")
	}

	salt, err := newSalt()
	if err != nil {
		return trace.Wrap(err)
	}
	key := deriveKey(password, salt)
	defer zeroize(key)

	aead, err := newAEAD(key)
	if err != nil {
		return trace.Wrap(err)
	}
	verifier, err := sealRecord(aead, verificationConstant)
	if err != nil {
		return trace.Wrap(err)
	}

	if err := storeMeta(v.db, salt, verifier); err != nil {
		return trace.Wrap(err)
	}

	v.state = StateLocked
	return nil
}

// Unlock derives a candidate key from password and the stored salt,
// then attempts to decrypt the verification blob. On success the
// vault moves to Unlocked and retains the master key in memory until
// Lock. On failure the vault stays Locked, a generic
// AuthenticationFailed error is returned (the field at fault is never
// revealed), and consecutive-failure backoff is extended.
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == StateUninitialized {
		return trace.BadParameter("vault has not been initialized")
	}
	if v.state == StateUnlocked {
		return nil
	}

	now := v.cfg.Clock.Now()
	if now.Before(v.backoffUntil) {
		return &BackoffError{RetryAfter: v.backoffUntil.Sub(now)}
	}

	salt, verifier, err := loadMeta(v.db)
	if err != nil {
		return trace.Wrap(err)
	}

	key := deriveKey(password, salt)
	aead, err := newAEAD(key)
	if err != nil {
		zeroize(key)
		return trace.Wrap(err)
	}

	if _, err := openRecord(aead, verifier); err != nil {
		zeroize(key)
		v.registerFailureLocked()
		return trace.AccessDenied("authentication failed")
	}

	v.masterKey = key
	v.aead = aead
	v.state = StateUnlocked
	v.consecutiveFailures = 0
	v.backoffUntil = time.Time{}
	return nil
}

func (v *Vault) registerFailureLocked() {
	v.consecutiveFailures++
	if v.consecutiveFailures <= lockoutThreshold {
		return
	}
	shift := v.consecutiveFailures - lockoutThreshold
	backoff := lockoutBase << uint(shift)
	if backoff > lockoutMax || backoff <= 0 {
		backoff = lockoutMax
	}
	v.backoffUntil = v.cfg.Clock.Now().Add(backoff)
}

// Lock zeroes the master key and transitions to Locked. All
// subsequent credential operations fail with LockedError until the
// next successful Unlock.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
}

func (v *Vault) lockLocked() {
	if v.masterKey != nil {
		zeroize(v.masterKey)
		v.masterKey = nil
	}
	v.aead = nil
	if v.state == StateUnlocked {
		v.state = StateLocked
	}
}

// Close locks the vault and releases the database handle.
func (v *Vault) Close() error {
	v.Lock()
	return trace.Wrap(v.db.Close())
}

func (v *Vault) requireUnlocked() (cipher.AEAD, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateUnlocked {
		return nil, &LockedError{}
	}
	return v.aead, nil
}

// Store encrypts data and persists a new credential, returning its id.
func (v *Vault) Store(name string, ctype CredentialType, data map[string]string, tags []string, username, hostPattern string) (string, error) {
	aead, err := v.requireUnlocked()
	if err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", trace.Wrap(err)
	}
	sealed, err := sealRecord(aead, plaintext)
	if err != nil {
		return "", trace.Wrap(err)
	}

	row := credentialRow{
		id:          uuid.NewString(),
		name:        name,
		ctype:       ctype,
		username:    username,
		hostPattern: hostPattern,
		tags:        tags,
		sealed:      sealed,
		createdAt:   v.cfg.Clock.Now(),
	}
	if row.tags == nil {
		row.tags = []string{}
	}
	if err := insertCredential(v.db, row); err != nil {
		return "", trace.Wrap(err)
	}
	return row.id, nil
}

// Get decrypts and returns the full credential for id.
func (v *Vault) Get(id string) (*Credential, error) {
	aead, err := v.requireUnlocked()
	if err != nil {
		return nil, err
	}
	row, err := getCredential(v.db, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	plaintext, err := openRecord(aead, row.sealed)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var data map[string]string
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Credential{CredentialSummary: row.summary(), Data: data}, nil
}

// List returns summaries of every stored credential.
func (v *Vault) List() ([]CredentialSummary, error) {
	if _, err := v.requireUnlocked(); err != nil {
		return nil, err
	}
	rows, err := listCredentials(v.db, nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return summaries(rows), nil
}

// ListByType returns summaries filtered to credentials of the given type.
func (v *Vault) ListByType(ctype CredentialType) ([]CredentialSummary, error) {
	if _, err := v.requireUnlocked(); err != nil {
		return nil, err
	}
	rows, err := listCredentials(v.db, &ctype)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return summaries(rows), nil
}

// FindByHost returns summaries of credentials whose host_pattern glob
// matches host.
func (v *Vault) FindByHost(host string) ([]CredentialSummary, error) {
	if _, err := v.requireUnlocked(); err != nil {
		return nil, err
	}
	rows, err := findCredentialsByHost(v.db, host)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return summaries(rows), nil
}

// Delete removes a credential permanently.
func (v *Vault) Delete(id string) error {
	if _, err := v.requireUnlocked(); err != nil {
		return err
	}
	return trace.Wrap(deleteCredential(v.db, id))
}

func summaries(rows []credentialRow) []CredentialSummary {
	out := make([]CredentialSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.summary())
	}
	return out
}
