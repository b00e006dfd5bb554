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
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) (*Vault, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	path := filepath.Join(t.TempDir(), "vault.db")
	v, err := Open(Config{Path: path, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v, clock
}

func TestInitializeThenUnlockWithWrongThenRightPassword(t *testing.T) {
	v, _ := newTestVault(t)
	require.Equal(t, StateUninitialized, v.State())

	require.NoError(t, v.Initialize("correct horse battery staple"))
	require.Equal(t, StateLocked, v.State())

	err := v.Unlock("wrong password")
	require.Error(t, err)
	require.Equal(t, StateLocked, v.State())

	require.NoError(t, v.Unlock("correct horse battery staple"))
	require.Equal(t, StateUnlocked, v.State())
}

func TestStoreAndFindByHost(t *testing.T) {
	v, _ := newTestVault(t)
	require.NoError(t, v.Initialize("correct horse battery staple"))
	require.NoError(t, v.Unlock("correct horse battery staple"))

	id, err := v.Store("prod-ssh", CredentialSSHKey, map[string]string{
		"private_key": "-----BEGIN...",
	}, []string{"prod"}, "", "*.prod.example.com")
	require.NoError(t, err)

	matches, err := v.FindByHost("web01.prod.example.com")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, id, matches[0].ID)

	noMatches, err := v.FindByHost("web01.staging.example.com")
	require.NoError(t, err)
	require.Empty(t, noMatches)
}

func TestGetRoundTripsPlaintext(t *testing.T) {
	v, _ := newTestVault(t)
	require.NoError(t, v.Initialize("hunter2hunter2"))
	require.NoError(t, v.Unlock("hunter2hunter2"))

	id, err := v.Store("db-password", CredentialPassword, map[string]string{"password": "s3cr3t"}, nil, "dbadmin", "")
	require.NoError(t, err)

	cred, err := v.Get(id)
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", cred.Data["password"])
	require.Equal(t, "dbadmin", cred.Username)
}

func TestLockZeroesKeyAndBlocksCredentialOps(t *testing.T) {
	v, _ := newTestVault(t)
	require.NoError(t, v.Initialize("hunter2hunter2"))
	require.NoError(t, v.Unlock("hunter2hunter2"))

	id, err := v.Store("name", CredentialPassword, map[string]string{"password": "x"}, nil, "", "")
	require.NoError(t, err)

	v.Lock()
	require.Equal(t, StateLocked, v.State())
	require.Nil(t, v.masterKey)

	_, err = v.Get(id)
	require.Error(t, err)
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
}

func TestConsecutiveUnlockFailuresTriggerBackoff(t *testing.T) {
	v, clock := newTestVault(t)
	require.NoError(t, v.Initialize("hunter2hunter2"))

	for i := 0; i < lockoutThreshold+1; i++ {
		require.Error(t, v.Unlock("wrong"))
	}

	err := v.Unlock("wrong")
	require.Error(t, err)
	var backoff *BackoffError
	require.ErrorAs(t, err, &backoff)

	clock.Advance(backoff.RetryAfter + 1)
	err = v.Unlock("hunter2hunter2")
	require.NoError(t, err)
}

func TestDeleteRemovesCredential(t *testing.T) {
	v, _ := newTestVault(t)
	require.NoError(t, v.Initialize("hunter2hunter2"))
	require.NoError(t, v.Unlock("hunter2hunter2"))

	id, err := v.Store("name", CredentialPassword, map[string]string{"password": "x"}, nil, "", "")
	require.NoError(t, err)
	require.NoError(t, v.Delete(id))

	_, err = v.Get(id)
	require.Error(t, err)
}
