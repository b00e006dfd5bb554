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

// Package vault implements the credential vault: an authenticated,
// encrypted store of typed secrets gated by a master-password-derived
// key. The vault never persists plaintext and never derives key
// material from anything but the caller-supplied password.
package vault

import "time"

// State is the vault's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// CredentialType tags the shape of a credential's decrypted data.
type CredentialType int

const (
	CredentialSSHKey CredentialType = iota
	CredentialPassword
	CredentialCertificate
)

func (t CredentialType) String() string {
	switch t {
	case CredentialSSHKey:
		return "ssh_key"
	case CredentialPassword:
		return "password"
	case CredentialCertificate:
		return "certificate"
	default:
		return "unknown"
	}
}

// CredentialSummary is the list()-safe view of a credential: no
// ciphertext, no plaintext.
type CredentialSummary struct {
	ID          string
	Name        string
	Type        CredentialType
	Tags        []string
	Username    string
	HostPattern string
	CreatedAt   time.Time
}

// Credential is the fully decrypted view returned only by Get.
type Credential struct {
	CredentialSummary
	Data map[string]string
}
