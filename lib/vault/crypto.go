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
	crand "crypto/rand"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltLen = 16
	keyLen  = 32

	// argon2Time, argon2MemoryKiB, and argon2Threads meet the vault's
	// stated minimums (>=2 iterations, >=19 MiB, parallelism 1).
	argon2Time      = 3
	argon2MemoryKiB = 64 * 1024
	argon2Threads   = 1
)

// verificationConstant is encrypted under the derived master key at
// initialize() time and decrypted at unlock() time; successful
// decryption is the only evidence the caller supplied the right
// password.
var verificationConstant = []byte("pulsar-vault-verify-v1")

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2MemoryKiB, argon2Threads, keyLen)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := crand.Read(salt); err != nil {
		return nil, trace.Wrap(err, "generating vault salt")
	}
	return salt, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, trace.Wrap(err, "constructing aead cipher")
	}
	return aead, nil
}

// sealRecord encrypts plaintext with a freshly generated nonce and
// returns nonce‖ciphertext, the on-disk layout spec.md §4.6 mandates.
func sealRecord(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := crand.Read(nonce); err != nil {
		return nil, trace.Wrap(err, "generating nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// openRecord splits the nonce prefix off sealed and authenticates the
// remainder. Any tampering surfaces as a trace.CompareFailed.
func openRecord(aead cipher.AEAD, sealed []byte) ([]byte, error) {
	n := aead.NonceSize()
	if len(sealed) < n {
		return nil, trace.CompareFailed("sealed record shorter than nonce")
	}
	nonce, ciphertext := sealed[:n], sealed[n:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, trace.CompareFailed("record failed integrity check: %v", err)
	}
	return plaintext, nil
}

// zeroize overwrites b in place. It does not prevent the Go runtime
// from having copied the backing array elsewhere, but it closes the
// one window the vault controls directly.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
