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

// Package hostkeys implements the SSH host-key trust store: a text
// file in the OpenSSH known_hosts format, loaded into memory and
// queried/updated by the SSH endpoint during connection setup.
package hostkeys

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/ssh"
)

// Verdict is the outcome of checking a candidate key against the store.
type Verdict int

const (
	Trusted Verdict = iota
	Unknown
	Changed
)

// Policy controls what happens when verify() returns Unknown.
type Policy int

const (
	// Strict refuses the connection on an unknown host key; the
	// caller must explicitly Add it first. This is the default.
	Strict Policy = iota
	// TrustOnFirstUse records an unknown host key automatically and
	// proceeds.
	TrustOnFirstUse
)

// Entry is one (host, port, key) binding.
type Entry struct {
	Host      string
	Port      uint16
	PublicKey ssh.PublicKey
}

func (e Entry) addr() string {
	if e.Port == 0 || e.Port == 22 {
		return e.Host
	}
	return fmt.Sprintf("[%s]:%d", e.Host, e.Port)
}

// Store is an in-memory index over an OpenSSH known_hosts file, the
// authoritative persisted form. Writes are atomic (temp file + rename)
// and the file is rewritten sorted by host for stable diffs.
type Store struct {
	mu   sync.RWMutex
	path string
	// entries maps "host:port" -> marshaled public key bytes, so
	// equality checks don't depend on ssh.PublicKey's concrete type.
	entries map[string][]byte
	order   []string
}

// Open loads (or creates) the known_hosts file at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string][]byte)}
	if err := s.load(); err != nil {
		return nil, trace.Wrap(err)
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return trace.Wrap(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Hashed-host entries ("|1|salt|hash") cannot be reversed to
		// a plain host:port key and are skipped, per spec.
		if strings.HasPrefix(line, "|1|") {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		addr := fields[0]

		pubKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(fields[1]))
		if err != nil {
			continue
		}
		s.setLocked(addr, pubKey.Marshal())
	}
	return trace.Wrap(scanner.Err())
}

func (s *Store) setLocked(addr string, marshaled []byte) {
	if _, exists := s.entries[addr]; !exists {
		s.order = append(s.order, addr)
	}
	s.entries[addr] = marshaled
}

// Verify checks a candidate key against the store for (host, port).
// It returns Trusted, Unknown, or Changed; on Changed the previously
// stored key is also returned.
func (s *Store) Verify(host string, port uint16, key ssh.PublicKey) (Verdict, ssh.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr := (Entry{Host: host, Port: port}).addr()
	stored, ok := s.entries[addr]
	if !ok {
		return Unknown, nil, nil
	}
	if bytes.Equal(stored, key.Marshal()) {
		return Trusted, nil, nil
	}
	oldKey, err := ssh.ParsePublicKey(stored)
	if err != nil {
		return Changed, nil, trace.Wrap(err)
	}
	return Changed, oldKey, nil
}

// Add persists a new entry. It fails with AlreadyExists if the host
// is already known (use Update for an explicit replacement).
func (s *Store) Add(host string, port uint16, key ssh.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := (Entry{Host: host, Port: port}).addr()
	if _, ok := s.entries[addr]; ok {
		return trace.AlreadyExists("host key for %v is already known", addr)
	}
	s.setLocked(addr, key.Marshal())
	return trace.Wrap(s.persistLocked())
}

// Update replaces an existing entry. Only called in response to an
// explicit caller decision after observing Changed.
func (s *Store) Update(host string, port uint16, key ssh.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := (Entry{Host: host, Port: port}).addr()
	s.setLocked(addr, key.Marshal())
	return trace.Wrap(s.persistLocked())
}

// Remove deletes an entry, if present.
func (s *Store) Remove(host string, port uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := (Entry{Host: host, Port: port}).addr()
	if _, ok := s.entries[addr]; !ok {
		return nil
	}
	delete(s.entries, addr)
	for i, a := range s.order {
		if a == addr {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return trace.Wrap(s.persistLocked())
}

func (s *Store) persistLocked() error {
	sorted := append([]string(nil), s.order...)
	sort.Strings(sorted)

	var buf bytes.Buffer
	for _, addr := range sorted {
		key, err := ssh.ParsePublicKey(s.entries[addr])
		if err != nil {
			return trace.Wrap(err)
		}
		buf.WriteString(addr)
		buf.WriteByte(' ')
		buf.Write(ssh.MarshalAuthorizedKey(key))
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".known_hosts-*")
	if err != nil {
		return trace.Wrap(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return trace.Wrap(err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return trace.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return trace.Wrap(err)
	}
	return trace.Wrap(os.Rename(tmpName, s.path))
}

// Resolve splits a "host:port" address the way the SSH endpoint needs
// it, defaulting to port 22.
func Resolve(hostport string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 22, nil
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, trace.BadParameter("invalid port %q", portStr)
	}
	return host, port, nil
}
