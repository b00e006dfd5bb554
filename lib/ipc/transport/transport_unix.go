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

//go:build !windows

package transport

import (
	"net"
	"os"

	"github.com/gravitational/trace"
)

// Listen binds a unix stream socket at path with 0600 permissions. A
// stale socket left behind by a crashed daemon is removed first, but
// only after confirming nothing is listening on it.
func Listen(path string) (Listener, error) {
	if err := removeStaleSocket(path); err != nil {
		return nil, trace.Wrap(err)
	}

	ls, err := net.Listen("unix", path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ls.Close()
		return nil, trace.ConvertSystemError(err)
	}
	return ls, nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return trace.ConvertSystemError(err)
	}

	// A successful dial means something is actively listening; refuse
	// to remove a socket that's in use.
	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return trace.AlreadyExists("socket %q is already in use", path)
	}

	return trace.ConvertSystemError(os.Remove(path))
}
