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

package srv

// Endpoint is the byte-stream contract shared by the local PTY
// endpoint and the remote SSH endpoint. The Session Manager and
// Session only ever program against this interface; neither cares
// which concrete transport backs a given session.
type Endpoint interface {
	// Read blocks for the next chunk of output. It returns io.EOF once
	// the underlying process/channel has ended.
	Read(buf []byte) (n int, err error)
	// Write sends bytes to the endpoint. Partial writes are retried
	// internally by the caller (Session.SendInput), not by Read/Write
	// themselves.
	Write(p []byte) (n int, err error)
	// Resize reshapes the backing terminal.
	Resize(cols, rows uint16) error
	// Close tears down the endpoint: kills the child process (PTY) or
	// closes the channel and connection (SSH).
	Close() error
}
