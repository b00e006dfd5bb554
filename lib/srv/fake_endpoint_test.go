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

import (
	"io"
	"sync"
)

// fakeEndpoint is an in-memory Endpoint used by Session Manager tests
// so they don't need to spawn a real PTY or dial SSH.
type fakeEndpoint struct {
	mu     sync.Mutex
	toRead []byte
	wrote  []byte
	closed bool
	cols   uint16
	rows   uint16
	readC  chan struct{}
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{readC: make(chan struct{}, 1)}
}

func (f *fakeEndpoint) feed(data []byte) {
	f.mu.Lock()
	f.toRead = append(f.toRead, data...)
	f.mu.Unlock()
	select {
	case f.readC <- struct{}{}:
	default:
	}
}

func (f *fakeEndpoint) Read(buf []byte) (int, error) {
	for {
		f.mu.Lock()
		if f.closed && len(f.toRead) == 0 {
			f.mu.Unlock()
			return 0, io.EOF
		}
		if len(f.toRead) > 0 {
			n := copy(buf, f.toRead)
			f.toRead = f.toRead[n:]
			f.mu.Unlock()
			return n, nil
		}
		f.mu.Unlock()
		<-f.readC
	}
}

func (f *fakeEndpoint) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wrote = append(f.wrote, p...)
	return len(p), nil
}

func (f *fakeEndpoint) Resize(cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cols, f.rows = cols, rows
	return nil
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	select {
	case f.readC <- struct{}{}:
	default:
	}
	return nil
}
