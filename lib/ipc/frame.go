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

package ipc

import (
	"encoding/binary"
	"io"

	"github.com/gravitational/trace"
)

// MessageTooLargeError is returned by readFrame when a peer announces
// a frame longer than the configured maximum; the connection is left
// open so the server can respond before the caller decides to close it.
type MessageTooLargeError struct {
	Size, Max uint32
}

func (e *MessageTooLargeError) Error() string {
	return trace.LimitExceeded("message of %d bytes exceeds the %d byte limit", e.Size, e.Max).Error()
}

// readFrame reads one u32_le length-prefixed frame from r.
func readFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, trace.Wrap(err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxSize {
		// Drain the oversized payload so framing stays in sync for the
		// next message on this connection.
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return nil, trace.Wrap(err)
		}
		return nil, &MessageTooLargeError{Size: n, Max: maxSize}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, trace.Wrap(err)
	}
	return payload, nil
}

// writeFrame writes one u32_le length-prefixed frame to w.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return trace.Wrap(err)
	}
	if _, err := w.Write(payload); err != nil {
		return trace.Wrap(err)
	}
	return nil
}
