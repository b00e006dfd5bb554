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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"id":"1","method":"get_status"}`)
	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf, 1<<20)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadFrameRejectsOversizedPayloadButStaysInSync(t *testing.T) {
	var buf bytes.Buffer
	oversized := bytes.Repeat([]byte{'x'}, 100)
	require.NoError(t, writeFrame(&buf, oversized))

	next := []byte(`{"id":"2","method":"get_status"}`)
	require.NoError(t, writeFrame(&buf, next))

	_, err := readFrame(&buf, 10)
	var tooLarge *MessageTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	require.Equal(t, uint32(100), tooLarge.Size)
	require.Equal(t, uint32(10), tooLarge.Max)

	got, err := readFrame(&buf, 1<<20)
	require.NoError(t, err)
	require.Equal(t, next, got)
}

func TestReadFrameOnEmptyReaderReturnsError(t *testing.T) {
	var buf bytes.Buffer
	_, err := readFrame(&buf, 1<<20)
	require.Error(t, err)
}
