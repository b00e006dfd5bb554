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

package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(t *testing.T) (*Receiver, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	r, err := NewReceiver(Config{
		StorageRoot: t.TempDir(),
		Clock:       clock,
		ChunkSize:   4,
	})
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r, clock
}

// splitChunks splits data into DefaultChunkSize-less test-sized chunks
// of size chunkSize (last chunk may be shorter).
func splitChunks(data []byte, chunkSize int) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}

func startTransfer(t *testing.T, r *Receiver, transferID string, data []byte, chunkSize int) [][]byte {
	t.Helper()
	chunks := splitChunks(data, chunkSize)
	ack, err := r.HandleStart(TransferStart{
		TransferID:  transferID,
		FileName:    "payload.bin",
		FileSize:    int64(len(data)),
		ChunkSize:   chunkSize,
		TotalChunks: len(chunks),
		Blake3Hash:  hashBytes(data),
	})
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	return chunks
}

func TestFullTransferInOrderSucceeds(t *testing.T) {
	r, _ := newTestReceiver(t)
	data := []byte("the quick brown fox jumps over the lazy dog!!")
	chunks := startTransfer(t, r, "tx-1", data, 4)

	for i, chunk := range chunks {
		ack, errMsg := r.HandleChunk(ChunkHeader{
			TransferID: "tx-1",
			ChunkIndex: i,
			ChunkSize:  len(chunk),
			ChunkHash:  hashBytes(chunk),
		}, chunk)
		require.Nil(t, errMsg)
		require.True(t, ack.Received)
		require.True(t, ack.HashValid)
	}

	success, errMsg := r.HandleComplete(TransferComplete{TransferID: "tx-1", FinalHash: hashBytes(data)})
	require.Nil(t, errMsg)
	require.True(t, success.Verified)
	require.Equal(t, len(chunks), success.ReceivedChunks)

	saved, err := os.ReadFile(success.SavedPath)
	require.NoError(t, err)
	require.Equal(t, data, saved)
}

func TestOutOfOrderAndDuplicateChunksAreAccepted(t *testing.T) {
	r, _ := newTestReceiver(t)
	data := []byte("0123456789abcdef0123456789abcdef")
	chunks := startTransfer(t, r, "tx-2", data, 4)

	order := []int{2, 0, 1, 3, 0, 4, 5, 6, 7, 8}
	for _, i := range order {
		if i >= len(chunks) {
			continue
		}
		ack, errMsg := r.HandleChunk(ChunkHeader{
			TransferID: "tx-2",
			ChunkIndex: i,
			ChunkSize:  len(chunks[i]),
			ChunkHash:  hashBytes(chunks[i]),
		}, chunks[i])
		require.Nil(t, errMsg)
		require.True(t, ack.Received)
		require.True(t, ack.HashValid)
	}

	success, errMsg := r.HandleComplete(TransferComplete{TransferID: "tx-2", FinalHash: hashBytes(data)})
	require.Nil(t, errMsg)
	require.Equal(t, data, mustRead(t, success.SavedPath))
}

func TestChunkHashMismatchIsNotPersisted(t *testing.T) {
	r, _ := newTestReceiver(t)
	data := []byte("abcdefgh")
	chunks := startTransfer(t, r, "tx-3", data, 4)

	ack, errMsg := r.HandleChunk(ChunkHeader{
		TransferID: "tx-3",
		ChunkIndex: 0,
		ChunkSize:  len(chunks[0]),
		ChunkHash:  "not-the-real-hash",
	}, chunks[0])
	require.Nil(t, errMsg)
	require.True(t, ack.Received)
	require.False(t, ack.HashValid)

	_, err := r.HandleComplete(TransferComplete{TransferID: "tx-3", FinalHash: hashBytes(data)})
	require.NotNil(t, err)
	require.Equal(t, ErrIncompleteTransfer, err.Kind)
}

func TestTamperedPersistedChunkFailsCompleteAndLeavesFinalDirEmpty(t *testing.T) {
	storageRoot := t.TempDir()
	clock := clockwork.NewFakeClock()
	r, err := NewReceiver(Config{StorageRoot: storageRoot, Clock: clock, ChunkSize: 4})
	require.NoError(t, err)
	defer r.Stop()

	data := []byte("abcdefgh")
	chunks := startTransfer(t, r, "tx-8", data, 4)
	for i, chunk := range chunks {
		ack, errMsg := r.HandleChunk(ChunkHeader{
			TransferID: "tx-8",
			ChunkIndex: i,
			ChunkSize:  len(chunk),
			ChunkHash:  hashBytes(chunk),
		}, chunk)
		require.Nil(t, errMsg)
		require.True(t, ack.Received)
		require.True(t, ack.HashValid)
	}

	// Tamper with a chunk already persisted to disk, bypassing
	// HandleChunk's own hash check, to simulate corruption between
	// receipt and assembly.
	dir := newTransferDir(storageRoot, "tx-8")
	require.NoError(t, dir.writeChunk(0, []byte("XXXX")))

	_, errMsg := r.HandleComplete(TransferComplete{TransferID: "tx-8", FinalHash: hashBytes(data)})
	require.NotNil(t, errMsg)
	require.Equal(t, ErrFileHashMismatch, errMsg.Kind)

	entries, err := os.ReadDir(dir.finalDir())
	require.NoError(t, err)
	require.Empty(t, entries, "final/ must stay empty when the assembled hash does not match")
}

func TestResumeReportsMissingChunksFromFilesystemScan(t *testing.T) {
	r, _ := newTestReceiver(t)
	data := []byte("0123456789abcdef")
	chunks := startTransfer(t, r, "tx-4", data, 4)

	for _, i := range []int{0, 2} {
		_, errMsg := r.HandleChunk(ChunkHeader{
			TransferID: "tx-4",
			ChunkIndex: i,
			ChunkSize:  len(chunks[i]),
			ChunkHash:  hashBytes(chunks[i]),
		}, chunks[i])
		require.Nil(t, errMsg)
	}

	info, err := r.HandleResume(ResumeRequest{TransferID: "tx-4", FileSize: int64(len(data)), Blake3Hash: hashBytes(data)})
	require.NoError(t, err)
	require.True(t, info.Resumable)
	require.ElementsMatch(t, []int{0, 2}, info.ReceivedChunks)
	require.ElementsMatch(t, []int{1, 3}, info.MissingChunks)
	require.Equal(t, 1, info.NextChunkIndex)
}

func TestResumeMismatchedHashIsNotResumable(t *testing.T) {
	r, _ := newTestReceiver(t)
	data := []byte("0123456789abcdef")
	startTransfer(t, r, "tx-5", data, 4)

	info, err := r.HandleResume(ResumeRequest{TransferID: "tx-5", FileSize: int64(len(data)), Blake3Hash: "wrong-hash"})
	require.NoError(t, err)
	require.False(t, info.Resumable)
}

func TestAbortPreservesDirectoryForLaterResume(t *testing.T) {
	r, _ := newTestReceiver(t)
	data := []byte("0123456789abcdef")
	chunks := startTransfer(t, r, "tx-6", data, 4)
	_, errMsg := r.HandleChunk(ChunkHeader{TransferID: "tx-6", ChunkIndex: 0, ChunkSize: len(chunks[0]), ChunkHash: hashBytes(chunks[0])}, chunks[0])
	require.Nil(t, errMsg)

	require.NoError(t, r.HandleAbort(TransferAbort{TransferID: "tx-6", Reason: "user cancelled"}))

	info, err := r.HandleResume(ResumeRequest{TransferID: "tx-6", FileSize: int64(len(data)), Blake3Hash: hashBytes(data)})
	require.NoError(t, err)
	require.True(t, info.Resumable)
	require.Contains(t, info.ReceivedChunks, 0)
}

func TestTransferTimeoutMarksFailedButKeepsDirectory(t *testing.T) {
	clock := clockwork.NewFakeClock()
	storageRoot := t.TempDir()
	r, err := NewReceiver(Config{
		StorageRoot:     storageRoot,
		Clock:           clock,
		ChunkSize:       4,
		TransferTimeout: time.Minute,
	})
	require.NoError(t, err)
	defer r.Stop()

	data := []byte("0123456789ab")
	startTransfer(t, r, "tx-7", data, 4)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Minute)

	dir := newTransferDir(storageRoot, "tx-7")
	require.Eventually(t, func() bool {
		m, err := dir.loadMetadata()
		return err == nil && m.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	info, err := r.HandleResume(ResumeRequest{TransferID: "tx-7", FileSize: int64(len(data)), Blake3Hash: hashBytes(data)})
	require.NoError(t, err)
	require.True(t, info.Resumable, "per-transfer directory must survive a timeout for later resume")
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Clean(path))
	require.NoError(t, err)
	return data
}
