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
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Config configures a Receiver.
type Config struct {
	// StorageRoot is the parent directory holding one subdirectory per
	// transfer id.
	StorageRoot string
	// Clock is injected for transfer-timeout testing.
	Clock clockwork.Clock
	// Log is the component logger.
	Log *logrus.Entry
	// ChunkSize is the expected size of every chunk but the last.
	ChunkSize int
	// MaxFileSize rejects TransferStart offers above this size.
	MaxFileSize int64
	// MaxParallelChunks bounds how many unacknowledged chunks the
	// sender is told it may keep in flight.
	MaxParallelChunks int
	// TransferTimeout is how long a transfer may sit with no chunk
	// activity before the reaper marks it Failed.
	TransferTimeout time.Duration
}

func (c *Config) CheckAndSetDefaults() error {
	if c.StorageRoot == "" {
		return trace.BadParameter("transfer: StorageRoot is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxParallelChunks == 0 {
		c.MaxParallelChunks = DefaultMaxParallel
	}
	if c.TransferTimeout == 0 {
		c.TransferTimeout = 30 * time.Minute
	}
	return nil
}

// activeTransfer is the in-memory view of one transfer in flight: the
// metadata cache plus the liveness clock the reaper consults. The
// chunks directory on disk remains the authoritative record; this is
// purely an accelerator so every chunk write doesn't re-scan the
// directory.
type activeTransfer struct {
	mu           sync.Mutex
	dir          transferDir
	meta         metadata
	lastActivity time.Time
}

// Receiver drives the receiver side of the file-transfer protocol. It
// never initiates a transfer; TransferStart is always sender-driven.
type Receiver struct {
	cfg Config

	mu        sync.Mutex
	transfers map[string]*activeTransfer

	cancel func()
}

// NewReceiver constructs a Receiver and starts its background
// timeout-reaper.
func NewReceiver(cfg Config) (*Receiver, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := os.MkdirAll(cfg.StorageRoot, 0o700); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	r := &Receiver{cfg: cfg, transfers: make(map[string]*activeTransfer)}
	done := make(chan struct{})
	r.cancel = sync.OnceFunc(func() { close(done) })
	go r.reapLoop(done)
	return r, nil
}

func (r *Receiver) now() int64 { return r.cfg.Clock.Now().UnixMilli() }

// HandleStart processes a sender's TransferStart offer. A transfer id
// that already has a directory is refused — callers with partial
// state should use ResumeRequest instead.
func (r *Receiver) HandleStart(msg TransferStart) (TransferAck, error) {
	if msg.FileSize > r.cfg.MaxFileSize {
		return TransferAck{TransferID: msg.TransferID, Accepted: false, TimestampMS: r.now()}, nil
	}

	dir := newTransferDir(r.cfg.StorageRoot, msg.TransferID)
	if dir.exists() {
		return TransferAck{TransferID: msg.TransferID, Accepted: false, ResumeSupported: true, TimestampMS: r.now()}, nil
	}
	if err := dir.ensureDirs(); err != nil {
		return TransferAck{}, trace.Wrap(err)
	}

	m := &metadata{
		TransferID:     msg.TransferID,
		FileName:       msg.FileName,
		FileSize:       msg.FileSize,
		ChunkSize:      msg.ChunkSize,
		TotalChunks:    msg.TotalChunks,
		Blake3Hash:     msg.Blake3Hash,
		MimeType:       msg.MimeType,
		ReceivedChunks: []int{},
		Status:         StatusInProgress,
	}
	if err := dir.writeMetadata(m); err != nil {
		return TransferAck{}, trace.Wrap(err)
	}

	r.mu.Lock()
	r.transfers[msg.TransferID] = &activeTransfer{dir: dir, meta: *m, lastActivity: r.cfg.Clock.Now()}
	r.mu.Unlock()

	return TransferAck{
		TransferID:      msg.TransferID,
		Accepted:        true,
		ResumeSupported: true,
		MaxChunkSize:    r.cfg.ChunkSize,
		TimestampMS:     r.now(),
	}, nil
}

func (r *Receiver) lookupActive(transferID string) (*activeTransfer, error) {
	r.mu.Lock()
	at, ok := r.transfers[transferID]
	r.mu.Unlock()
	if ok {
		return at, nil
	}

	dir := newTransferDir(r.cfg.StorageRoot, transferID)
	if !dir.exists() {
		return nil, trace.NotFound("transfer %q not found", transferID)
	}
	m, err := dir.loadMetadata()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	at = &activeTransfer{dir: dir, meta: *m, lastActivity: r.cfg.Clock.Now()}

	r.mu.Lock()
	r.transfers[transferID] = at
	r.mu.Unlock()
	return at, nil
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// HandleChunk processes one ChunkData header and its raw payload.
func (r *Receiver) HandleChunk(header ChunkHeader, payload []byte) (ChunkAck, *Error) {
	at, err := r.lookupActive(header.TransferID)
	if err != nil {
		return ChunkAck{}, &Error{TransferID: header.TransferID, Kind: ErrTransferNotFound, Message: err.Error(), TimestampMS: r.now()}
	}

	at.mu.Lock()
	defer at.mu.Unlock()

	expected := at.meta.ChunkSize
	isLast := header.ChunkIndex == at.meta.TotalChunks-1
	if header.ChunkIndex < 0 || header.ChunkIndex >= at.meta.TotalChunks {
		return ChunkAck{TransferID: header.TransferID, ChunkIndex: header.ChunkIndex, Received: false, HashValid: false, TimestampMS: r.now()},
			&Error{TransferID: header.TransferID, Kind: ErrInvalidChunkSize, Message: "chunk index out of range", TimestampMS: r.now()}
	}
	if header.ChunkSize != len(payload) || (!isLast && header.ChunkSize != expected) {
		return ChunkAck{TransferID: header.TransferID, ChunkIndex: header.ChunkIndex, Received: false, HashValid: false, TimestampMS: r.now()},
			&Error{TransferID: header.TransferID, Kind: ErrInvalidChunkSize, Message: "announced chunk_size does not match payload", TimestampMS: r.now()}
	}

	at.lastActivity = r.cfg.Clock.Now()

	if contains(at.meta.ReceivedChunks, header.ChunkIndex) {
		// Duplicate in-range chunk: accepted-and-discarded per spec.
		return ChunkAck{TransferID: header.TransferID, ChunkIndex: header.ChunkIndex, Received: true, HashValid: true, TimestampMS: r.now()}, nil
	}

	if hashBytes(payload) != header.ChunkHash {
		return ChunkAck{TransferID: header.TransferID, ChunkIndex: header.ChunkIndex, Received: true, HashValid: false, TimestampMS: r.now()}, nil
	}

	if err := at.dir.writeChunk(header.ChunkIndex, payload); err != nil {
		return ChunkAck{}, &Error{TransferID: header.TransferID, Kind: ErrDiskFull, Message: err.Error(), TimestampMS: r.now()}
	}

	at.meta.ReceivedChunks = append(at.meta.ReceivedChunks, header.ChunkIndex)
	if err := at.dir.writeMetadata(&at.meta); err != nil {
		return ChunkAck{}, &Error{TransferID: header.TransferID, Kind: ErrDiskFull, Message: err.Error(), TimestampMS: r.now()}
	}

	return ChunkAck{TransferID: header.TransferID, ChunkIndex: header.ChunkIndex, Received: true, HashValid: true, TimestampMS: r.now()}, nil
}

// HandleComplete validates and assembles the final file once the
// sender announces every chunk has been sent.
func (r *Receiver) HandleComplete(msg TransferComplete) (*TransferSuccess, *Error) {
	at, err := r.lookupActive(msg.TransferID)
	if err != nil {
		return nil, &Error{TransferID: msg.TransferID, Kind: ErrTransferNotFound, Message: err.Error(), TimestampMS: r.now()}
	}

	at.mu.Lock()
	defer at.mu.Unlock()

	indices, scanErr := at.dir.scanChunks()
	if scanErr != nil {
		return nil, &Error{TransferID: msg.TransferID, Kind: ErrDiskFull, Message: scanErr.Error(), TimestampMS: r.now()}
	}
	if len(indices) != at.meta.TotalChunks {
		return nil, &Error{TransferID: msg.TransferID, Kind: ErrIncompleteTransfer, Message: "not all chunks received", TimestampMS: r.now()}
	}

	tmpAssembled, totalBytes, err := assembleFile(at.dir, indices)
	if err != nil {
		return nil, &Error{TransferID: msg.TransferID, Kind: ErrDiskFull, Message: err.Error(), TimestampMS: r.now()}
	}

	computed, err := hashFile(tmpAssembled)
	if err != nil {
		os.Remove(tmpAssembled)
		return nil, &Error{TransferID: msg.TransferID, Kind: ErrDiskFull, Message: err.Error(), TimestampMS: r.now()}
	}
	if computed != msg.FinalHash || computed != at.meta.Blake3Hash {
		os.Remove(tmpAssembled)
		return nil, &Error{TransferID: msg.TransferID, Kind: ErrFileHashMismatch, Message: "assembled file hash does not match", TimestampMS: r.now()}
	}

	assembled, err := at.dir.publishFinal(tmpAssembled, at.meta.FileName)
	if err != nil {
		os.Remove(tmpAssembled)
		return nil, &Error{TransferID: msg.TransferID, Kind: ErrDiskFull, Message: err.Error(), TimestampMS: r.now()}
	}

	at.meta.Status = StatusComplete
	if err := at.dir.writeMetadata(&at.meta); err != nil {
		return nil, &Error{TransferID: msg.TransferID, Kind: ErrDiskFull, Message: err.Error(), TimestampMS: r.now()}
	}

	return &TransferSuccess{
		TransferID:     msg.TransferID,
		Verified:       true,
		SavedPath:      assembled,
		ReceivedChunks: len(indices),
		ReceivedBytes:  totalBytes,
		ComputedHash:   computed,
		TimestampMS:    r.now(),
	}, nil
}

// HandleResume answers a ResumeRequest by trusting the chunks
// directory over metadata.json when the two disagree.
func (r *Receiver) HandleResume(msg ResumeRequest) (*ResumeInfo, error) {
	dir := newTransferDir(r.cfg.StorageRoot, msg.TransferID)
	if !dir.exists() {
		return nil, trace.NotFound("transfer %q not found", msg.TransferID)
	}
	m, err := dir.loadMetadata()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if m.FileSize != msg.FileSize || m.Blake3Hash != msg.Blake3Hash {
		return &ResumeInfo{TransferID: msg.TransferID, Resumable: false, TimestampMS: r.now()}, nil
	}

	received, err := dir.scanChunks()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	receivedSet := make(map[int]struct{}, len(received))
	for _, idx := range received {
		receivedSet[idx] = struct{}{}
	}
	var missing []int
	var receivedBytes int64
	for i := 0; i < m.TotalChunks; i++ {
		if _, ok := receivedSet[i]; ok {
			size := m.ChunkSize
			if i == m.TotalChunks-1 {
				size = int(m.FileSize - int64(m.ChunkSize)*int64(m.TotalChunks-1))
			}
			receivedBytes += int64(size)
			continue
		}
		missing = append(missing, i)
	}
	next := -1
	if len(missing) > 0 {
		next = missing[0]
	}

	// metadata.json is refreshed to match the authoritative scan.
	m.ReceivedChunks = received
	_ = dir.writeMetadata(m)

	r.mu.Lock()
	r.transfers[msg.TransferID] = &activeTransfer{dir: dir, meta: *m, lastActivity: r.cfg.Clock.Now()}
	r.mu.Unlock()

	return &ResumeInfo{
		TransferID:     msg.TransferID,
		Resumable:      true,
		ReceivedChunks: received,
		MissingChunks:  missing,
		NextChunkIndex: next,
		ReceivedBytes:  receivedBytes,
		TimestampMS:    r.now(),
	}, nil
}

// HandleAbort marks a transfer Aborted but preserves its directory for
// a later resume.
func (r *Receiver) HandleAbort(msg TransferAbort) error {
	at, err := r.lookupActive(msg.TransferID)
	if err != nil {
		return trace.Wrap(err)
	}
	at.mu.Lock()
	defer at.mu.Unlock()
	at.meta.Status = StatusAborted
	return trace.Wrap(at.dir.writeMetadata(&at.meta))
}

// reapLoop marks transfers Failed once they exceed TransferTimeout
// with no chunk activity. Per-transfer directories are never deleted.
func (r *Receiver) reapLoop(done <-chan struct{}) {
	ticker := r.cfg.Clock.NewTicker(r.cfg.TransferTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			r.reap()
		}
	}
}

func (r *Receiver) reap() {
	threshold := r.cfg.Clock.Now().Add(-r.cfg.TransferTimeout)

	r.mu.Lock()
	actives := make([]*activeTransfer, 0, len(r.transfers))
	for _, at := range r.transfers {
		actives = append(actives, at)
	}
	r.mu.Unlock()

	for _, at := range actives {
		at.mu.Lock()
		if at.meta.Status == StatusInProgress && at.lastActivity.Before(threshold) {
			at.meta.Status = StatusFailed
			_ = at.dir.writeMetadata(&at.meta)
			r.cfg.Log.WithField("transfer_id", at.meta.TransferID).Warn("Transfer timed out with no activity.")
		}
		at.mu.Unlock()
	}
}

// Stop halts the background reaper.
func (r *Receiver) Stop() {
	r.cancel()
}
