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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
)

// metadata is the on-disk, atomically-rewritten record of a transfer's
// progress. The chunks directory is authoritative over this file on
// resume — metadata is a cache of what a directory scan would also
// tell us, kept around so status queries don't need to stat every
// chunk file.
type metadata struct {
	TransferID     string   `json:"transfer_id"`
	FileName       string   `json:"file_name"`
	FileSize       int64    `json:"file_size"`
	ChunkSize      int      `json:"chunk_size"`
	TotalChunks    int      `json:"total_chunks"`
	Blake3Hash     string   `json:"blake3_hash"`
	MimeType       *string  `json:"mime_type,omitempty"`
	ReceivedChunks []int    `json:"received_chunks"`
	Status         Status   `json:"status"`
}

// transferDir is the per-transfer directory layout:
//
//	<root>/<transfer_id>/metadata.json
//	<root>/<transfer_id>/chunks/chunk-NNNNNN.bin
//	<root>/<transfer_id>/final/<file_name>
type transferDir struct {
	root string
}

func newTransferDir(storageRoot, transferID string) transferDir {
	return transferDir{root: filepath.Join(storageRoot, transferID)}
}

func (d transferDir) chunksDir() string       { return filepath.Join(d.root, "chunks") }
func (d transferDir) finalDir() string        { return filepath.Join(d.root, "final") }
func (d transferDir) metadataPath() string    { return filepath.Join(d.root, "metadata.json") }
func (d transferDir) chunkPath(index int) string {
	return filepath.Join(d.chunksDir(), fmt.Sprintf("chunk-%0*d.bin", ChunkIndexDigits, index))
}

func (d transferDir) ensureDirs() error {
	if err := os.MkdirAll(d.chunksDir(), 0o700); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err := os.MkdirAll(d.finalDir(), 0o700); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

func (d transferDir) exists() bool {
	_, err := os.Stat(d.root)
	return err == nil
}

func (d transferDir) loadMetadata() (*metadata, error) {
	data, err := os.ReadFile(d.metadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, trace.NotFound("transfer metadata not found")
		}
		return nil, trace.ConvertSystemError(err)
	}
	var m metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, trace.Wrap(err, "decoding transfer metadata")
	}
	return &m, nil
}

// writeMetadata atomically persists m via write-temp-then-rename.
func (d transferDir) writeMetadata(m *metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}
	tmp, err := os.CreateTemp(d.root, ".metadata-*.json")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return trace.ConvertSystemError(err)
	}
	if err := tmp.Close(); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err := os.Rename(tmp.Name(), d.metadataPath()); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

func (d transferDir) writeChunk(index int, payload []byte) error {
	path := d.chunkPath(index)
	tmp, err := os.CreateTemp(d.chunksDir(), ".chunk-*.bin")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return trace.ConvertSystemError(err)
	}
	if err := tmp.Close(); err != nil {
		return trace.ConvertSystemError(err)
	}
	return trace.ConvertSystemError(os.Rename(tmp.Name(), path))
}

func (d transferDir) readChunk(index int) ([]byte, error) {
	data, err := os.ReadFile(d.chunkPath(index))
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return data, nil
}

// scanChunks lists chunk files actually present on disk, the
// authoritative source of truth on resume. It returns sorted indices.
func (d transferDir) scanChunks() ([]int, error) {
	entries, err := os.ReadDir(d.chunksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, trace.ConvertSystemError(err)
	}

	var indices []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "chunk-") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "chunk-"), ".bin")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		indices = append(indices, n)
	}
	sort.Ints(indices)
	return indices, nil
}

func (d transferDir) finalPath(fileName string) string {
	return filepath.Join(d.finalDir(), fileName)
}

// assembleFile concatenates chunk files in ascending index order into
// a temp file inside d.root, returning its path and total byte count.
// The caller is responsible for either publishing the result via
// publishFinal once it has been verified, or removing it on failure —
// nothing is written to finalDir() here, so a rejected assembly never
// becomes visible in final/.
func assembleFile(d transferDir, indices []int) (string, int64, error) {
	tmp, err := os.CreateTemp(d.root, ".assemble-*.bin")
	if err != nil {
		return "", 0, trace.ConvertSystemError(err)
	}
	tmpPath := tmp.Name()

	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	var total int64
	for _, idx := range sorted {
		chunk, err := d.readChunk(idx)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return "", 0, trace.Wrap(err)
		}
		n, err := tmp.Write(chunk)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return "", 0, trace.ConvertSystemError(err)
		}
		total += int64(n)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, trace.ConvertSystemError(err)
	}
	return tmpPath, total, nil
}

// publishFinal renames a verified assembled file into finalDir(),
// making it visible at finalPath(fileName) for the first time.
func (d transferDir) publishFinal(tmpPath, fileName string) (string, error) {
	dest := d.finalPath(fileName)
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", trace.ConvertSystemError(err)
	}
	return dest, nil
}
