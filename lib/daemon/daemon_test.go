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

package daemon

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) Config {
	t.Helper()
	return Config{HomeDir: t.TempDir()}
}

func TestNewWiresEveryComponent(t *testing.T) {
	d, err := New(newTestConfig(t))
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	require.NotNil(t, d.Manager)
	require.NotNil(t, d.IPC)
	require.NotNil(t, d.Streaming)
	require.NotNil(t, d.Transfer)
	require.NotNil(t, d.Vault)
	require.NotNil(t, d.HostKeys)
	require.NotNil(t, d.Workspaces)
	require.NotNil(t, d.Metrics)
	require.Nil(t, d.TransferQUIC)
}

func TestNewStartsTransferQUICListenerWhenConfigured(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.TransferQUICAddr = "127.0.0.1:0"
	d, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	require.NotNil(t, d.TransferQUIC)
	require.NotEmpty(t, d.TransferQUIC.Addr())
}

func TestNewCreatesHomeDirState(t *testing.T) {
	home := t.TempDir()
	d, err := New(Config{HomeDir: home})
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	require.FileExists(t, filepath.Join(home, "vault.db"))
	require.FileExists(t, filepath.Join(home, "workspaces.db"))
}

// ipcRequest/ipcResponse mirror lib/ipc's wire envelopes closely
// enough to drive a smoke test without importing the ipc package (it
// already has its own dedicated tests).
type ipcRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type ipcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func TestServeExposesIPCSocketEndToEnd(t *testing.T) {
	cfg := newTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	serveErr := make(chan error, 1)
	go func() { serveErr <- Serve(ctx, cfg) }()

	socketPath := filepath.Join(cfg.HomeDir, "pulsar.sock")
	var conn net.Conn
	var err error
	require.Eventually(t, func() bool {
		conn, err = net.Dial("unix", socketPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	defer conn.Close()

	req := ipcRequest{ID: "1", Method: "get_status"}
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, writeLenPrefixed(conn, payload))

	respRaw, err := readLenPrefixed(conn)
	require.NoError(t, err)
	var resp ipcResponse
	require.NoError(t, json.Unmarshal(respRaw, &resp))
	require.Nil(t, resp.Error)

	cancel()
	select {
	case <-serveErr:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not exit after context cancellation")
	}
}

func writeLenPrefixed(conn net.Conn, payload []byte) error {
	var lenBuf [4]byte
	n := uint32(len(payload))
	lenBuf[0] = byte(n)
	lenBuf[1] = byte(n >> 8)
	lenBuf[2] = byte(n >> 16)
	lenBuf[3] = byte(n >> 24)
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func readLenPrefixed(conn net.Conn) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := uint32(lenBuf[0]) | uint32(lenBuf[1])<<8 | uint32(lenBuf[2])<<16 | uint32(lenBuf[3])<<24
	payload := make([]byte, n)
	if _, err := readFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
