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

package streaming

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/pulsarterm/pulsar/lib/srv"
)

type fakeStreamingBackend struct {
	mu      sync.Mutex
	fanouts map[srv.SessionID]*srv.Fanout
	input   map[srv.SessionID][]byte
}

func newFakeStreamingBackend() *fakeStreamingBackend {
	return &fakeStreamingBackend{
		fanouts: make(map[srv.SessionID]*srv.Fanout),
		input:   make(map[srv.SessionID][]byte),
	}
}

func (b *fakeStreamingBackend) fanout(id srv.SessionID) *srv.Fanout {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.fanouts[id]
	if !ok {
		f = srv.NewFanout(16, nil, nil)
		b.fanouts[id] = f
	}
	return f
}

func (b *fakeStreamingBackend) Attach(id srv.SessionID, client srv.ClientID) (*srv.Subscription, error) {
	return b.fanout(id).Subscribe(client), nil
}

func (b *fakeStreamingBackend) Detach(id srv.SessionID, client srv.ClientID) error {
	b.fanout(id).Subscribe(client).Close()
	return nil
}

func (b *fakeStreamingBackend) SendInput(id srv.SessionID, data []byte) (int, error) {
	b.mu.Lock()
	b.input[id] = append(b.input[id], data...)
	b.mu.Unlock()
	return len(data), nil
}

func (b *fakeStreamingBackend) recordedInput(id srv.SessionID) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.input[id]...)
}

func TestWebSocketForwardsOutputAndRelaysInput(t *testing.T) {
	backend := newFakeStreamingBackend()
	svc, err := New(Config{Backend: backend, HTTPAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	go svc.Serve()
	t.Cleanup(svc.Stop)

	sessionID := srv.SessionID("sess-ws-1")
	url := fmt.Sprintf("ws://%s/ws/%s", svc.Addr().String(), sessionID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(base64.StdEncoding.EncodeToString([]byte("hi")))))
	require.Eventually(t, func() bool {
		return string(backend.recordedInput(sessionID)) == "hi"
	}, 2*time.Second, 10*time.Millisecond)

	backend.fanout(sessionID).Publish([]byte("output chunk"))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "output chunk", string(data))

	backend.fanout(sessionID).Close()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	require.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestWebSocketMissingSessionIDReturnsBadRequest(t *testing.T) {
	backend := newFakeStreamingBackend()
	svc, err := New(Config{Backend: backend, HTTPAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	go svc.Serve()
	t.Cleanup(svc.Stop)

	resp, err := http.Get("http://" + svc.Addr().String() + "/ws/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// fakeBidiStream is a minimal in-process grpc.ServerStream double for
// testing handleBidiStream without a real network round trip.
type fakeBidiStream struct {
	grpc.ServerStream
	in  chan []byte
	out chan []byte
}

func (f *fakeBidiStream) Context() context.Context { return context.Background() }

func (f *fakeBidiStream) SendMsg(m any) error {
	f.out <- append([]byte(nil), m.([]byte)...)
	return nil
}

func (f *fakeBidiStream) RecvMsg(m any) error {
	data, ok := <-f.in
	if !ok {
		return fmt.Errorf("stream closed")
	}
	ptr := m.(*[]byte)
	*ptr = data
	return nil
}

func TestBidiStreamForwardsOutputAndRelaysInput(t *testing.T) {
	backend := newFakeStreamingBackend()
	svc := &Service{cfg: Config{Backend: backend}}
	require.NoError(t, svc.cfg.CheckAndSetDefaults())

	stream := &fakeBidiStream{in: make(chan []byte, 4), out: make(chan []byte, 4)}
	hello, err := json.Marshal(streamFrame{SessionID: "sess-grpc-1", ClientID: "c1"})
	require.NoError(t, err)
	stream.in <- hello

	done := make(chan error, 1)
	go func() { done <- svc.handleBidiStream(stream) }()

	input, err := json.Marshal(streamFrame{Data: base64.StdEncoding.EncodeToString([]byte("abc"))})
	require.NoError(t, err)
	stream.in <- input

	require.Eventually(t, func() bool {
		return string(backend.recordedInput("sess-grpc-1")) == "abc"
	}, 2*time.Second, 10*time.Millisecond)

	backend.fanout("sess-grpc-1").Publish([]byte("server says hi"))
	raw := <-stream.out
	var frame streamFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	decoded, err := base64.StdEncoding.DecodeString(frame.Data)
	require.NoError(t, err)
	require.Equal(t, "server says hi", string(decoded))

	backend.fanout("sess-grpc-1").Close()
	raw = <-stream.out
	require.NoError(t, json.Unmarshal(raw, &frame))
	require.True(t, frame.Close)

	require.NoError(t, <-done)
}

func TestRawCodecRejectsNonByteSliceValues(t *testing.T) {
	var c rawCodec
	_, err := c.Marshal("not bytes")
	require.Error(t, err)

	var target []byte
	err = c.Unmarshal([]byte("hello"), &target)
	require.NoError(t, err)
	require.True(t, strings.EqualFold("hello", string(target)))
}
