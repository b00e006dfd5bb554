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
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pulsarterm/pulsar/lib/srv"
)

var upgrader = websocket.Upgrader{
	// Desktop app and browser clients cross origins the net/http
	// default same-origin check would reject; the daemon only ever
	// listens on loopback, so origin checking adds no real boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket implements ws://127.0.0.1:<port>/ws/<session_id>.
// Text frames from the client carry base64-encoded input; binary
// frames carry raw input bytes. Output is always forwarded as binary
// frames. A client close frame detaches; session termination
// half-closes with a server close frame.
func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = "ws-" + uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Log.WithError(err).Debug("WebSocket upgrade failed.")
		return
	}
	defer conn.Close()

	sub, err := s.cfg.Backend.Attach(srv.SessionID(sessionID), srv.ClientID(clientID))
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer s.cfg.Backend.Detach(srv.SessionID(sessionID), srv.ClientID(clientID))

	done := make(chan struct{})
	go s.pumpOutput(conn, sub, done)
	s.pumpInput(conn, srv.SessionID(sessionID))
	<-done
}

// pumpOutput forwards fanout frames to the client as binary WebSocket
// messages until EOF or a write error, then closes done.
func (s *Service) pumpOutput(conn *websocket.Conn, sub *srv.Subscription, done chan<- struct{}) {
	defer close(done)
	for frame := range sub.Frames() {
		if frame.EOF {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session terminated"))
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
			return
		}
	}
}

// pumpInput reads client frames and relays them as session input until
// the client disconnects or sends a close frame.
func (s *Service) pumpInput(conn *websocket.Conn, sessionID srv.SessionID) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var input []byte
		switch msgType {
		case websocket.BinaryMessage:
			input = data
		case websocket.TextMessage:
			decoded, err := base64.StdEncoding.DecodeString(string(data))
			if err != nil {
				continue
			}
			input = decoded
		default:
			continue
		}

		if _, err := s.cfg.Backend.SendInput(sessionID, input); err != nil {
			s.cfg.Log.WithError(err).Debug("Failed to write websocket input to session.")
			return
		}
	}
}
