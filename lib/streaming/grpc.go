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
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"google.golang.org/grpc"

	"github.com/pulsarterm/pulsar/lib/srv"
)

// streamFrame is the JSON envelope exchanged over the bidirectional
// gRPC stream. The first client-to-server frame MUST carry SessionID;
// ClientID is optional and synthesized if absent. Every subsequent
// frame in either direction carries base64 Data. Close marks the final
// server-to-client frame.
type streamFrame struct {
	SessionID string `json:"session_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Data      string `json:"data,omitempty"`
	Close     bool   `json:"close,omitempty"`
}

// sessionStreamServiceDesc is a hand-authored grpc.ServiceDesc: no
// .proto compilation step is available in this environment, so the
// single bidirectional method is wired directly against rawCodec
// rather than through protoc-gen-go stubs.
var sessionStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: "pulsar.streaming.v1.SessionStream",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       attachStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "lib/streaming/session_stream.proto",
}

func attachStreamHandler(srvIface any, stream grpc.ServerStream) error {
	s := srvIface.(*Service)
	return s.handleBidiStream(stream)
}

func (s *Service) handleBidiStream(stream grpc.ServerStream) error {
	var first []byte
	if err := stream.RecvMsg(&first); err != nil {
		return trace.Wrap(err)
	}
	var hello streamFrame
	if err := json.Unmarshal(first, &hello); err != nil {
		return trace.BadParameter("bidirectional stream: malformed opening frame: %v", err)
	}
	if hello.SessionID == "" {
		return trace.BadParameter("bidirectional stream: opening frame missing session_id")
	}
	clientID := hello.ClientID
	if clientID == "" {
		clientID = "grpc-" + uuid.NewString()
	}

	sessionID := srv.SessionID(hello.SessionID)
	sub, err := s.cfg.Backend.Attach(sessionID, srv.ClientID(clientID))
	if err != nil {
		return trace.Wrap(err)
	}
	defer s.cfg.Backend.Detach(sessionID, srv.ClientID(clientID))

	errCh := make(chan error, 2)
	go s.bidiPumpOutput(stream, sub, errCh)
	go s.bidiPumpInput(stream, sessionID, errCh)

	return <-errCh
}

func (s *Service) bidiPumpOutput(stream grpc.ServerStream, sub *srv.Subscription, errCh chan<- error) {
	for frame := range sub.Frames() {
		var out streamFrame
		if frame.EOF {
			out.Close = true
		} else {
			out.Data = base64.StdEncoding.EncodeToString(frame.Data)
		}
		payload, err := json.Marshal(out)
		if err != nil {
			errCh <- trace.Wrap(err)
			return
		}
		if err := stream.SendMsg(payload); err != nil {
			errCh <- trace.Wrap(err)
			return
		}
		if frame.EOF {
			errCh <- nil
			return
		}
	}
}

func (s *Service) bidiPumpInput(stream grpc.ServerStream, sessionID srv.SessionID, errCh chan<- error) {
	for {
		var raw []byte
		if err := stream.RecvMsg(&raw); err != nil {
			errCh <- nil
			return
		}
		var frame streamFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Close {
			errCh <- nil
			return
		}
		data, err := base64.StdEncoding.DecodeString(frame.Data)
		if err != nil {
			continue
		}
		if _, err := s.cfg.Backend.SendInput(sessionID, data); err != nil {
			errCh <- trace.Wrap(err)
			return
		}
	}
}
