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

// Package ipc implements the local control-plane protocol: a unix
// stream socket (or, on Windows, a named pipe) carrying u32_le
// length-prefixed JSON request/response envelopes, one request at a
// time per connection with pipelined responses tagged by request id.
package ipc

import (
	"encoding/json"

	"github.com/gravitational/trace"
)

// Stable, on-wire error codes (spec'd, never renumbered).
const (
	CodeInvalidRequest      = -32600
	CodeMethodNotFound      = -32601
	CodeInvalidParams       = -32602
	CodeInternal            = -32603
	CodeSessionNotFound     = 1001
	CodeSessionAlreadyExists = 1002
)

// Request is one client-to-server envelope.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCError is the {code, message} shape carried in a failed Response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is one server-to-client envelope. Result and Error are
// mutually exclusive.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// VersionEnvelope wraps the protocol version into any payload crossing
// the wire during negotiation. Peers are compatible iff Major is equal;
// a client with a higher Minor than the server degrades to the
// server's feature set.
type VersionEnvelope struct {
	Version string          `json:"version"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// errToRPCError is the single translation point from internal,
// trace-wrapped errors to the stable wire codes above.
func errToRPCError(err error) *RPCError {
	switch {
	case trace.IsNotFound(err):
		return &RPCError{Code: CodeSessionNotFound, Message: err.Error()}
	case trace.IsAlreadyExists(err):
		return &RPCError{Code: CodeSessionAlreadyExists, Message: err.Error()}
	case trace.IsBadParameter(err):
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: CodeInternal, Message: err.Error()}
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
