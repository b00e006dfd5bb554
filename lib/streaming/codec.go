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

import "github.com/gravitational/trace"

// rawCodec lets the bidirectional-stream endpoint move pre-encoded
// bytes over gRPC's framing without protoc-generated message types:
// every SendMsg/RecvMsg call exchanges a raw []byte, which the handler
// itself encodes/decodes as JSON. gRPC is used here purely as the
// transport (HTTP/2 multiplexed streams, flow control) named in
// spec.md's "bidirectional stream endpoint", not as a protobuf RPC
// framework.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, trace.BadParameter("rawCodec: expected []byte, got %T", v)
	}
	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return trace.BadParameter("rawCodec: expected *[]byte, got %T", v)
	}
	*b = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "pulsar-raw" }
