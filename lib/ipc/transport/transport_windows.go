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

//go:build windows

package transport

import "github.com/gravitational/trace"

// Listen is the Windows named-pipe counterpart of the unix listener.
// It is not implemented in this build: wiring a named-pipe transport
// with an owner-restricted security descriptor belongs to a dedicated
// dependency (e.g. Microsoft/go-winio) that this module does not
// import. The seam exists so that dependency can be added without
// touching any caller of transport.Listen.
func Listen(path string) (Listener, error) {
	return nil, trace.NotImplemented("named pipe transport is not implemented on windows")
}
