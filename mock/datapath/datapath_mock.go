// Copyright (c) 2016 Midokura SARL
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package datapath provides a recording FrameEmitter for unit tests.
package datapath

import (
	"sync"

	"github.com/midonet/agent/plugins/topology"
)

// EmittedFrame is one frame handed to the emitter, with the port it
// was emitted on.
type EmittedFrame struct {
	PortID topology.PortID
	Frame  []byte
}

// MockEmitter records every emitted frame instead of handing it to a
// datapath.
type MockEmitter struct {
	mu     sync.Mutex
	frames []EmittedFrame
}

// NewMockEmitter creates an empty recording emitter.
func NewMockEmitter() *MockEmitter {
	return &MockEmitter{}
}

// Emit implements topology.FrameEmitter.
func (e *MockEmitter) Emit(portID topology.PortID, frame []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := make([]byte, len(frame))
	copy(copied, frame)
	e.frames = append(e.frames, EmittedFrame{PortID: portID, Frame: copied})
}

// Frames returns a snapshot of everything emitted so far.
func (e *MockEmitter) Frames() []EmittedFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := make([]EmittedFrame, len(e.frames))
	copy(snapshot, e.frames)
	return snapshot
}

// Clear drops all recorded frames.
func (e *MockEmitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = nil
}
