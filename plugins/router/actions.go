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

package router

import (
	"fmt"

	"github.com/midonet/agent/plugins/topology"
)

// Action is the routing decision handed back to the datapath.
type Action interface {
	actionString() string
}

// DropAction discards the packet.
type DropAction struct {
	Reason string
}

func (a *DropAction) actionString() string { return fmt.Sprintf("drop (%s)", a.Reason) }

// String returns a human-readable action representation.
func (a *DropAction) String() string { return a.actionString() }

// ConsumedAction marks the packet as fully handled by the router itself,
// typically by an emitted reply.
type ConsumedAction struct{}

func (a *ConsumedAction) actionString() string { return "consumed" }

// String returns a human-readable action representation.
func (a *ConsumedAction) String() string { return a.actionString() }

// NotIPv4Action rejects a packet whose Ethertype the router does not speak.
type NotIPv4Action struct{}

func (a *NotIPv4Action) actionString() string { return "not IPv4" }

// String returns a human-readable action representation.
func (a *NotIPv4Action) String() string { return a.actionString() }

// ToPortAction forwards the rewritten frame out of the given port.
type ToPortAction struct {
	PortID topology.PortID
	Frame  []byte
}

func (a *ToPortAction) actionString() string { return fmt.Sprintf("to port %s", a.PortID) }

// String returns a human-readable action representation.
func (a *ToPortAction) String() string { return a.actionString() }
