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

package topology

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by resolvers when the requested entity does not
// exist in the topology.
var ErrNotFound = errors.New("entity not found in the virtual topology")

// CancelFunc cancels a watch registration. Safe to call more than once.
type CancelFunc func()

// PortResolver reads router ports from the virtual-topology cache.
// The cache holds routers by ID and never keeps back-references into the
// packet pipeline, so the pipeline depends on this interface only.
type PortResolver interface {
	// GetRouterPort returns the port with the given ID, bounded by the
	// context deadline. Returns ErrNotFound if the port does not exist.
	GetRouterPort(ctx context.Context, id PortID) (*RouterPort, error)
}

// BridgeResolver reads bridges and their VxLAN port bindings.
type BridgeResolver interface {
	// GetBridge returns the bridge with the given ID.
	// Returns ErrNotFound if the bridge does not exist.
	GetBridge(ctx context.Context, id BridgeID) (*Bridge, error)

	// GetVxLanPort returns the VxLAN port with the given ID.
	// Returns ErrNotFound if the port does not exist.
	GetVxLanPort(ctx context.Context, id PortID) (*VxLanPort, error)

	// WatchBridge registers a callback invoked on every update of the given
	// bridge. Deletion of the bridge is delivered as a nil update.
	// The callback runs on the topology notification goroutine and must only
	// enqueue work.
	WatchBridge(id BridgeID, callback func(*Bridge)) (CancelFunc, error)
}

// TunnelEndpointResolver maps an exterior port to the VxLAN tunnel endpoint
// of the host where the port is currently bound.
type TunnelEndpointResolver interface {
	// TunnelEndpointOf returns the tunnel IP of the host owning the port,
	// or nil when the port is not bound anywhere.
	TunnelEndpointOf(id PortID) net.IP
}

// FrameEmitter pushes a fully built Ethernet frame out of the given port.
// Emission is fire-and-forget: the datapath owns delivery.
type FrameEmitter interface {
	Emit(portID PortID, frame []byte)
}
