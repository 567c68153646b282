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

// Package topology provides static implementations of the virtual-topology
// resolver interfaces for unit tests.
package topology

import (
	"context"
	"net"
	"sync"

	"github.com/midonet/agent/plugins/topology"
)

// MockTopology is an in-memory virtual topology serving ports, bridges and
// tunnel endpoints from static maps. Safe for concurrent use.
type MockTopology struct {
	mu          sync.Mutex
	routerPorts map[topology.PortID]*topology.RouterPort
	vxlanPorts  map[topology.PortID]*topology.VxLanPort
	bridges     map[topology.BridgeID]*topology.Bridge
	endpoints   map[topology.PortID]net.IP

	bridgeWatchers map[topology.BridgeID][]func(*topology.Bridge)
}

// NewMockTopology creates an empty mock topology.
func NewMockTopology() *MockTopology {
	return &MockTopology{
		routerPorts:    make(map[topology.PortID]*topology.RouterPort),
		vxlanPorts:     make(map[topology.PortID]*topology.VxLanPort),
		bridges:        make(map[topology.BridgeID]*topology.Bridge),
		endpoints:      make(map[topology.PortID]net.IP),
		bridgeWatchers: make(map[topology.BridgeID][]func(*topology.Bridge)),
	}
}

// AddRouterPort registers a router port.
func (t *MockTopology) AddRouterPort(port *topology.RouterPort) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routerPorts[port.ID] = port
}

// AddVxLanPort registers a VxLAN port.
func (t *MockTopology) AddVxLanPort(port *topology.VxLanPort) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vxlanPorts[port.ID] = port
}

// SetBridge registers or replaces a bridge and notifies its watchers.
func (t *MockTopology) SetBridge(bridge *topology.Bridge) {
	t.mu.Lock()
	t.bridges[bridge.ID] = bridge
	watchers := append(([]func(*topology.Bridge))(nil), t.bridgeWatchers[bridge.ID]...)
	t.mu.Unlock()
	for _, w := range watchers {
		w(bridge)
	}
}

// DeleteBridge removes a bridge and delivers a nil update to its watchers.
func (t *MockTopology) DeleteBridge(id topology.BridgeID) {
	t.mu.Lock()
	delete(t.bridges, id)
	watchers := append(([]func(*topology.Bridge))(nil), t.bridgeWatchers[id]...)
	t.mu.Unlock()
	for _, w := range watchers {
		w(nil)
	}
}

// SetTunnelEndpoint binds a port to a host tunnel IP.
func (t *MockTopology) SetTunnelEndpoint(id topology.PortID, ip net.IP) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoints[id] = ip
}

// GetRouterPort implements topology.PortResolver.
func (t *MockTopology) GetRouterPort(_ context.Context, id topology.PortID) (
	*topology.RouterPort, error) {

	t.mu.Lock()
	defer t.mu.Unlock()
	port, found := t.routerPorts[id]
	if !found {
		return nil, topology.ErrNotFound
	}
	return port, nil
}

// GetBridge implements topology.BridgeResolver.
func (t *MockTopology) GetBridge(_ context.Context, id topology.BridgeID) (
	*topology.Bridge, error) {

	t.mu.Lock()
	defer t.mu.Unlock()
	bridge, found := t.bridges[id]
	if !found {
		return nil, topology.ErrNotFound
	}
	return bridge, nil
}

// GetVxLanPort implements topology.BridgeResolver.
func (t *MockTopology) GetVxLanPort(_ context.Context, id topology.PortID) (
	*topology.VxLanPort, error) {

	t.mu.Lock()
	defer t.mu.Unlock()
	port, found := t.vxlanPorts[id]
	if !found {
		return nil, topology.ErrNotFound
	}
	return port, nil
}

// WatchBridge implements topology.BridgeResolver.
func (t *MockTopology) WatchBridge(id topology.BridgeID,
	callback func(*topology.Bridge)) (topology.CancelFunc, error) {

	t.mu.Lock()
	defer t.mu.Unlock()
	t.bridgeWatchers[id] = append(t.bridgeWatchers[id], callback)
	return func() {}, nil
}

// TunnelEndpointOf implements topology.TunnelEndpointResolver.
func (t *MockTopology) TunnelEndpointOf(id topology.PortID) net.IP {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoints[id]
}
