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

// Package vtep provides a recording VTEP pool and peer for unit tests.
package vtep

import (
	"fmt"
	"net"
	"sync"

	"github.com/midonet/agent/plugins/topology"
	"github.com/midonet/agent/plugins/vxgw"
)

// MockVtepPeer records every gateway interaction instead of talking OVSDB.
type MockVtepPeer struct {
	mu        sync.Mutex
	joined    []string
	abandoned []string
	snapshots map[string][]vxgw.MacLocation
	received  []vxgw.MacLocation
	cancel    topology.CancelFunc

	// JoinErr, when set, is returned by the next Join call.
	JoinErr error
}

// Join implements vxgw.VtepPeer: it records the snapshot and subscribes to
// the gateway bus.
func (p *MockVtepPeer) Join(gateway *vxgw.VxGateway, snapshot []vxgw.MacLocation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.JoinErr != nil {
		err := p.JoinErr
		p.JoinErr = nil
		return err
	}
	p.joined = append(p.joined, gateway.Name)
	if p.snapshots == nil {
		p.snapshots = make(map[string][]vxgw.MacLocation)
	}
	p.snapshots[gateway.Name] = snapshot
	p.cancel = gateway.Subscribe(func(ml vxgw.MacLocation) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.received = append(p.received, ml)
	})
	return nil
}

// Abandon implements vxgw.VtepPeer.
func (p *MockVtepPeer) Abandon(gateway *vxgw.VxGateway) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abandoned = append(p.abandoned, gateway.Name)
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

// Joined returns the names of the gateways joined so far.
func (p *MockVtepPeer) Joined() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.joined...)
}

// Abandoned returns the names of the gateways abandoned so far.
func (p *MockVtepPeer) Abandoned() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.abandoned...)
}

// Snapshot returns the snapshot received when joining the named gateway.
func (p *MockVtepPeer) Snapshot(gateway string) []vxgw.MacLocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]vxgw.MacLocation(nil), p.snapshots[gateway]...)
}

// Clear drops every MacLocation recorded so far.
func (p *MockVtepPeer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = nil
}

// Received returns every MacLocation seen on the bus since joining.
func (p *MockVtepPeer) Received() []vxgw.MacLocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]vxgw.MacLocation(nil), p.received...)
}

// MockVtepPool hands out one MockVtepPeer per management endpoint.
type MockVtepPool struct {
	mu    sync.Mutex
	peers map[string]*MockVtepPeer

	// PeerErr, when set, is returned by every Peer call.
	PeerErr error
}

// NewMockVtepPool creates an empty pool.
func NewMockVtepPool() *MockVtepPool {
	return &MockVtepPool{peers: make(map[string]*MockVtepPeer)}
}

// Peer implements vxgw.VtepPool.
func (p *MockVtepPool) Peer(mgmtIP net.IP, mgmtPort int) (vxgw.VtepPeer, error) {
	if p.PeerErr != nil {
		return nil, p.PeerErr
	}
	key := fmt.Sprintf("%s:%d", mgmtIP, mgmtPort)
	p.mu.Lock()
	defer p.mu.Unlock()
	peer, found := p.peers[key]
	if !found {
		peer = &MockVtepPeer{}
		p.peers[key] = peer
	}
	return peer, nil
}

// PeerFor returns the recorded peer for the endpoint, nil if never fetched.
func (p *MockVtepPool) PeerFor(mgmtIP net.IP, mgmtPort int) *MockVtepPeer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peers[fmt.Sprintf("%s:%d", mgmtIP, mgmtPort)]
}
