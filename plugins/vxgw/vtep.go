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

package vxgw

import "net"

// VtepPeer is one hardware VTEP attached to a gateway. The peer subscribes
// to the gateway bus on Join and pushes its own updates back through the
// shared MAC-port map.
type VtepPeer interface {
	// Join attaches the peer to the gateway, replaying the snapshot of
	// current MacLocations before live updates start flowing.
	Join(gateway *VxGateway, snapshot []MacLocation) error

	// Abandon detaches the peer from the gateway.
	Abandon(gateway *VxGateway) error
}

// VtepPool hands out VTEP peers by management endpoint. Implementations own
// the OVSDB sessions; the pool deduplicates peers across gateways.
type VtepPool interface {
	// Peer returns the peer for the VTEP at the given management endpoint.
	Peer(mgmtIP net.IP, mgmtPort int) (VtepPeer, error)
}
