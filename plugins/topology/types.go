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
	"fmt"
	"net"
)

// PortID uniquely identifies a virtual port.
type PortID string

// RouterID uniquely identifies a virtual router.
type RouterID string

// BridgeID uniquely identifies a virtual bridge.
type BridgeID string

// RouterPort is a single L3 port of a virtual router. A port with a non-empty
// PeerPortID is an interior port linked to another virtual device; otherwise
// it is an exterior port bound to the datapath.
type RouterPort struct {
	ID       PortID
	RouterID RouterID

	// MAC is the hardware address frames sourced from this port carry.
	MAC net.HardwareAddr
	// IP is the port's own address.
	IP net.IP
	// Subnet is the network attached to the port (nwAddr/nwLength).
	Subnet *net.IPNet

	// PeerPortID is the linked port for interior ports, empty for exterior.
	PeerPortID PortID
}

// IsInterior tells whether the port is linked to another virtual device.
func (p *RouterPort) IsInterior() bool {
	return p.PeerPortID != ""
}

// IsExterior tells whether the port is bound to the datapath.
func (p *RouterPort) IsExterior() bool {
	return !p.IsInterior()
}

// HasIPOnSubnet checks whether the given address lies within the port's
// attached network. A zero prefix length matches every address.
func (p *RouterPort) HasIPOnSubnet(ip net.IP) bool {
	if p.Subnet == nil {
		return false
	}
	if ones, _ := p.Subnet.Mask.Size(); ones == 0 {
		return true
	}
	return p.Subnet.Contains(ip)
}

// String returns a human-readable port representation.
func (p *RouterPort) String() string {
	if p == nil {
		return "<nil>"
	}
	kind := "exterior"
	if p.IsInterior() {
		kind = fmt.Sprintf("interior, peer %s", p.PeerPortID)
	}
	return fmt.Sprintf("<port %s (%s), mac %s, ip %s>", p.ID, kind, p.MAC, p.IP)
}

// VxLanPort is a bridge port representing the binding of the bridge
// to a hardware VTEP.
type VxLanPort struct {
	ID       PortID
	MgmtIP   net.IP
	MgmtPort int
	VNI      uint32
	TunnelIP net.IP
}

// String returns a human-readable port representation.
func (p *VxLanPort) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("<vxlan port %s, vtep %s:%d, vni %d, tunnel %s>",
		p.ID, p.MgmtIP, p.MgmtPort, p.VNI, p.TunnelIP)
}

// Bridge is the subset of the virtual-bridge state relevant to the VxLAN
// gateway: its identity and the ordered list of VxLAN port bindings.
type Bridge struct {
	ID           BridgeID
	VxLanPortIDs []PortID
}

// HasVxLanPort checks whether the given port is currently bound to the bridge.
func (b *Bridge) HasVxLanPort(id PortID) bool {
	for _, pid := range b.VxLanPortIDs {
		if pid == id {
			return true
		}
	}
	return false
}
