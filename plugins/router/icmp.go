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
	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/google/gopacket/layers"

	"github.com/midonet/agent/plugins/topology"
)

// ICMP error codes the pipeline emits.
const (
	icmpCodeNetUnreachable  = uint8(layers.ICMPv4CodeNet)
	icmpCodeHostUnreachable = uint8(layers.ICMPv4CodeHost)
	icmpCodeAdminProhibited = uint8(layers.ICMPv4CodeCommAdminProhibited)
	icmpCodeTTLExceeded     = uint8(layers.ICMPv4CodeTTLExceeded)
)

// canSendIcmpError applies the RFC 1812 section 4.3.2.7 suppression rules:
// never generate an ICMP error about an ICMP error, about broadcast or
// multicast traffic on either layer, about all-ones addresses, or about a
// non-first fragment. The subnet broadcast is computed against the egress
// port's network when the port is known.
func canSendIcmpError(trigger *parsedFrame, egressPort *topology.RouterPort) bool {
	if trigger.ip == nil {
		return false
	}
	if trigger.isIcmpError() {
		return false
	}
	dst := trigger.ip.DstIP.To4()
	src := trigger.ip.SrcIP.To4()
	if dst == nil || src == nil {
		return false
	}
	if dst.IsMulticast() {
		return false
	}
	if dst.Equal(allOnesIP) || src.Equal(allOnesIP) {
		return false
	}
	if egressPort != nil && egressPort.Subnet != nil {
		if _, last := cidr.AddressRange(egressPort.Subnet); dst.Equal(last) {
			return false
		}
	}
	if trigger.isEthernetBroadcast() || trigger.isEthernetMulticast() {
		return false
	}
	if trigger.ip.FragOffset != 0 {
		return false
	}
	return true
}
