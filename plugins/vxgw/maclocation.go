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

import (
	"fmt"
	"net"
)

// MacLocation advertises where a MAC is reachable on a logical switch:
// "MAC (optionally with IP) lives behind VxlanTunnelIP". A nil tunnel IP
// withdraws the advertisement; a nil IP advertises the MAC without an ARP
// suppression entry.
type MacLocation struct {
	MAC           net.HardwareAddr
	IP            net.IP
	LogicalSwitch string
	VxlanTunnelIP net.IP
}

// IsWithdrawal tells whether the location removes the MAC instead of
// advertising it.
func (m *MacLocation) IsWithdrawal() bool {
	return m.VxlanTunnelIP == nil
}

// String returns a human-readable location representation.
func (m *MacLocation) String() string {
	tunnel := "withdrawn"
	if m.VxlanTunnelIP != nil {
		tunnel = m.VxlanTunnelIP.String()
	}
	return fmt.Sprintf("<mac %s, ip %s, ls %s, tunnel %s>",
		m.MAC, m.IP, m.LogicalSwitch, tunnel)
}
