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

package arptable

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// makeArpRequest builds a broadcast ARP request frame asking who has
// targetIP, to be answered at srcMAC/srcIP.
func makeArpRequest(srcMAC net.HardwareAddr, srcIP, targetIP net.IP) ([]byte, error) {
	src4 := srcIP.To4()
	target4 := targetIP.To4()
	if src4 == nil || target4 == nil {
		return nil, errors.Errorf("cannot ARP for non-IPv4 address %s from %s",
			targetIP, srcIP)
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: src4,
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    target4,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		return nil, errors.Wrap(err, "failed to serialize ARP request")
	}
	return buf.Bytes(), nil
}
