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
	"bytes"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/midonet/agent/plugins/topology"
)

var (
	broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	allOnesIP    = net.IPv4(255, 255, 255, 255).To4()
)

// parsedFrame is the decoded view of one ingress Ethernet frame. Exactly one
// of arp and ip is set for frames the pipeline handles.
type parsedFrame struct {
	eth  *layers.Ethernet
	arp  *layers.ARP
	ip   *layers.IPv4
	icmp *layers.ICMPv4
	// icmpPayload is the ICMP message body when icmp is set.
	icmpPayload []byte
}

// parseFrame decodes an Ethernet frame down to the layers the router
// understands. Layers beyond IPv4/ARP/ICMPv4 are left as opaque payload.
func parseFrame(frame []byte) (*parsedFrame, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, errors.New("frame too short for an Ethernet header")
	}
	parsed := &parsedFrame{eth: ethLayer.(*layers.Ethernet)}
	if arpLayer := pkt.Layer(layers.LayerTypeARP); arpLayer != nil {
		parsed.arp = arpLayer.(*layers.ARP)
	}
	if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		parsed.ip = ipLayer.(*layers.IPv4)
	}
	if icmpLayer := pkt.Layer(layers.LayerTypeICMPv4); icmpLayer != nil {
		parsed.icmp = icmpLayer.(*layers.ICMPv4)
		parsed.icmpPayload = icmpLayer.(*layers.ICMPv4).LayerPayload()
	}
	return parsed, nil
}

func (f *parsedFrame) isEthernetBroadcast() bool {
	return bytes.Equal(f.eth.DstMAC, broadcastMAC)
}

func (f *parsedFrame) isEthernetMulticast() bool {
	return len(f.eth.DstMAC) == 6 && f.eth.DstMAC[0]&1 == 1
}

// isIcmpError tells whether the frame carries an ICMP error message, as
// opposed to an informational one.
func (f *parsedFrame) isIcmpError() bool {
	if f.icmp == nil {
		return false
	}
	switch f.icmp.TypeCode.Type() {
	case layers.ICMPv4TypeDestinationUnreachable,
		layers.ICMPv4TypeSourceQuench,
		layers.ICMPv4TypeRedirect,
		layers.ICMPv4TypeTimeExceeded,
		layers.ICMPv4TypeParameterProblem:
		return true
	}
	return false
}

func serializeFrame(layerList ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, layerList...); err != nil {
		return nil, errors.Wrap(err, "failed to serialize frame")
	}
	return buf.Bytes(), nil
}

// makeArpReply answers the given ARP request on behalf of the port.
func makeArpReply(port *topology.RouterPort, request *layers.ARP) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       port.MAC,
		DstMAC:       net.HardwareAddr(request.SourceHwAddress),
		EthernetType: layers.EthernetTypeARP,
	}
	reply := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   port.MAC,
		SourceProtAddress: port.IP.To4(),
		DstHwAddress:      request.SourceHwAddress,
		DstProtAddress:    request.SourceProtAddress,
	}
	return serializeFrame(eth, reply)
}

// makeEchoReply answers an ICMP echo request addressed to the port.
func makeEchoReply(port *topology.RouterPort, request *parsedFrame) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       port.MAC,
		DstMAC:       request.eth.SrcMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    request.ip.DstIP,
		DstIP:    request.ip.SrcIP,
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0),
		Id:       request.icmp.Id,
		Seq:      request.icmp.Seq,
	}
	return serializeFrame(eth, ip, icmp, gopacket.Payload(request.icmpPayload))
}

// makeIcmpError builds an ICMP error of the given type and code about the
// trigger packet, sourced from the port and addressed back to the trigger's
// sender. The body carries the trigger's IP header plus the first eight
// payload bytes, as RFC 792 requires.
func makeIcmpError(port *topology.RouterPort, icmpType, icmpCode uint8,
	trigger *parsedFrame) ([]byte, error) {

	body := trigger.ip.Contents
	payload := trigger.ip.LayerPayload()
	if len(payload) > 8 {
		payload = payload[:8]
	}
	body = append(append([]byte(nil), body...), payload...)

	eth := &layers.Ethernet{
		SrcMAC:       port.MAC,
		DstMAC:       trigger.eth.SrcMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    port.IP.To4(),
		DstIP:    trigger.ip.SrcIP,
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(icmpType, icmpCode),
	}
	return serializeFrame(eth, ip, icmp, gopacket.Payload(body))
}

// makeForwardedFrame rewrites the trigger frame for emission out of the
// egress port: new Ethernet addresses and a decremented TTL.
func makeForwardedFrame(srcMAC, dstMAC net.HardwareAddr, trigger *parsedFrame) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := *trigger.ip
	ip.TTL--
	return serializeFrame(eth, &ip, gopacket.Payload(trigger.ip.LayerPayload()))
}
