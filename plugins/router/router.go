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
	"context"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/ligato/cn-infra/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/midonet/agent/plugins/arptable"
	"github.com/midonet/agent/plugins/topology"
)

var (
	packetsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "midonet",
		Subsystem: "router",
		Name:      "packets_processed_total",
		Help:      "Number of packets that entered the pipeline, by outcome.",
	}, []string{"outcome"})
	icmpErrorsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "midonet",
		Subsystem: "router",
		Name:      "icmp_errors_sent_total",
		Help:      "Number of ICMP error messages generated by the pipeline.",
	})
)

func init() {
	prometheus.MustRegister(packetsProcessed, icmpErrorsSent)
}

// Router simulates the packet-processing pipeline of a single virtual L3
// router. One instance per router, owning its ArpTable.
type Router struct {
	log logging.Logger
	id  topology.RouterID

	ports   topology.PortResolver
	routes  *RoutingTable
	arp     arptable.API
	emitter topology.FrameEmitter
}

// New creates a router over the given routing table and ARP resolver.
func New(log logging.Logger, id topology.RouterID, ports topology.PortResolver,
	routes *RoutingTable, arp arptable.API, emitter topology.FrameEmitter) *Router {

	return &Router{
		log:     log,
		id:      id,
		ports:   ports,
		routes:  routes,
		arp:     arp,
		emitter: emitter,
	}
}

// RoutingTable returns the router's routing table.
func (r *Router) RoutingTable() *RoutingTable {
	return r.routes
}

// Process runs one ingress frame through the pipeline and returns the
// routing decision. The context bounds every suspension point (port lookup,
// ARP resolution).
func (r *Router) Process(ctx context.Context, ingressPortID topology.PortID,
	frame []byte) Action {

	action := r.process(ctx, ingressPortID, frame)
	outcome := "drop"
	switch action.(type) {
	case *ToPortAction:
		outcome = "to-port"
	case *ConsumedAction:
		outcome = "consumed"
	case *NotIPv4Action:
		outcome = "not-ipv4"
	}
	packetsProcessed.WithLabelValues(outcome).Inc()
	return action
}

func (r *Router) process(ctx context.Context, ingressPortID topology.PortID,
	frame []byte) Action {

	pkt, err := parseFrame(frame)
	if err != nil {
		r.log.Debugf("Dropping unparseable frame on port %s: %v", ingressPortID, err)
		return &DropAction{Reason: "unparseable frame"}
	}
	switch pkt.eth.EthernetType {
	case layers.EthernetTypeIPv4, layers.EthernetTypeARP:
	default:
		return &NotIPv4Action{}
	}

	ingressPort, err := r.ports.GetRouterPort(ctx, ingressPortID)
	if err != nil {
		r.log.Warnf("Unknown ingress port %s: %v", ingressPortID, err)
		return &DropAction{Reason: "unknown ingress port"}
	}

	if action := r.preRouting(ctx, ingressPort, pkt); action != nil {
		return action
	}
	return r.route(ctx, ingressPort, pkt)
}

// preRouting validates the frame against the ingress port and handles the
// traffic addressed to the router itself. A nil return means the packet
// proceeds to routing.
func (r *Router) preRouting(ctx context.Context, ingressPort *topology.RouterPort,
	pkt *parsedFrame) Action {

	if pkt.isEthernetBroadcast() {
		if pkt.arp != nil && pkt.arp.Operation == layers.ARPRequest {
			r.handleArpRequest(ingressPort, pkt.arp)
			return &ConsumedAction{}
		}
		return &DropAction{Reason: "broadcast"}
	}
	if !bytes.Equal(pkt.eth.DstMAC, ingressPort.MAC) {
		r.log.Warnf("Frame for %s arrived on port %s owning %s",
			pkt.eth.DstMAC, ingressPort.ID, ingressPort.MAC)
		return &DropAction{Reason: "not addressed to the ingress port"}
	}
	if pkt.arp != nil {
		if pkt.arp.Operation == layers.ARPReply {
			r.handleArpReply(ingressPort, pkt.arp)
			return &ConsumedAction{}
		}
		return &DropAction{Reason: "unhandled ARP opcode"}
	}
	if pkt.ip == nil {
		return &DropAction{Reason: "no IPv4 payload"}
	}
	if pkt.ip.DstIP.Equal(ingressPort.IP) {
		return r.handleLocalDelivery(ingressPort, pkt)
	}
	if pkt.ip.TTL <= 1 {
		r.sendIcmpError(ingressPort, nil, layers.ICMPv4TypeTimeExceeded,
			icmpCodeTTLExceeded, pkt)
		return &DropAction{Reason: "TTL expired"}
	}
	return nil
}

// route looks up the routing table and hands the packet to post-routing.
func (r *Router) route(ctx context.Context, ingressPort *topology.RouterPort,
	pkt *parsedFrame) Action {

	route := r.routes.Lookup(pkt.ip.SrcIP, pkt.ip.DstIP)
	if route == nil {
		r.sendIcmpError(ingressPort, nil, layers.ICMPv4TypeDestinationUnreachable,
			icmpCodeNetUnreachable, pkt)
		return &DropAction{Reason: "no route"}
	}
	switch route.NextHop {
	case NextHopBlackhole:
		return &DropAction{Reason: "blackhole route"}
	case NextHopReject:
		r.sendIcmpError(ingressPort, nil, layers.ICMPv4TypeDestinationUnreachable,
			icmpCodeAdminProhibited, pkt)
		return &DropAction{Reason: "reject route"}
	case NextHopLocal:
		return r.handleLocalDelivery(ingressPort, pkt)
	}
	if route.NextHopPortID == "" {
		return &DropAction{Reason: "route without a next-hop port"}
	}

	egressPort, err := r.ports.GetRouterPort(ctx, route.NextHopPortID)
	if err != nil {
		r.log.Warnf("Unknown egress port %s: %v", route.NextHopPortID, err)
		return &DropAction{Reason: "unknown egress port"}
	}
	return r.postRouting(ctx, ingressPort, egressPort, route, pkt)
}

// postRouting resolves the next-hop MAC and rewrites the frame for egress.
func (r *Router) postRouting(ctx context.Context, ingressPort,
	egressPort *topology.RouterPort, route *Route, pkt *parsedFrame) Action {

	if pkt.ip.DstIP.Equal(egressPort.IP) {
		return r.handleLocalDelivery(ingressPort, pkt)
	}

	dstMAC, err := r.nextHopMAC(ctx, egressPort, route, pkt.ip.DstIP)
	if err != nil {
		r.log.Debugf("Next-hop MAC resolution via %s failed: %v", egressPort.ID, err)
		return &DropAction{Reason: "next-hop resolution failed"}
	}
	if dstMAC == nil {
		code := icmpCodeNetUnreachable
		if isDirectGateway(route.NextHopGateway) {
			code = icmpCodeHostUnreachable
		}
		r.sendIcmpError(ingressPort, egressPort,
			layers.ICMPv4TypeDestinationUnreachable, code, pkt)
		return &DropAction{Reason: "next hop unreachable"}
	}

	forwarded, err := makeForwardedFrame(egressPort.MAC, dstMAC, pkt)
	if err != nil {
		r.log.Errorf("Failed to rewrite frame for port %s: %v", egressPort.ID, err)
		return &DropAction{Reason: "frame rewrite failed"}
	}
	return &ToPortAction{PortID: egressPort.ID, Frame: forwarded}
}

// nextHopMAC finds the destination MAC for the rewritten frame. Interior
// ports short-circuit to the peer port's MAC; exterior ports resolve the
// gateway (or the destination itself when directly attached) through ARP.
func (r *Router) nextHopMAC(ctx context.Context, egressPort *topology.RouterPort,
	route *Route, dstIP net.IP) (net.HardwareAddr, error) {

	if egressPort.IsInterior() {
		peer, err := r.ports.GetRouterPort(ctx, egressPort.PeerPortID)
		if err != nil {
			return nil, err
		}
		return peer.MAC, nil
	}
	nextHopIP := route.NextHopGateway
	if isDirectGateway(nextHopIP) {
		nextHopIP = dstIP
	}
	return r.arp.Get(ctx, nextHopIP, egressPort)
}

// isDirectGateway recognizes the gateway values meaning "the destination is
// on-link": unset, 0.0.0.0 and 255.255.255.255.
func isDirectGateway(gw net.IP) bool {
	return gw == nil || gw.IsUnspecified() || gw.To4().Equal(allOnesIP)
}

// handleLocalDelivery deals with IP packets addressed to one of the
// router's own addresses: echo requests get a reply, everything else drops.
func (r *Router) handleLocalDelivery(ingressPort *topology.RouterPort,
	pkt *parsedFrame) Action {

	if pkt.icmp == nil ||
		pkt.icmp.TypeCode.Type() != layers.ICMPv4TypeEchoRequest {
		return &DropAction{Reason: "not for the router"}
	}
	reply, err := makeEchoReply(ingressPort, pkt)
	if err != nil {
		r.log.Errorf("Failed to build echo reply on port %s: %v", ingressPort.ID, err)
		return &DropAction{Reason: "echo reply failed"}
	}
	r.emitter.Emit(ingressPort.ID, reply)
	return &ConsumedAction{}
}

// handleArpRequest answers requests for the port's own address, silently
// ignoring everything else.
func (r *Router) handleArpRequest(port *topology.RouterPort, request *layers.ARP) {
	if !net.IP(request.DstProtAddress).Equal(port.IP.To4()) {
		return
	}
	reply, err := makeArpReply(port, request)
	if err != nil {
		r.log.Errorf("Failed to build ARP reply on port %s: %v", port.ID, err)
		return
	}
	r.emitter.Emit(port.ID, reply)
}

// handleArpReply validates a unicast ARP reply against the ingress port and
// feeds the learned binding into the ARP table.
func (r *Router) handleArpReply(port *topology.RouterPort, reply *layers.ARP) {
	if reply.AddrType != layers.LinkTypeEthernet ||
		reply.Protocol != layers.EthernetTypeIPv4 {
		return
	}
	if !net.IP(reply.DstProtAddress).Equal(port.IP.To4()) {
		return
	}
	if !bytes.Equal(reply.DstHwAddress, port.MAC) {
		return
	}
	spa := net.IP(append([]byte(nil), reply.SourceProtAddress...))
	sha := net.HardwareAddr(append([]byte(nil), reply.SourceHwAddress...))
	r.arp.Set(spa, sha)
}

// sendIcmpError emits an ICMP error about the trigger packet on its ingress
// port, unless the suppression rules forbid it.
func (r *Router) sendIcmpError(ingressPort, egressPort *topology.RouterPort,
	icmpType, icmpCode uint8, trigger *parsedFrame) {

	if !canSendIcmpError(trigger, egressPort) {
		return
	}
	frame, err := makeIcmpError(ingressPort, icmpType, icmpCode, trigger)
	if err != nil {
		r.log.Errorf("Failed to build ICMP error on port %s: %v", ingressPort.ID, err)
		return
	}
	r.emitter.Emit(ingressPort.ID, frame)
	icmpErrorsSent.Inc()
}

// SendIPPacket routes a locally generated IP packet like a forwarded one,
// skipping ingress validation and pre-routing. The next-hop MAC resolves
// asynchronously; the frame is emitted once the MAC is known and dropped
// silently on any failure.
func (r *Router) SendIPPacket(ctx context.Context, ip *layers.IPv4, payload []byte) {
	route := r.routes.Lookup(ip.SrcIP, ip.DstIP)
	if route == nil || route.NextHop != NextHopPort || route.NextHopPortID == "" {
		r.log.Debugf("No forwarding route for locally generated packet to %s", ip.DstIP)
		return
	}
	egressPort, err := r.ports.GetRouterPort(ctx, route.NextHopPortID)
	if err != nil {
		r.log.Debugf("Unknown egress port %s for locally generated packet: %v",
			route.NextHopPortID, err)
		return
	}
	if ip.DstIP.Equal(egressPort.IP) {
		return
	}

	go func() {
		dstMAC, err := r.nextHopMAC(ctx, egressPort, route, ip.DstIP)
		if err != nil || dstMAC == nil {
			r.log.Debugf("Dropping locally generated packet to %s: no next-hop MAC",
				ip.DstIP)
			return
		}
		eth := &layers.Ethernet{
			SrcMAC:       egressPort.MAC,
			DstMAC:       dstMAC,
			EthernetType: layers.EthernetTypeIPv4,
		}
		frame, err := serializeFrame(eth, ip, gopacket.Payload(payload))
		if err != nil {
			r.log.Errorf("Failed to serialize locally generated packet: %v", err)
			return
		}
		r.emitter.Emit(egressPort.ID, frame)
	}()
}
