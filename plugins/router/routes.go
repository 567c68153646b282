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
	"fmt"
	"net"
	"sync"

	"github.com/midonet/agent/plugins/topology"
)

// NextHop selects what the router does with a packet matching a route.
type NextHop int

const (
	// NextHopPort forwards the packet out of NextHopPortID.
	NextHopPort NextHop = iota
	// NextHopBlackhole drops the packet silently.
	NextHopBlackhole
	// NextHopReject drops the packet and notifies the sender.
	NextHopReject
	// NextHopLocal delivers the packet to the router itself.
	NextHopLocal
)

// String returns the canonical next-hop name.
func (n NextHop) String() string {
	switch n {
	case NextHopPort:
		return "PORT"
	case NextHopBlackhole:
		return "BLACKHOLE"
	case NextHopReject:
		return "REJECT"
	case NextHopLocal:
		return "LOCAL"
	}
	return fmt.Sprintf("NextHop(%d)", int(n))
}

// Route is one entry of a router's routing table.
type Route struct {
	// DstSubnet and SrcSubnet select the traffic the route applies to.
	// A nil subnet matches everything.
	DstSubnet *net.IPNet
	SrcSubnet *net.IPNet

	NextHop       NextHop
	NextHopPortID topology.PortID
	// NextHopGateway is the gateway address, or nil/unspecified when the
	// destination is directly attached.
	NextHopGateway net.IP

	// Weight breaks ties between routes of equal prefix length, lower wins.
	Weight int
}

// String returns a human-readable route representation.
func (r *Route) String() string {
	return fmt.Sprintf("<route dst %s, src %s, %s via port %s gw %s, weight %d>",
		subnetString(r.DstSubnet), subnetString(r.SrcSubnet),
		r.NextHop, r.NextHopPortID, r.NextHopGateway, r.Weight)
}

func subnetString(subnet *net.IPNet) string {
	if subnet == nil {
		return "0.0.0.0/0"
	}
	return subnet.String()
}

func prefixLen(subnet *net.IPNet) int {
	if subnet == nil {
		return 0
	}
	ones, _ := subnet.Mask.Size()
	return ones
}

func subnetMatches(subnet *net.IPNet, ip net.IP) bool {
	if subnet == nil {
		return true
	}
	if ones, _ := subnet.Mask.Size(); ones == 0 {
		return true
	}
	return subnet.Contains(ip)
}

// RoutingTable holds a router's routes and answers longest-prefix-match
// lookups on the destination address. Safe for concurrent use.
type RoutingTable struct {
	mu     sync.RWMutex
	routes []*Route
}

// NewRoutingTable creates an empty routing table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{}
}

// AddRoute inserts a route into the table.
func (t *RoutingTable) AddRoute(route *Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, route)
}

// RemoveRoute deletes the first route equal to the given one, if any.
func (t *RoutingTable) RemoveRoute(route *Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.routes {
		if routesEqual(r, route) {
			t.routes = append(t.routes[:i], t.routes[i+1:]...)
			return
		}
	}
}

func routesEqual(a, b *Route) bool {
	return subnetString(a.DstSubnet) == subnetString(b.DstSubnet) &&
		subnetString(a.SrcSubnet) == subnetString(b.SrcSubnet) &&
		a.NextHop == b.NextHop &&
		a.NextHopPortID == b.NextHopPortID &&
		a.NextHopGateway.Equal(b.NextHopGateway) &&
		a.Weight == b.Weight
}

// Lookup returns the route for the given source and destination, choosing
// the longest destination prefix and breaking ties by the lowest weight.
// Returns nil when no route matches.
func (t *RoutingTable) Lookup(src, dst net.IP) *Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *Route
	bestLen := -1
	for _, route := range t.routes {
		if !subnetMatches(route.DstSubnet, dst) || !subnetMatches(route.SrcSubnet, src) {
			continue
		}
		length := prefixLen(route.DstSubnet)
		if length > bestLen || (length == bestLen && route.Weight < best.Weight) {
			best = route
			bestLen = length
		}
	}
	return best
}
