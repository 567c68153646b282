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
	"net"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/midonet/agent/plugins/topology"
)

func mustCIDR(s string) *net.IPNet {
	_, subnet, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return subnet
}

func TestLookupLongestPrefixWins(t *testing.T) {
	RegisterTestingT(t)

	table := NewRoutingTable()
	table.AddRoute(&Route{DstSubnet: nil, NextHop: NextHopPort, NextHopPortID: "default"})
	table.AddRoute(&Route{DstSubnet: mustCIDR("10.0.0.0/8"), NextHop: NextHopPort, NextHopPortID: "coarse"})
	table.AddRoute(&Route{DstSubnet: mustCIDR("10.0.1.0/24"), NextHop: NextHopPort, NextHopPortID: "fine"})

	route := table.Lookup(net.ParseIP("192.168.0.1"), net.ParseIP("10.0.1.7"))
	Expect(route).ToNot(BeNil())
	Expect(route.NextHopPortID).To(Equal(topology.PortID("fine")))

	route = table.Lookup(net.ParseIP("192.168.0.1"), net.ParseIP("10.9.9.9"))
	Expect(route.NextHopPortID).To(Equal(topology.PortID("coarse")))

	route = table.Lookup(net.ParseIP("192.168.0.1"), net.ParseIP("172.16.0.1"))
	Expect(route.NextHopPortID).To(Equal(topology.PortID("default")))
}

func TestLookupWeightBreaksTies(t *testing.T) {
	RegisterTestingT(t)

	table := NewRoutingTable()
	table.AddRoute(&Route{DstSubnet: mustCIDR("10.0.0.0/24"), NextHop: NextHopPort,
		NextHopPortID: "heavy", Weight: 200})
	table.AddRoute(&Route{DstSubnet: mustCIDR("10.0.0.0/24"), NextHop: NextHopPort,
		NextHopPortID: "light", Weight: 100})

	route := table.Lookup(net.ParseIP("192.168.0.1"), net.ParseIP("10.0.0.7"))
	Expect(route.NextHopPortID).To(Equal(topology.PortID("light")))
}

func TestLookupSourceSubnetFilters(t *testing.T) {
	RegisterTestingT(t)

	table := NewRoutingTable()
	table.AddRoute(&Route{
		DstSubnet:     mustCIDR("10.0.0.0/24"),
		SrcSubnet:     mustCIDR("192.168.1.0/24"),
		NextHop:       NextHopPort,
		NextHopPortID: "restricted",
	})

	Expect(table.Lookup(net.ParseIP("192.168.1.5"), net.ParseIP("10.0.0.7"))).ToNot(BeNil())
	Expect(table.Lookup(net.ParseIP("192.168.2.5"), net.ParseIP("10.0.0.7"))).To(BeNil())
}

func TestRemoveRoute(t *testing.T) {
	RegisterTestingT(t)

	table := NewRoutingTable()
	route := &Route{DstSubnet: mustCIDR("10.0.0.0/24"), NextHop: NextHopPort,
		NextHopPortID: "port-a"}
	table.AddRoute(route)
	table.RemoveRoute(&Route{DstSubnet: mustCIDR("10.0.0.0/24"), NextHop: NextHopPort,
		NextHopPortID: "port-a"})

	Expect(table.Lookup(net.ParseIP("192.168.0.1"), net.ParseIP("10.0.0.7"))).To(BeNil())
}
