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

package state

import (
	"net"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/midonet/agent/plugins/topology"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func resolvedEntry(mac string) *ArpEntry {
	now := time.Now()
	return &ArpEntry{
		MAC:     mustMAC(mac),
		Stale:   now.Add(30 * time.Minute),
		Expiry:  now.Add(time.Hour),
		LastArp: now,
	}
}

func TestMemArpCacheAddGetRemove(t *testing.T) {
	RegisterTestingT(t)

	cache := NewMemArpCache()
	ip := net.ParseIP("10.0.0.9")
	Expect(cache.Get(ip)).To(BeNil())

	entry := resolvedEntry("aa:bb:cc:00:00:01")
	Expect(cache.Add(ip, entry)).To(Succeed())
	got := cache.Get(ip)
	Expect(got.MAC).To(Equal(entry.MAC))
	Expect(got.IsResolved()).To(BeTrue())

	Expect(cache.Remove(ip)).To(Succeed())
	Expect(cache.Get(ip)).To(BeNil())
}

func TestMemArpCacheGetReturnsCopy(t *testing.T) {
	RegisterTestingT(t)

	cache := NewMemArpCache()
	ip := net.ParseIP("10.0.0.9")
	Expect(cache.Add(ip, resolvedEntry("aa:bb:cc:00:00:01"))).To(Succeed())

	got := cache.Get(ip)
	got.MAC[0] = 0xff
	Expect(cache.Get(ip).MAC).To(Equal(mustMAC("aa:bb:cc:00:00:01")))
}

func TestMemArpCacheWatch(t *testing.T) {
	RegisterTestingT(t)

	cache := NewMemArpCache()
	var updates []ArpCacheUpdate
	cancel := cache.Watch(func(update ArpCacheUpdate) {
		updates = append(updates, update)
	})

	ip := net.ParseIP("10.0.0.9")
	entry := resolvedEntry("aa:bb:cc:00:00:01")
	Expect(cache.Add(ip, entry)).To(Succeed())
	Expect(updates).To(HaveLen(1))
	Expect(updates[0].Old).To(BeNil())
	Expect(updates[0].New.MAC).To(Equal(entry.MAC))

	Expect(cache.Remove(ip)).To(Succeed())
	Expect(updates).To(HaveLen(2))
	Expect(updates[1].Old.MAC).To(Equal(entry.MAC))
	Expect(updates[1].New).To(BeNil())

	// Removing an absent entry stays silent.
	Expect(cache.Remove(ip)).To(Succeed())
	Expect(updates).To(HaveLen(2))

	cancel()
	Expect(cache.Add(ip, entry)).To(Succeed())
	Expect(updates).To(HaveLen(2))
}

func TestMemMacPortMap(t *testing.T) {
	RegisterTestingT(t)

	table := NewMemMacPortMap()
	mac := mustMAC("aa:bb:cc:00:00:01")
	var updates []MacPortUpdate
	table.Watch(func(update MacPortUpdate) {
		updates = append(updates, update)
	})

	Expect(table.Put(mac, "port-1")).To(Succeed())
	port, found := table.GetPort(mac)
	Expect(found).To(BeTrue())
	Expect(port).To(Equal(topology.PortID("port-1")))
	Expect(updates).To(Equal([]MacPortUpdate{
		{MAC: mac, OldPort: "", NewPort: "port-1"},
	}))

	// Re-binding to the same port is not a change.
	Expect(table.Put(mac, "port-1")).To(Succeed())
	Expect(updates).To(HaveLen(1))

	Expect(table.Put(mac, "port-2")).To(Succeed())
	Expect(updates[1]).To(Equal(MacPortUpdate{
		MAC: mac, OldPort: "port-1", NewPort: "port-2",
	}))

	Expect(table.Remove(mac)).To(Succeed())
	_, found = table.GetPort(mac)
	Expect(found).To(BeFalse())
	Expect(updates[2]).To(Equal(MacPortUpdate{
		MAC: mac, OldPort: "port-2", NewPort: "",
	}))

	Expect(table.Snapshot()).To(BeEmpty())
}

func TestMemIP4MacMap(t *testing.T) {
	RegisterTestingT(t)

	table := NewMemIP4MacMap()
	mac := mustMAC("aa:bb:cc:00:00:01")
	var updates []IP4MacUpdate
	table.Watch(func(update IP4MacUpdate) {
		updates = append(updates, update)
	})

	Expect(table.Put(net.ParseIP("10.0.0.1"), mac)).To(Succeed())
	Expect(table.Put(net.ParseIP("10.0.0.2"), mac)).To(Succeed())
	got, found := table.GetMAC(net.ParseIP("10.0.0.1"))
	Expect(found).To(BeTrue())
	Expect(got).To(Equal(mac))
	Expect(updates).To(HaveLen(2))

	ips := table.IPsOf(mac)
	Expect(ips).To(HaveLen(2))
	Expect(ips).To(ContainElement(net.ParseIP("10.0.0.1")))
	Expect(ips).To(ContainElement(net.ParseIP("10.0.0.2")))

	// Re-associating with the same MAC is not a change.
	Expect(table.Put(net.ParseIP("10.0.0.1"), mac)).To(Succeed())
	Expect(updates).To(HaveLen(2))

	Expect(table.Remove(net.ParseIP("10.0.0.2"))).To(Succeed())
	Expect(updates[2].OldMAC).To(Equal(mac))
	Expect(updates[2].NewMAC).To(BeNil())
	Expect(table.IPsOf(mac)).To(HaveLen(1))
}
