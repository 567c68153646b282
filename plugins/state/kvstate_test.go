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

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"

	mockkv "github.com/midonet/agent/mock/kvstore"
	arpmodel "github.com/midonet/agent/plugins/state/model/arp"
	macportmodel "github.com/midonet/agent/plugins/state/model/macport"
	"github.com/midonet/agent/plugins/topology"
)

func TestKVArpCacheResyncsOnCreation(t *testing.T) {
	RegisterTestingT(t)

	store := mockkv.NewMockKVStore()
	Expect(store.Put(arpmodel.Key("router-1", "10.0.0.9"), &arpmodel.Entry{
		Mac:    "aa:bb:cc:00:00:01",
		Expiry: time.Now().Add(time.Hour).UnixNano(),
		Stale:  time.Now().Add(30 * time.Minute).UnixNano(),
	})).To(Succeed())

	cache, err := NewKVArpCache(logrus.DefaultLogger(), "router-1", store, store)
	Expect(err).To(BeNil())
	defer cache.Close()

	entry := cache.Get(net.ParseIP("10.0.0.9"))
	Expect(entry.IsResolved()).To(BeTrue())
	Expect(entry.MAC).To(Equal(mustMAC("aa:bb:cc:00:00:01")))
}

func TestKVArpCacheWritesThrough(t *testing.T) {
	RegisterTestingT(t)

	store := mockkv.NewMockKVStore()
	cache, err := NewKVArpCache(logrus.DefaultLogger(), "router-1", store, store)
	Expect(err).To(BeNil())
	defer cache.Close()

	ip := net.ParseIP("10.0.0.9")
	entry := resolvedEntry("aa:bb:cc:00:00:01")
	Expect(cache.Add(ip, entry)).To(Succeed())

	stored := &arpmodel.Entry{}
	found, _, err := store.GetValue(arpmodel.Key("router-1", "10.0.0.9"), stored)
	Expect(err).To(BeNil())
	Expect(found).To(BeTrue())
	Expect(stored.Mac).To(Equal("aa:bb:cc:00:00:01"))
	Expect(stored.Expiry).To(Equal(entry.Expiry.UnixNano()))

	Expect(cache.Remove(ip)).To(Succeed())
	found, _, err = store.GetValue(arpmodel.Key("router-1", "10.0.0.9"), stored)
	Expect(err).To(BeNil())
	Expect(found).To(BeFalse())
}

func TestKVArpCacheAppliesRemoteChanges(t *testing.T) {
	RegisterTestingT(t)

	store := mockkv.NewMockKVStore()
	cache, err := NewKVArpCache(logrus.DefaultLogger(), "router-1", store, store)
	Expect(err).To(BeNil())
	defer cache.Close()

	var updates []ArpCacheUpdate
	cache.Watch(func(update ArpCacheUpdate) {
		updates = append(updates, update)
	})

	// Another agent resolves the address.
	Expect(store.Put(arpmodel.Key("router-1", "10.0.0.9"), &arpmodel.Entry{
		Mac: "aa:bb:cc:00:00:02",
	})).To(Succeed())

	entry := cache.Get(net.ParseIP("10.0.0.9"))
	Expect(entry.MAC).To(Equal(mustMAC("aa:bb:cc:00:00:02")))
	Expect(updates).To(HaveLen(1))
	Expect(updates[0].New.MAC).To(Equal(mustMAC("aa:bb:cc:00:00:02")))

	// And later withdraws it.
	_, err = store.Delete(arpmodel.Key("router-1", "10.0.0.9"))
	Expect(err).To(BeNil())
	Expect(cache.Get(net.ParseIP("10.0.0.9"))).To(BeNil())
	Expect(updates).To(HaveLen(2))
	Expect(updates[1].New).To(BeNil())
}

func TestKVArpCacheIgnoresForeignDevices(t *testing.T) {
	RegisterTestingT(t)

	store := mockkv.NewMockKVStore()
	cache, err := NewKVArpCache(logrus.DefaultLogger(), "router-1", store, store)
	Expect(err).To(BeNil())
	defer cache.Close()

	Expect(store.Put(arpmodel.Key("router-2", "10.0.0.9"), &arpmodel.Entry{
		Mac: "aa:bb:cc:00:00:03",
	})).To(Succeed())
	Expect(cache.Get(net.ParseIP("10.0.0.9"))).To(BeNil())
}

func TestKVArpCacheCloseStopsDelivery(t *testing.T) {
	RegisterTestingT(t)

	store := mockkv.NewMockKVStore()
	cache, err := NewKVArpCache(logrus.DefaultLogger(), "router-1", store, store)
	Expect(err).To(BeNil())
	Expect(cache.Close()).To(Succeed())

	Expect(store.Put(arpmodel.Key("router-1", "10.0.0.9"), &arpmodel.Entry{
		Mac: "aa:bb:cc:00:00:01",
	})).To(Succeed())
	Expect(cache.Get(net.ParseIP("10.0.0.9"))).To(BeNil())
}

func TestKVMacPortMapRoundTrip(t *testing.T) {
	RegisterTestingT(t)

	store := mockkv.NewMockKVStore()
	table, err := NewKVMacPortMap(logrus.DefaultLogger(), "bridge-1", store, store)
	Expect(err).To(BeNil())
	defer table.Close()

	mac := mustMAC("aa:bb:cc:00:00:01")
	Expect(table.Put(mac, "port-1")).To(Succeed())

	stored := &macportmodel.Binding{}
	found, _, err := store.GetValue(macportmodel.Key("bridge-1", mac.String()), stored)
	Expect(err).To(BeNil())
	Expect(found).To(BeTrue())
	Expect(stored.PortId).To(Equal("port-1"))

	// A remote agent moves the MAC.
	var updates []MacPortUpdate
	table.Watch(func(update MacPortUpdate) {
		updates = append(updates, update)
	})
	Expect(store.Put(macportmodel.Key("bridge-1", mac.String()),
		&macportmodel.Binding{Mac: mac.String(), PortId: "port-2"})).To(Succeed())

	port, found := table.GetPort(mac)
	Expect(found).To(BeTrue())
	Expect(port).To(Equal(topology.PortID("port-2")))
	Expect(updates).To(Equal([]MacPortUpdate{
		{MAC: mac, OldPort: "port-1", NewPort: "port-2"},
	}))

	Expect(table.Remove(mac)).To(Succeed())
	_, found = table.GetPort(mac)
	Expect(found).To(BeFalse())
}

func TestKVMacPortMapResyncsOnCreation(t *testing.T) {
	RegisterTestingT(t)

	store := mockkv.NewMockKVStore()
	mac := mustMAC("aa:bb:cc:00:00:01")
	Expect(store.Put(macportmodel.Key("bridge-1", mac.String()),
		&macportmodel.Binding{Mac: mac.String(), PortId: "port-1"})).To(Succeed())

	table, err := NewKVMacPortMap(logrus.DefaultLogger(), "bridge-1", store, store)
	Expect(err).To(BeNil())
	defer table.Close()

	Expect(table.Snapshot()).To(Equal(map[string]topology.PortID{
		mac.String(): "port-1",
	}))
}

func TestKVIP4MacMapRoundTrip(t *testing.T) {
	RegisterTestingT(t)

	store := mockkv.NewMockKVStore()
	table, err := NewKVIP4MacMap(logrus.DefaultLogger(), "bridge-1", store, store)
	Expect(err).To(BeNil())
	defer table.Close()

	mac := mustMAC("aa:bb:cc:00:00:01")
	Expect(table.Put(net.ParseIP("10.0.0.1"), mac)).To(Succeed())

	stored := &arpmodel.Entry{}
	found, _, err := store.GetValue(arpmodel.Key("bridge-1", "10.0.0.1"), stored)
	Expect(err).To(BeNil())
	Expect(found).To(BeTrue())
	Expect(stored.Mac).To(Equal(mac.String()))

	// A remote agent adds a second association for the same MAC.
	Expect(store.Put(arpmodel.Key("bridge-1", "10.0.0.2"),
		&arpmodel.Entry{Mac: mac.String()})).To(Succeed())
	Expect(table.IPsOf(mac)).To(HaveLen(2))

	_, err = store.Delete(arpmodel.Key("bridge-1", "10.0.0.2"))
	Expect(err).To(BeNil())
	Expect(table.IPsOf(mac)).To(HaveLen(1))
}
