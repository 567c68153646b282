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
	"bytes"
	"net"
	"sync"

	"github.com/midonet/agent/plugins/topology"
)

// watcherRegistry fans out notifications to registered callbacks.
type watcherRegistry struct {
	mu       sync.Mutex
	nextID   int
	watchers map[int]func(interface{})
}

func (r *watcherRegistry) add(callback func(interface{})) topology.CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchers == nil {
		r.watchers = make(map[int]func(interface{}))
	}
	id := r.nextID
	r.nextID++
	r.watchers[id] = callback
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers, id)
	}
}

func (r *watcherRegistry) notify(update interface{}) {
	r.mu.Lock()
	callbacks := make([]func(interface{}), 0, len(r.watchers))
	for _, cb := range r.watchers {
		callbacks = append(callbacks, cb)
	}
	r.mu.Unlock()
	for _, cb := range callbacks {
		cb(update)
	}
}

// MemArpCache is an in-memory ArpCache, used by unit tests and by
// deployments without a shared store.
type MemArpCache struct {
	mu       sync.RWMutex
	entries  map[string]*ArpEntry
	watchers watcherRegistry
}

// NewMemArpCache creates an empty in-memory ARP cache.
func NewMemArpCache() *MemArpCache {
	return &MemArpCache{entries: make(map[string]*ArpEntry)}
}

// Get returns the entry for the given IP, nil if there is none.
func (c *MemArpCache) Get(ip net.IP) *ArpEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[ip.String()].Clone()
}

// Add stores the entry under the given IP, replacing any previous one.
func (c *MemArpCache) Add(ip net.IP, entry *ArpEntry) error {
	key := ip.String()
	c.mu.Lock()
	old := c.entries[key]
	c.entries[key] = entry.Clone()
	c.mu.Unlock()
	c.watchers.notify(ArpCacheUpdate{IP: ip, Old: old, New: entry.Clone()})
	return nil
}

// Remove deletes the entry for the given IP, if present.
func (c *MemArpCache) Remove(ip net.IP) error {
	key := ip.String()
	c.mu.Lock()
	old, found := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if found {
		c.watchers.notify(ArpCacheUpdate{IP: ip, Old: old, New: nil})
	}
	return nil
}

// List returns a snapshot of the whole cache keyed by IP string.
func (c *MemArpCache) List() map[string]*ArpEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]*ArpEntry, len(c.entries))
	for ip, entry := range c.entries {
		snapshot[ip] = entry.Clone()
	}
	return snapshot
}

// Watch registers a callback invoked on every entry change.
func (c *MemArpCache) Watch(callback func(ArpCacheUpdate)) topology.CancelFunc {
	return c.watchers.add(func(update interface{}) {
		callback(update.(ArpCacheUpdate))
	})
}

// MemMacPortMap is an in-memory MacPortMap.
type MemMacPortMap struct {
	mu       sync.RWMutex
	bindings map[string]topology.PortID
	watchers watcherRegistry
}

// NewMemMacPortMap creates an empty in-memory forwarding table.
func NewMemMacPortMap() *MemMacPortMap {
	return &MemMacPortMap{bindings: make(map[string]topology.PortID)}
}

// GetPort returns the port currently bound to the MAC.
func (m *MemMacPortMap) GetPort(mac net.HardwareAddr) (topology.PortID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	port, found := m.bindings[mac.String()]
	return port, found
}

// Put binds the MAC to the port, replacing any previous binding.
func (m *MemMacPortMap) Put(mac net.HardwareAddr, port topology.PortID) error {
	key := mac.String()
	m.mu.Lock()
	old := m.bindings[key]
	m.bindings[key] = port
	m.mu.Unlock()
	if old != port {
		m.watchers.notify(MacPortUpdate{MAC: mac, OldPort: old, NewPort: port})
	}
	return nil
}

// Remove drops the binding for the MAC, if present.
func (m *MemMacPortMap) Remove(mac net.HardwareAddr) error {
	key := mac.String()
	m.mu.Lock()
	old, found := m.bindings[key]
	delete(m.bindings, key)
	m.mu.Unlock()
	if found {
		m.watchers.notify(MacPortUpdate{MAC: mac, OldPort: old, NewPort: ""})
	}
	return nil
}

// Snapshot returns a copy of the table keyed by MAC string.
func (m *MemMacPortMap) Snapshot() map[string]topology.PortID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]topology.PortID, len(m.bindings))
	for mac, port := range m.bindings {
		snapshot[mac] = port
	}
	return snapshot
}

// Watch registers a callback invoked on every binding change.
func (m *MemMacPortMap) Watch(callback func(MacPortUpdate)) topology.CancelFunc {
	return m.watchers.add(func(update interface{}) {
		callback(update.(MacPortUpdate))
	})
}

// MemIP4MacMap is an in-memory IP4MacMap.
type MemIP4MacMap struct {
	mu       sync.RWMutex
	assocs   map[string]net.HardwareAddr
	watchers watcherRegistry
}

// NewMemIP4MacMap creates an empty in-memory ARP suppression table.
func NewMemIP4MacMap() *MemIP4MacMap {
	return &MemIP4MacMap{assocs: make(map[string]net.HardwareAddr)}
}

// GetMAC returns the MAC associated with the IP.
func (m *MemIP4MacMap) GetMAC(ip net.IP) (net.HardwareAddr, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mac, found := m.assocs[ip.String()]
	return mac, found
}

// IPsOf returns every IP currently associated with the MAC.
func (m *MemIP4MacMap) IPsOf(mac net.HardwareAddr) (ips []net.IP) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ip, other := range m.assocs {
		if bytes.Equal(mac, other) {
			ips = append(ips, net.ParseIP(ip))
		}
	}
	return ips
}

// Put associates the IP with the MAC.
func (m *MemIP4MacMap) Put(ip net.IP, mac net.HardwareAddr) error {
	key := ip.String()
	m.mu.Lock()
	old := m.assocs[key]
	m.assocs[key] = mac
	m.mu.Unlock()
	if !bytes.Equal(old, mac) {
		m.watchers.notify(IP4MacUpdate{IP: ip, OldMAC: old, NewMAC: mac})
	}
	return nil
}

// Remove drops the association for the IP, if present.
func (m *MemIP4MacMap) Remove(ip net.IP) error {
	key := ip.String()
	m.mu.Lock()
	old, found := m.assocs[key]
	delete(m.assocs, key)
	m.mu.Unlock()
	if found {
		m.watchers.notify(IP4MacUpdate{IP: ip, OldMAC: old, NewMAC: nil})
	}
	return nil
}

// Snapshot returns a copy of the table keyed by IP string.
func (m *MemIP4MacMap) Snapshot() map[string]net.HardwareAddr {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]net.HardwareAddr, len(m.assocs))
	for ip, mac := range m.assocs {
		snapshot[ip] = mac
	}
	return snapshot
}

// Watch registers a callback invoked on every association change.
func (m *MemIP4MacMap) Watch(callback func(IP4MacUpdate)) topology.CancelFunc {
	return m.watchers.add(func(update interface{}) {
		callback(update.(IP4MacUpdate))
	})
}
