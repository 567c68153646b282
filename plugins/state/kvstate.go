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
	"time"

	"github.com/ligato/cn-infra/datasync"
	"github.com/ligato/cn-infra/db/keyval"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	arpmodel "github.com/midonet/agent/plugins/state/model/arp"
	macportmodel "github.com/midonet/agent/plugins/state/model/macport"
	"github.com/midonet/agent/plugins/topology"
)

// KVArpCache is an ArpCache mirrored through a key-value store. Every
// mutation is written through; mutations performed by other agents arrive
// via watch notifications and are applied to the local mirror, from where
// they fan out to registered watchers.
type KVArpCache struct {
	log      logging.LogWithLevel
	deviceID string
	broker   keyval.ProtoBroker
	mirror   *MemArpCache
	closeCh  chan string
}

// NewKVArpCache lists the current content of the store into the local
// mirror and starts watching for changes.
func NewKVArpCache(log logging.Logger, deviceID string,
	broker keyval.ProtoBroker, watcher keyval.ProtoWatcher) (*KVArpCache, error) {

	c := &KVArpCache{
		log:      log.WithField("device", deviceID),
		deviceID: deviceID,
		broker:   broker,
		mirror:   NewMemArpCache(),
		closeCh:  make(chan string),
	}
	if err := c.resync(); err != nil {
		return nil, err
	}
	err := watcher.Watch(c.onChange, c.closeCh, arpmodel.KeyPrefix(deviceID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to watch the shared ARP cache")
	}
	return c, nil
}

func (c *KVArpCache) resync() error {
	it, err := c.broker.ListValues(arpmodel.KeyPrefix(c.deviceID))
	if err != nil {
		return errors.Wrap(err, "failed to list the shared ARP cache")
	}
	for {
		kv, stop := it.GetNext()
		if stop {
			break
		}
		value := &arpmodel.Entry{}
		if err := kv.GetValue(value); err != nil {
			c.log.Warnf("Skipping undecodable ARP entry %s: %v", kv.GetKey(), err)
			continue
		}
		ipStr, err := arpmodel.ParseIPFromKey(kv.GetKey())
		if err != nil {
			c.log.Warn(err)
			continue
		}
		c.mirror.Add(net.ParseIP(ipStr), arpEntryFromProto(value))
	}
	return nil
}

func (c *KVArpCache) onChange(change datasync.ProtoWatchResp) {
	ipStr, err := arpmodel.ParseIPFromKey(change.GetKey())
	if err != nil {
		c.log.Warn(err)
		return
	}
	ip := net.ParseIP(ipStr)
	if change.GetChangeType() == datasync.Delete {
		c.mirror.Remove(ip)
		return
	}
	value := &arpmodel.Entry{}
	if err := change.GetValue(value); err != nil {
		c.log.Warnf("Failed to de-serialize ARP entry for key %s: %v",
			change.GetKey(), err)
		return
	}
	c.mirror.Add(ip, arpEntryFromProto(value))
}

// Get returns the entry for the given IP, nil if there is none.
func (c *KVArpCache) Get(ip net.IP) *ArpEntry {
	return c.mirror.Get(ip)
}

// Add stores the entry, writing it through to the shared store.
func (c *KVArpCache) Add(ip net.IP, entry *ArpEntry) error {
	if err := c.mirror.Add(ip, entry); err != nil {
		return err
	}
	err := c.broker.Put(arpmodel.Key(c.deviceID, ip.String()), arpEntryToProto(entry))
	return errors.Wrap(err, "failed to publish ARP entry")
}

// Remove deletes the entry, removing it from the shared store.
func (c *KVArpCache) Remove(ip net.IP) error {
	if err := c.mirror.Remove(ip); err != nil {
		return err
	}
	_, err := c.broker.Delete(arpmodel.Key(c.deviceID, ip.String()))
	return errors.Wrap(err, "failed to withdraw ARP entry")
}

// List returns a snapshot of the whole cache keyed by IP string.
func (c *KVArpCache) List() map[string]*ArpEntry {
	return c.mirror.List()
}

// Watch registers a callback invoked on every entry change, local or remote.
func (c *KVArpCache) Watch(callback func(ArpCacheUpdate)) topology.CancelFunc {
	return c.mirror.Watch(callback)
}

// Close stops watching the store.
func (c *KVArpCache) Close() error {
	close(c.closeCh)
	return nil
}

func arpEntryToProto(entry *ArpEntry) *arpmodel.Entry {
	value := &arpmodel.Entry{
		Expiry:  entry.Expiry.UnixNano(),
		Stale:   entry.Stale.UnixNano(),
		LastArp: entry.LastArp.UnixNano(),
	}
	if entry.MAC != nil {
		value.Mac = entry.MAC.String()
	}
	return value
}

func arpEntryFromProto(value *arpmodel.Entry) *ArpEntry {
	entry := &ArpEntry{
		Expiry:  time.Unix(0, value.Expiry),
		Stale:   time.Unix(0, value.Stale),
		LastArp: time.Unix(0, value.LastArp),
	}
	if value.Mac != "" {
		if mac, err := net.ParseMAC(value.Mac); err == nil {
			entry.MAC = mac
		}
	}
	return entry
}

// KVMacPortMap is a MacPortMap mirrored through a key-value store.
type KVMacPortMap struct {
	log      logging.LogWithLevel
	bridgeID string
	broker   keyval.ProtoBroker
	mirror   *MemMacPortMap
	closeCh  chan string
}

// NewKVMacPortMap lists the current content of the store into the local
// mirror and starts watching for changes.
func NewKVMacPortMap(log logging.Logger, bridgeID string,
	broker keyval.ProtoBroker, watcher keyval.ProtoWatcher) (*KVMacPortMap, error) {

	m := &KVMacPortMap{
		log:      log.WithField("bridge", bridgeID),
		bridgeID: bridgeID,
		broker:   broker,
		mirror:   NewMemMacPortMap(),
		closeCh:  make(chan string),
	}
	if err := m.resync(); err != nil {
		return nil, err
	}
	err := watcher.Watch(m.onChange, m.closeCh, macportmodel.KeyPrefix(bridgeID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to watch the MAC-port table")
	}
	return m, nil
}

func (m *KVMacPortMap) resync() error {
	it, err := m.broker.ListValues(macportmodel.KeyPrefix(m.bridgeID))
	if err != nil {
		return errors.Wrap(err, "failed to list the MAC-port table")
	}
	for {
		kv, stop := it.GetNext()
		if stop {
			break
		}
		value := &macportmodel.Binding{}
		if err := kv.GetValue(value); err != nil {
			m.log.Warnf("Skipping undecodable binding %s: %v", kv.GetKey(), err)
			continue
		}
		mac, err := net.ParseMAC(value.Mac)
		if err != nil {
			m.log.Warnf("Skipping binding with bad MAC %q: %v", value.Mac, err)
			continue
		}
		m.mirror.Put(mac, topology.PortID(value.PortId))
	}
	return nil
}

func (m *KVMacPortMap) onChange(change datasync.ProtoWatchResp) {
	macStr, err := macportmodel.ParseMACFromKey(change.GetKey())
	if err != nil {
		m.log.Warn(err)
		return
	}
	mac, err := net.ParseMAC(macStr)
	if err != nil {
		m.log.Warnf("Ignoring change with bad MAC %q: %v", macStr, err)
		return
	}
	if change.GetChangeType() == datasync.Delete {
		m.mirror.Remove(mac)
		return
	}
	value := &macportmodel.Binding{}
	if err := change.GetValue(value); err != nil {
		m.log.Warnf("Failed to de-serialize binding for key %s: %v",
			change.GetKey(), err)
		return
	}
	m.mirror.Put(mac, topology.PortID(value.PortId))
}

// GetPort returns the port currently bound to the MAC.
func (m *KVMacPortMap) GetPort(mac net.HardwareAddr) (topology.PortID, bool) {
	return m.mirror.GetPort(mac)
}

// Put binds the MAC to the port, writing the binding through to the store.
func (m *KVMacPortMap) Put(mac net.HardwareAddr, port topology.PortID) error {
	if err := m.mirror.Put(mac, port); err != nil {
		return err
	}
	err := m.broker.Put(macportmodel.Key(m.bridgeID, mac.String()),
		&macportmodel.Binding{Mac: mac.String(), PortId: string(port)})
	return errors.Wrap(err, "failed to publish MAC-port binding")
}

// Remove drops the binding for the MAC, removing it from the store.
func (m *KVMacPortMap) Remove(mac net.HardwareAddr) error {
	if err := m.mirror.Remove(mac); err != nil {
		return err
	}
	_, err := m.broker.Delete(macportmodel.Key(m.bridgeID, mac.String()))
	return errors.Wrap(err, "failed to withdraw MAC-port binding")
}

// Snapshot returns a copy of the table keyed by MAC string.
func (m *KVMacPortMap) Snapshot() map[string]topology.PortID {
	return m.mirror.Snapshot()
}

// Watch registers a callback invoked on every binding change.
func (m *KVMacPortMap) Watch(callback func(MacPortUpdate)) topology.CancelFunc {
	return m.mirror.Watch(callback)
}

// Close stops watching the store.
func (m *KVMacPortMap) Close() error {
	close(m.closeCh)
	return nil
}

// KVIP4MacMap is an IP4MacMap mirrored through a key-value store. It shares
// the wire model of the ARP cache; the timing fields stay zero because the
// bridge ARP suppression table has no per-entry lifecycle.
type KVIP4MacMap struct {
	log      logging.LogWithLevel
	bridgeID string
	broker   keyval.ProtoBroker
	mirror   *MemIP4MacMap
	closeCh  chan string
}

// NewKVIP4MacMap lists the current content of the store into the local
// mirror and starts watching for changes.
func NewKVIP4MacMap(log logging.Logger, bridgeID string,
	broker keyval.ProtoBroker, watcher keyval.ProtoWatcher) (*KVIP4MacMap, error) {

	m := &KVIP4MacMap{
		log:      log.WithField("bridge", bridgeID),
		bridgeID: bridgeID,
		broker:   broker,
		mirror:   NewMemIP4MacMap(),
		closeCh:  make(chan string),
	}
	if err := m.resync(); err != nil {
		return nil, err
	}
	err := watcher.Watch(m.onChange, m.closeCh, arpmodel.KeyPrefix(bridgeID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to watch the IP-MAC table")
	}
	return m, nil
}

func (m *KVIP4MacMap) resync() error {
	it, err := m.broker.ListValues(arpmodel.KeyPrefix(m.bridgeID))
	if err != nil {
		return errors.Wrap(err, "failed to list the IP-MAC table")
	}
	for {
		kv, stop := it.GetNext()
		if stop {
			break
		}
		value := &arpmodel.Entry{}
		if err := kv.GetValue(value); err != nil {
			m.log.Warnf("Skipping undecodable association %s: %v", kv.GetKey(), err)
			continue
		}
		ipStr, err := arpmodel.ParseIPFromKey(kv.GetKey())
		if err != nil {
			m.log.Warn(err)
			continue
		}
		mac, err := net.ParseMAC(value.Mac)
		if err != nil {
			m.log.Warnf("Skipping association with bad MAC %q: %v", value.Mac, err)
			continue
		}
		m.mirror.Put(net.ParseIP(ipStr), mac)
	}
	return nil
}

func (m *KVIP4MacMap) onChange(change datasync.ProtoWatchResp) {
	ipStr, err := arpmodel.ParseIPFromKey(change.GetKey())
	if err != nil {
		m.log.Warn(err)
		return
	}
	ip := net.ParseIP(ipStr)
	if change.GetChangeType() == datasync.Delete {
		m.mirror.Remove(ip)
		return
	}
	value := &arpmodel.Entry{}
	if err := change.GetValue(value); err != nil {
		m.log.Warnf("Failed to de-serialize association for key %s: %v",
			change.GetKey(), err)
		return
	}
	mac, err := net.ParseMAC(value.Mac)
	if err != nil {
		m.log.Warnf("Ignoring association with bad MAC %q: %v", value.Mac, err)
		return
	}
	m.mirror.Put(ip, mac)
}

// GetMAC returns the MAC associated with the IP.
func (m *KVIP4MacMap) GetMAC(ip net.IP) (net.HardwareAddr, bool) {
	return m.mirror.GetMAC(ip)
}

// IPsOf returns every IP currently associated with the MAC.
func (m *KVIP4MacMap) IPsOf(mac net.HardwareAddr) []net.IP {
	return m.mirror.IPsOf(mac)
}

// Put associates the IP with the MAC, writing through to the store.
func (m *KVIP4MacMap) Put(ip net.IP, mac net.HardwareAddr) error {
	if err := m.mirror.Put(ip, mac); err != nil {
		return err
	}
	err := m.broker.Put(arpmodel.Key(m.bridgeID, ip.String()),
		&arpmodel.Entry{Mac: mac.String()})
	return errors.Wrap(err, "failed to publish IP-MAC association")
}

// Remove drops the association for the IP, removing it from the store.
func (m *KVIP4MacMap) Remove(ip net.IP) error {
	if err := m.mirror.Remove(ip); err != nil {
		return err
	}
	_, err := m.broker.Delete(arpmodel.Key(m.bridgeID, ip.String()))
	return errors.Wrap(err, "failed to withdraw IP-MAC association")
}

// Snapshot returns a copy of the table keyed by IP string.
func (m *KVIP4MacMap) Snapshot() map[string]net.HardwareAddr {
	return m.mirror.Snapshot()
}

// Watch registers a callback invoked on every association change.
func (m *KVIP4MacMap) Watch(callback func(IP4MacUpdate)) topology.CancelFunc {
	return m.mirror.Watch(callback)
}

// Close stops watching the store.
func (m *KVIP4MacMap) Close() error {
	close(m.closeCh)
	return nil
}
