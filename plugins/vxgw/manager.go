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
	"context"
	"net"
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/midonet/agent/plugins/state"
	"github.com/midonet/agent/plugins/topology"
)

// ErrNotInVxlanGateway reports that the bridge has no VxLAN port bound.
// It is a normal termination signal, not a failure.
var ErrNotInVxlanGateway = errors.New("bridge is not part of a VxLAN gateway")

var managersActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "midonet",
	Subsystem: "vxgw",
	Name:      "managers_active",
	Help:      "Number of VxLAN gateway managers currently running.",
})

func init() {
	prometheus.MustRegister(managersActive)
}

// Deps carries the collaborators of a Manager.
type Deps struct {
	Log      logging.Logger
	Bridges  topology.BridgeResolver
	Tunnels  topology.TunnelEndpointResolver
	MacPorts state.MacPortMap
	ArpTable state.IP4MacMap
	Pool     VtepPool

	// FloodingProxyIP is the tunnel endpoint advertised for ARP entries of
	// MACs whose location is unknown. When nil those entries are skipped.
	FloodingProxyIP net.IP

	// OnClose runs once after the manager terminates, on the manager's
	// executor goroutine.
	OnClose func()
}

// Manager runs the VxLAN gateway control loop for one bridge. All internal
// state is confined to a single executor goroutine; watcher callbacks only
// enqueue work.
type Manager struct {
	Deps

	bridgeID topology.BridgeID
	gateway  *VxGateway

	vxlanPorts map[topology.PortID]*topology.VxLanPort
	peers      map[topology.PortID]VtepPeer

	cancelBridge topology.CancelFunc
	cancelMac    topology.CancelFunc
	cancelArp    topology.CancelFunc

	tasks      chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	terminated bool
}

// NewManager creates the gateway manager for the given bridge.
// Call Start before use.
func NewManager(bridgeID topology.BridgeID, deps Deps) *Manager {
	return &Manager{
		Deps:       deps,
		bridgeID:   bridgeID,
		vxlanPorts: make(map[topology.PortID]*topology.VxLanPort),
		peers:      make(map[topology.PortID]VtepPeer),
		tasks:      make(chan func(), 256),
		done:       make(chan struct{}),
	}
}

// Gateway returns the gateway value object, nil before Start.
func (m *Manager) Gateway() *VxGateway {
	return m.gateway
}

// Start loads the bridge, adopts the VNI of its first VxLAN port, attaches
// to every bound VTEP and begins watching for changes. Returns
// ErrNotInVxlanGateway when the bridge has no VxLAN port.
func (m *Manager) Start(ctx context.Context) error {
	bridge, err := m.Bridges.GetBridge(ctx, m.bridgeID)
	if err != nil {
		return errors.Wrapf(err, "failed to load bridge %s", m.bridgeID)
	}
	if len(bridge.VxLanPortIDs) == 0 {
		return ErrNotInVxlanGateway
	}
	first, err := m.Bridges.GetVxLanPort(ctx, bridge.VxLanPortIDs[0])
	if err != nil {
		return errors.Wrapf(err, "failed to load VxLAN port %s", bridge.VxLanPortIDs[0])
	}
	m.gateway = NewVxGateway(m.Log, string(m.bridgeID), first.VNI)

	m.wg.Add(1)
	go m.run()
	managersActive.Inc()

	m.cancelMac = m.MacPorts.Watch(func(update state.MacPortUpdate) {
		m.enqueue(func() { m.onMacPortUpdate(update) })
	})
	m.cancelArp = m.ArpTable.Watch(func(update state.IP4MacUpdate) {
		m.enqueue(func() { m.onArpUpdate(update) })
	})
	m.cancelBridge, err = m.Bridges.WatchBridge(m.bridgeID, func(bridge *topology.Bridge) {
		m.enqueue(func() { m.onBridgeUpdate(context.Background(), bridge) })
	})
	if err != nil {
		m.Close()
		return errors.Wrapf(err, "failed to watch bridge %s", m.bridgeID)
	}

	m.enqueue(func() { m.onBridgeUpdate(context.Background(), bridge) })
	return nil
}

// Close terminates the manager. Idempotent.
func (m *Manager) Close() error {
	m.enqueue(m.terminateNow)
	m.wg.Wait()
	return nil
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case task := <-m.tasks:
			task()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) enqueue(task func()) {
	select {
	case m.tasks <- task:
	case <-m.done:
	}
}

// terminateNow runs on the executor goroutine.
func (m *Manager) terminateNow() {
	if m.terminated {
		return
	}
	m.terminated = true
	if m.cancelBridge != nil {
		m.cancelBridge()
	}
	if m.cancelMac != nil {
		m.cancelMac()
	}
	if m.cancelArp != nil {
		m.cancelArp()
	}
	for id, peer := range m.peers {
		if err := peer.Abandon(m.gateway); err != nil {
			m.Log.Warnf("VTEP peer for port %s failed to abandon %s: %v",
				id, m.gateway.Name, err)
		}
	}
	m.gateway.Close()
	managersActive.Dec()
	if m.OnClose != nil {
		m.OnClose()
	}
	close(m.done)
}

// onBridgeUpdate recomputes the set of bound VxLAN ports. A nil bridge or
// an empty binding set terminates the manager.
func (m *Manager) onBridgeUpdate(ctx context.Context, bridge *topology.Bridge) {
	if m.terminated {
		return
	}
	if bridge == nil || len(bridge.VxLanPortIDs) == 0 {
		m.Log.Infof("Bridge %s left the VxLAN gateway, terminating", m.bridgeID)
		m.terminateNow()
		return
	}

	for id, peer := range m.peers {
		if bridge.HasVxLanPort(id) {
			continue
		}
		m.Log.Infof("VxLAN port %s unbound from bridge %s", id, m.bridgeID)
		if err := peer.Abandon(m.gateway); err != nil {
			m.Log.Warnf("VTEP peer for port %s failed to abandon %s: %v",
				id, m.gateway.Name, err)
		}
		delete(m.peers, id)
		delete(m.vxlanPorts, id)
	}

	for _, id := range bridge.VxLanPortIDs {
		if _, tracked := m.vxlanPorts[id]; tracked {
			continue
		}
		port, err := m.Bridges.GetVxLanPort(ctx, id)
		if err != nil {
			m.Log.Warnf("Failed to load VxLAN port %s: %v", id, err)
			continue
		}
		if port.VNI != m.gateway.VNI {
			m.Log.Warnf("Ignoring VxLAN port %s: VNI %d does not match gateway VNI %d",
				id, port.VNI, m.gateway.VNI)
			continue
		}
		peer, err := m.Pool.Peer(port.MgmtIP, port.MgmtPort)
		if err != nil {
			m.Log.Warnf("Failed to reach VTEP %s:%d: %v", port.MgmtIP, port.MgmtPort, err)
			continue
		}
		m.vxlanPorts[id] = port
		m.peers[id] = peer
		if err := peer.Join(m.gateway, m.snapshot()); err != nil {
			m.Log.Warnf("VTEP peer for port %s failed to join %s: %v",
				id, m.gateway.Name, err)
			delete(m.vxlanPorts, id)
			delete(m.peers, id)
		}
	}
}

// isMidoPort tells whether the port belongs to the MidoNet side of the
// gateway, as opposed to one of the tracked VTEP bindings.
func (m *Manager) isMidoPort(id topology.PortID) bool {
	if id == "" {
		return false
	}
	_, vtep := m.vxlanPorts[id]
	return !vtep
}

// onMacPortUpdate republishes forwarding-table changes that involve the
// MidoNet side. Moves strictly between VTEPs are carried by the peers.
func (m *Manager) onMacPortUpdate(update state.MacPortUpdate) {
	if m.terminated {
		return
	}
	for _, ml := range m.toMacLocations(update.MAC, update.NewPort, update.OldPort, true) {
		m.gateway.Publish(ml)
	}
}

// onArpUpdate translates IP-MAC association changes into ARP suppression
// advertisements for MACs living on the MidoNet side.
func (m *Manager) onArpUpdate(update state.IP4MacUpdate) {
	if m.terminated {
		return
	}
	if update.OldMAC != nil {
		if port, found := m.MacPorts.GetPort(update.OldMAC); found && m.isMidoPort(port) {
			m.gateway.Publish(MacLocation{
				MAC:           update.OldMAC,
				IP:            update.IP,
				LogicalSwitch: m.gateway.Name,
			})
		}
	}
	if update.NewMAC != nil {
		if port, found := m.MacPorts.GetPort(update.NewMAC); found && m.isMidoPort(port) {
			m.advertiseMacAndIPAt(update.NewMAC, update.IP, port)
		}
	}
}

// advertiseMacAndIPAt publishes the (mac, ip) pair at the tunnel endpoint of
// the port, rechecking first that the MAC still lives there.
func (m *Manager) advertiseMacAndIPAt(mac net.HardwareAddr, ip net.IP,
	port topology.PortID) {

	current, found := m.MacPorts.GetPort(mac)
	if !found || current != port {
		return
	}
	tunnel := m.Tunnels.TunnelEndpointOf(port)
	if tunnel == nil {
		m.Log.Debugf("No tunnel endpoint for port %s, not advertising %s", port, mac)
		return
	}
	m.gateway.Publish(MacLocation{
		MAC:           mac,
		IP:            ip,
		LogicalSwitch: m.gateway.Name,
		VxlanTunnelIP: tunnel,
	})
}

// toMacLocations translates one forwarding-table change into the
// MacLocations to publish. With onlyMido set, changes not involving the
// MidoNet side produce nothing.
func (m *Manager) toMacLocations(mac net.HardwareAddr, newPort,
	oldPort topology.PortID, onlyMido bool) []MacLocation {

	newIsMido := m.isMidoPort(newPort)
	oldIsMido := m.isMidoPort(oldPort)
	if onlyMido && !newIsMido && !oldIsMido {
		return nil
	}

	var tunnelDst net.IP
	switch {
	case newPort == "":
	case newIsMido || oldIsMido:
		tunnelDst = m.Tunnels.TunnelEndpointOf(newPort)
	default:
		tunnelDst = m.vxlanPorts[newPort].TunnelIP
	}

	lsName := m.gateway.Name
	if tunnelDst == nil {
		locations := []MacLocation{{MAC: mac, LogicalSwitch: lsName}}
		if newPort != "" && m.FloodingProxyIP != nil {
			for _, ip := range m.ArpTable.IPsOf(mac) {
				locations = append(locations, MacLocation{
					MAC:           mac,
					IP:            ip,
					LogicalSwitch: lsName,
					VxlanTunnelIP: m.FloodingProxyIP,
				})
			}
		}
		return locations
	}

	locations := []MacLocation{{MAC: mac, LogicalSwitch: lsName, VxlanTunnelIP: tunnelDst}}
	for _, ip := range m.ArpTable.IPsOf(mac) {
		locations = append(locations, MacLocation{
			MAC:           mac,
			IP:            ip,
			LogicalSwitch: lsName,
			VxlanTunnelIP: tunnelDst,
		})
	}
	return locations
}

// snapshot translates the whole forwarding table for replay to a joining
// VTEP peer.
func (m *Manager) snapshot() []MacLocation {
	var locations []MacLocation
	for macStr, port := range m.MacPorts.Snapshot() {
		mac, err := net.ParseMAC(macStr)
		if err != nil {
			continue
		}
		locations = append(locations, m.toMacLocations(mac, port, "", false)...)
	}
	return locations
}
