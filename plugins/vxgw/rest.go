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
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/unrolled/render"

	"github.com/midonet/agent/plugins/topology"
)

// GatewaysURL is the REST endpoint listing the active VxLAN gateways.
const GatewaysURL = "/midonet/v1/vxgw"

// GatewayStatus describes one active gateway for the debug REST surface.
type GatewayStatus struct {
	LogicalSwitch string   `json:"logicalSwitch"`
	VNI           uint32   `json:"vni"`
	VtepEndpoints []string `json:"vtepEndpoints"`
	Terminated    bool     `json:"terminated"`
}

// Status reports the gateway's logical switch, VNI and attached VTEP
// management endpoints. Safe to call from any goroutine.
func (m *Manager) Status() GatewayStatus {
	status := GatewayStatus{Terminated: true}
	if m.gateway == nil {
		return status
	}
	status.LogicalSwitch = m.gateway.Name
	status.VNI = m.gateway.VNI

	res := make(chan GatewayStatus, 1)
	m.enqueue(func() { res <- m.statusNow() })
	select {
	case s := <-res:
		return s
	case <-m.done:
		select {
		case s := <-res:
			return s
		default:
			return status
		}
	}
}

// statusNow runs on the executor goroutine.
func (m *Manager) statusNow() GatewayStatus {
	status := GatewayStatus{
		LogicalSwitch: m.gateway.Name,
		VNI:           m.gateway.VNI,
		Terminated:    m.terminated,
	}
	for _, port := range m.vxlanPorts {
		status.VtepEndpoints = append(status.VtepEndpoints,
			fmt.Sprintf("%s:%d", port.MgmtIP, port.MgmtPort))
	}
	sort.Strings(status.VtepEndpoints)
	return status
}

// Registry tracks the running gateway managers by bridge and serves their
// status over REST.
type Registry struct {
	mu       sync.Mutex
	managers map[topology.BridgeID]*Manager
}

// NewRegistry creates an empty manager registry.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[topology.BridgeID]*Manager)}
}

// Add tracks the manager of the given bridge, replacing any previous one.
func (r *Registry) Add(id topology.BridgeID, manager *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[id] = manager
}

// Remove stops tracking the manager of the given bridge.
func (r *Registry) Remove(id topology.BridgeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, id)
}

// Get returns the manager of the given bridge, nil if there is none.
func (r *Registry) Get(id topology.BridgeID) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.managers[id]
}

// Statuses returns the status of every tracked manager, ordered by
// logical-switch name.
func (r *Registry) Statuses() []GatewayStatus {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, manager := range r.managers {
		managers = append(managers, manager)
	}
	r.mu.Unlock()

	statuses := make([]GatewayStatus, 0, len(managers))
	for _, manager := range managers {
		statuses = append(statuses, manager.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].LogicalSwitch < statuses[j].LogicalSwitch
	})
	return statuses
}

// RegisterHandlers exposes the gateway statuses over the given HTTP
// handlers, a no-op when none are provided.
func (r *Registry) RegisterHandlers(log logging.Logger, http rest.HTTPHandlers) {
	if http == nil {
		log.Warnf("No HTTP handlers provided, skipping registration of VxGW REST handlers")
		return
	}
	http.RegisterHTTPHandler(GatewaysURL, r.gatewaysGetHandler, "GET")
	log.Infof("VxGW REST handler registered: GET %v", GatewaysURL)
}

func (r *Registry) gatewaysGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		formatter.JSON(w, http.StatusOK, r.Statuses())
	}
}
