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
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/midonet/agent/plugins/topology"
)

var busPublications = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "midonet",
	Subsystem: "vxgw",
	Name:      "bus_publications_total",
	Help:      "MacLocations accepted onto a gateway bus, by logical switch.",
}, []string{"logical_switch"})

func init() {
	prometheus.MustRegister(busPublications)
}

// VxGateway identifies one VxLAN gateway: the Neutron network it serves,
// the logical-switch name shared with the VTEPs, and the VNI. It carries
// the bus every participant publishes MacLocations on.
type VxGateway struct {
	NetworkID string
	// Name is the logical-switch name, "mn-" + NetworkID.
	Name string
	VNI  uint32

	log logging.Logger

	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(MacLocation)
	queue       chan MacLocation
	done        chan struct{}
	closeOnce   sync.Once
}

// NewVxGateway creates the gateway for the given network with an empty bus.
func NewVxGateway(log logging.Logger, networkID string, vni uint32) *VxGateway {
	gw := &VxGateway{
		NetworkID:   networkID,
		Name:        "mn-" + networkID,
		VNI:         vni,
		log:         log,
		subscribers: make(map[int]func(MacLocation)),
		queue:       make(chan MacLocation, 256),
		done:        make(chan struct{}),
	}
	go gw.run()
	return gw
}

// run delivers queued publications to every subscriber, one at a time.
// All deliveries happen on this single goroutine.
func (gw *VxGateway) run() {
	for {
		select {
		case ml := <-gw.queue:
			gw.deliver(ml)
		case <-gw.done:
			return
		}
	}
}

func (gw *VxGateway) deliver(ml MacLocation) {
	gw.mu.Lock()
	callbacks := make([]func(MacLocation), 0, len(gw.subscribers))
	for _, cb := range gw.subscribers {
		callbacks = append(callbacks, cb)
	}
	gw.mu.Unlock()
	for _, cb := range callbacks {
		cb(ml)
	}
}

// Publish puts a MacLocation on the bus. Locations belonging to a different
// logical switch are discarded.
func (gw *VxGateway) Publish(ml MacLocation) {
	if ml.LogicalSwitch != gw.Name {
		gw.log.Debugf("Dropping publication for foreign logical switch %s on %s",
			ml.LogicalSwitch, gw.Name)
		return
	}
	select {
	case gw.queue <- ml:
		busPublications.WithLabelValues(gw.Name).Inc()
	case <-gw.done:
	}
}

// Subscribe registers a consumer of the bus. The callback runs on the bus
// goroutine and must not block.
func (gw *VxGateway) Subscribe(callback func(MacLocation)) topology.CancelFunc {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	id := gw.nextID
	gw.nextID++
	gw.subscribers[id] = callback
	return func() {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		delete(gw.subscribers, id)
	}
}

// Close completes the bus: delivery stops, later publications are
// discarded, and all subscribers are released.
func (gw *VxGateway) Close() {
	gw.closeOnce.Do(func() {
		close(gw.done)
		gw.mu.Lock()
		gw.subscribers = make(map[int]func(MacLocation))
		gw.mu.Unlock()
	})
}
