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

package arptable

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/midonet/agent/plugins/state"
	"github.com/midonet/agent/plugins/topology"
)

var (
	requestsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "midonet",
		Subsystem: "arp_table",
		Name:      "requests_sent_total",
		Help:      "Number of ARP requests emitted by this agent.",
	})
	lookupTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "midonet",
		Subsystem: "arp_table",
		Name:      "lookup_timeouts_total",
		Help:      "Number of MAC lookups that hit the caller's deadline.",
	})
)

func init() {
	prometheus.MustRegister(requestsSent, lookupTimeouts)
}

// ArpTable resolves IP addresses to MACs through the shared ARP cache,
// emitting ARP requests on the router's ports when the cache cannot answer.
// One instance serves exactly one router.
type ArpTable struct {
	log    logging.Logger
	config *Config

	cache   state.ArpCache
	emitter topology.FrameEmitter

	mu      sync.Mutex
	waiters map[string]map[*waiter]struct{}
	arping  map[string]*arpLoop

	cancelWatch topology.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// waiter is one pending Get suspended until the address resolves.
type waiter struct {
	ch chan net.HardwareAddr
}

// arpLoop is the per-IP retransmission loop state.
type arpLoop struct {
	notify chan struct{}
}

// New creates an ARP table over the given shared cache, resolving through
// the given frame emitter. Call Start before use.
func New(log logging.Logger, config *Config, cache state.ArpCache,
	emitter topology.FrameEmitter) *ArpTable {

	t := &ArpTable{
		log:     log,
		config:  config.withDefaults(),
		cache:   cache,
		emitter: emitter,
		waiters: make(map[string]map[*waiter]struct{}),
		arping:  make(map[string]*arpLoop),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// Start subscribes the table to the shared cache notifications.
func (t *ArpTable) Start() error {
	t.cancelWatch = t.cache.Watch(t.onCacheUpdate)
	return nil
}

// Close unsubscribes from the cache and aborts every retransmission loop.
// Pending Gets fail with ErrClosed.
func (t *ArpTable) Close() error {
	if t.cancelWatch != nil {
		t.cancelWatch()
	}
	t.cancel()
	t.wg.Wait()
	return nil
}

// Get implements API.Get.
func (t *ArpTable) Get(ctx context.Context, ip net.IP,
	port *topology.RouterPort) (net.HardwareAddr, error) {

	// Off-subnet addresses cannot be resolved on an exterior port.
	if port.IsExterior() && !port.HasIPOnSubnet(ip) {
		t.log.Debugf("Not ARPing for %s: off-subnet on exterior port %s", ip, port.ID)
		return nil, nil
	}

	now := time.Now()
	entry := t.cache.Get(ip)
	if entry == nil || !entry.IsResolved() || entry.Stale.Before(now) {
		t.startArpLoop(ip, port)
	}
	if entry.IsResolved() && !entry.Expiry.Before(now) {
		return entry.MAC, nil
	}

	w := t.addWaiter(ip)
	defer t.removeWaiter(ip, w)

	// Re-check after registering: Set may have won the race.
	if entry := t.cache.Get(ip); entry.IsResolved() && !entry.Expiry.Before(now) {
		return entry.MAC, nil
	}

	select {
	case mac := <-w.ch:
		return mac, nil
	case <-ctx.Done():
		lookupTimeouts.Inc()
		return nil, ErrTimeout
	case <-t.ctx.Done():
		return nil, ErrClosed
	}
}

// Set implements API.Set.
func (t *ArpTable) Set(ip net.IP, mac net.HardwareAddr) {
	now := time.Now()
	entry := &state.ArpEntry{
		MAC:     mac,
		Stale:   now.Add(t.config.Stale),
		Expiry:  now.Add(t.config.Expiration),
		LastArp: now,
	}
	if err := t.cache.Add(ip, entry); err != nil {
		t.log.Warnf("Failed to store resolved binding %s -> %s: %v", ip, mac, err)
	}
	t.scheduleEntryExpiration(ip)
	t.completeWaiters(ip, mac)
}

// onCacheUpdate runs on the store notification goroutine: it wakes waiters
// when a binding resolves (locally or on another agent) and nudges the
// retransmission loop so it can re-evaluate the entry.
func (t *ArpTable) onCacheUpdate(update state.ArpCacheUpdate) {
	if update.New.IsResolved() {
		t.completeWaiters(update.IP, update.New.MAC)
	}
	t.mu.Lock()
	loop := t.arping[update.IP.String()]
	t.mu.Unlock()
	if loop != nil {
		select {
		case loop.notify <- struct{}{}:
		default:
		}
	}
}

func (t *ArpTable) addWaiter(ip net.IP) *waiter {
	w := &waiter{ch: make(chan net.HardwareAddr, 1)}
	key := ip.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.waiters[key] == nil {
		t.waiters[key] = make(map[*waiter]struct{})
	}
	t.waiters[key][w] = struct{}{}
	return w
}

func (t *ArpTable) removeWaiter(ip net.IP, w *waiter) {
	key := ip.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	if set := t.waiters[key]; set != nil {
		delete(set, w)
		if len(set) == 0 {
			delete(t.waiters, key)
		}
	}
}

// completeWaiters atomically drains the waiter set for ip, delivering mac
// (possibly nil) to each of them.
func (t *ArpTable) completeWaiters(ip net.IP, mac net.HardwareAddr) {
	key := ip.String()
	t.mu.Lock()
	set := t.waiters[key]
	delete(t.waiters, key)
	t.mu.Unlock()
	for w := range set {
		select {
		case w.ch <- mac:
		default:
		}
	}
}

// scheduleEntryExpiration arranges for the entry to be garbage collected
// once its expiration interval has fully elapsed. If the entry was
// refreshed in the meantime the collection is a no-op.
func (t *ArpTable) scheduleEntryExpiration(ip net.IP) {
	time.AfterFunc(t.config.Expiration, func() {
		entry := t.cache.Get(ip)
		if entry == nil || entry.Expiry.After(time.Now()) {
			return
		}
		t.log.Debugf("Expiring ARP cache entry for %s", ip)
		t.completeWaiters(ip, nil)
		if err := t.cache.Remove(ip); err != nil {
			t.log.Warnf("Failed to expire ARP entry for %s: %v", ip, err)
		}
	})
}

// startArpLoop spawns the retransmission loop for ip unless one is
// already in flight.
func (t *ArpTable) startArpLoop(ip net.IP, port *topology.RouterPort) {
	key := ip.String()
	t.mu.Lock()
	if _, running := t.arping[key]; running {
		t.mu.Unlock()
		return
	}
	loop := &arpLoop{notify: make(chan struct{}, 1)}
	t.arping[key] = loop
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			delete(t.arping, key)
			t.mu.Unlock()
		}()
		t.arpForAddress(ip, port, loop)
	}()
}

// arpForAddress retransmits ARP requests for ip until it resolves, the
// resolution times out, or another agent takes over. The lastArp field of
// the shared entry acts as a cooperative lease between agents.
func (t *ArpTable) arpForAddress(ip net.IP, port *topology.RouterPort, loop *arpLoop) {
	var previous time.Time

	for {
		now := time.Now()
		entry := t.cache.Get(ip)

		if entry == nil && previous.IsZero() {
			// First pass: record the in-flight resolution so that other
			// agents and the expiry scheduler can see it.
			entry = &state.ArpEntry{
				Expiry: now.Add(t.config.Timeout),
				Stale:  now,
			}
			if err := t.cache.Add(ip, entry); err != nil {
				t.log.Warnf("Failed to record in-flight resolution for %s: %v", ip, err)
			}
			t.scheduleEntryExpiration(ip)
		}

		if entry == nil || !entry.Expiry.After(now) {
			// The resolution timed out, nobody will answer.
			t.log.Debugf("ARP resolution for %s timed out", ip)
			t.completeWaiters(ip, nil)
			return
		}
		if !previous.IsZero() && !entry.LastArp.Equal(previous) &&
			now.Sub(entry.LastArp) < 2*t.config.Retry {
			// Another agent advanced lastArp under us and is still active.
			t.log.Debugf("Another agent is ARPing for %s, backing off", ip)
			return
		}
		if entry.IsResolved() && entry.Stale.After(now) {
			// Up to date; the waiters were completed through Set.
			return
		}

		entry.LastArp = now
		if err := t.cache.Add(ip, entry); err != nil {
			t.log.Warnf("Failed to advance lastArp for %s: %v", ip, err)
		}

		frame, err := makeArpRequest(port.MAC, port.IP, ip)
		if err != nil {
			t.log.Errorf("Failed to build ARP request for %s: %v", ip, err)
			return
		}
		t.emitter.Emit(port.ID, frame)
		requestsSent.Inc()
		previous = now

		if !t.waitForNewEntry(ip, now, loop) {
			return
		}
	}
}

// waitForNewEntry blocks until the cache entry for ip visibly changes or
// the retry interval elapses. Echoes of this agent's own lastArp write are
// swallowed. Returns false when the table is shutting down.
func (t *ArpTable) waitForNewEntry(ip net.IP, lastArp time.Time, loop *arpLoop) bool {
	retry := time.After(t.config.Retry)
	for {
		select {
		case <-loop.notify:
			entry := t.cache.Get(ip)
			if entry == nil || entry.IsResolved() || !entry.LastArp.Equal(lastArp) {
				return true
			}
		case <-retry:
			return true
		case <-t.ctx.Done():
			return false
		}
	}
}
