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
	"net"
	"sync"
	"testing"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	received []MacLocation
}

func (s *recordingSubscriber) record(ml MacLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, ml)
}

func (s *recordingSubscriber) locations() []MacLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MacLocation(nil), s.received...)
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	RegisterTestingT(t)

	gw := NewVxGateway(logrus.DefaultLogger(), "net-1", 100)
	defer gw.Close()
	Expect(gw.Name).To(Equal("mn-net-1"))

	a, b := &recordingSubscriber{}, &recordingSubscriber{}
	gw.Subscribe(a.record)
	gw.Subscribe(b.record)

	mac, _ := net.ParseMAC("aa:aa:aa:00:00:01")
	gw.Publish(MacLocation{MAC: mac, LogicalSwitch: "mn-net-1",
		VxlanTunnelIP: net.ParseIP("192.168.0.1")})

	Eventually(func() int { return len(a.locations()) }).Should(Equal(1))
	Eventually(func() int { return len(b.locations()) }).Should(Equal(1))
}

func TestBusFiltersForeignLogicalSwitch(t *testing.T) {
	RegisterTestingT(t)

	gw := NewVxGateway(logrus.DefaultLogger(), "net-1", 100)
	defer gw.Close()

	sub := &recordingSubscriber{}
	gw.Subscribe(sub.record)

	mac, _ := net.ParseMAC("aa:aa:aa:00:00:01")
	gw.Publish(MacLocation{MAC: mac, LogicalSwitch: "mn-other"})
	gw.Publish(MacLocation{MAC: mac, LogicalSwitch: "mn-net-1"})

	Eventually(func() int { return len(sub.locations()) }).Should(Equal(1))
	Expect(sub.locations()[0].LogicalSwitch).To(Equal("mn-net-1"))
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	RegisterTestingT(t)

	gw := NewVxGateway(logrus.DefaultLogger(), "net-1", 100)
	defer gw.Close()

	sub := &recordingSubscriber{}
	cancel := gw.Subscribe(sub.record)

	mac, _ := net.ParseMAC("aa:aa:aa:00:00:01")
	gw.Publish(MacLocation{MAC: mac, LogicalSwitch: "mn-net-1"})
	Eventually(func() int { return len(sub.locations()) }).Should(Equal(1))

	cancel()
	gw.Publish(MacLocation{MAC: mac, LogicalSwitch: "mn-net-1"})
	Consistently(func() int { return len(sub.locations()) }, "100ms").Should(Equal(1))
}

func TestBusCloseReleasesSubscribers(t *testing.T) {
	RegisterTestingT(t)

	gw := NewVxGateway(logrus.DefaultLogger(), "net-1", 100)
	sub := &recordingSubscriber{}
	gw.Subscribe(sub.record)

	gw.Close()

	mac, _ := net.ParseMAC("aa:aa:aa:00:00:01")
	gw.Publish(MacLocation{MAC: mac, LogicalSwitch: "mn-net-1"})
	Consistently(func() int { return len(sub.locations()) }, "100ms").Should(BeZero())
}
