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

package ipsec

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	mocktopo "github.com/midonet/agent/mock/topology"
	"github.com/midonet/agent/plugins/topology"
)

// recordingRunner records every helper invocation and fails the ones the
// test marks as failing.
type recordingRunner struct {
	mu       sync.Mutex
	commands []string
	failOn   map[string]bool
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	subcommand := args[0]
	r.commands = append(r.commands, subcommand)
	if r.failOn[subcommand] {
		return errors.Errorf("%s exited with status 1", subcommand)
	}
	return nil
}

func (r *recordingRunner) trace() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

// fakeSource serves a mutable config and lets tests fire change
// notifications.
type fakeSource struct {
	mu       sync.Mutex
	config   *Config
	err      error
	watchers []func()
}

func (s *fakeSource) ResolveConfig(context.Context) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, s.err
}

func (s *fakeSource) Watch(callback func()) topology.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, callback)
	return func() {}
}

func (s *fakeSource) setConfig(config *Config) {
	s.mu.Lock()
	s.config = config
	watchers := append(([]func())(nil), s.watchers...)
	s.mu.Unlock()
	for _, w := range watchers {
		w()
	}
}

type containerFixture struct {
	container *Container
	runner    *recordingRunner
	source    *fakeSource
	health    chan ContainerHealth
	path      string
}

func newContainerFixture(t *testing.T) *containerFixture {
	dir, err := ioutil.TempDir("", "ipsec-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	config := testConfig()
	config.Service.FilePath = filepath.Join(dir, "vpn-1")

	topo := mocktopo.NewMockTopology()
	topo.AddRouterPort(&topology.RouterPort{
		ID:  "ext-port",
		MAC: mustMAC("aa:aa:aa:00:00:01"),
		IP:  net.ParseIP("203.0.113.1"),
	})

	runner := &recordingRunner{failOn: make(map[string]bool)}
	source := &fakeSource{config: config}
	health := make(chan ContainerHealth, 16)

	container := NewContainer(Deps{
		Log:      logrus.DefaultLogger(),
		Ports:    topo,
		Source:   source,
		Helper:   NewVpnHelper(runner, "vpn-helper"),
		OnHealth: func(h ContainerHealth) { health <- h },
	})
	return &containerFixture{
		container: container,
		runner:    runner,
		source:    source,
		health:    health,
		path:      config.Service.FilePath,
	}
}

func TestCreateRunsHelperSequence(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	Expect(f.container.Create(context.Background(), "ext-port")).To(Succeed())

	Expect(f.runner.trace()).To(Equal([]string{
		"prepare", "cleanns", "makens", "start_service", "init_conns",
	}))

	conf, err := ioutil.ReadFile(filepath.Join(f.path, "etc", "ipsec.conf"))
	Expect(err).To(BeNil())
	Expect(strings.HasPrefix(string(conf), confPreamble)).To(BeTrue())
	secrets, err := ioutil.ReadFile(filepath.Join(f.path, "etc", "ipsec.secrets"))
	Expect(err).To(BeNil())
	Expect(string(secrets)).To(ContainSubstring("PSK \"secret\""))

	var h ContainerHealth
	Expect(f.health).To(Receive(&h))
	Expect(h.Code).To(Equal(HealthRunning))
	Expect(h.Description).To(Equal("vpn-ext-port"))
}

func TestCreateFailsWithoutExternalPort(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	err := f.container.Create(context.Background(), "missing-port")
	Expect(err).To(BeAssignableToTypeOf(&IPSecError{}))
	Expect(f.runner.trace()).To(BeEmpty())
}

func TestCreateAdminDownSubscribesWithoutSideEffects(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	down := testConfig()
	down.AdminStateUp = false
	down.Service.FilePath = f.path
	f.source.config = down

	Expect(f.container.Create(context.Background(), "ext-port")).To(Succeed())
	Expect(f.runner.trace()).To(BeEmpty())
	Expect(f.path).ToNot(BeADirectory())

	// Flipping the admin state back up rebuilds the container.
	up := testConfig()
	up.Service.FilePath = f.path
	f.source.setConfig(up)

	Eventually(func() []string { return f.runner.trace() }).Should(Equal([]string{
		"prepare", "cleanns", "makens", "start_service", "init_conns",
	}))
}

func TestMakensFailureRollsBackWithCleanns(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	f.runner.failOn["makens"] = true

	err := f.container.Create(context.Background(), "ext-port")
	Expect(err).To(BeAssignableToTypeOf(&IPSecError{}))
	Expect(f.runner.trace()).To(Equal([]string{
		"prepare", "cleanns", "makens", "cleanns",
	}))
	Expect(f.path).ToNot(BeADirectory())
}

func TestStartServiceFailureRollsBackWithStopAndCleanns(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	f.runner.failOn["start_service"] = true

	err := f.container.Create(context.Background(), "ext-port")
	Expect(err).To(BeAssignableToTypeOf(&IPSecError{}))
	Expect(f.runner.trace()).To(Equal([]string{
		"prepare", "cleanns", "makens", "start_service", "stop_service", "cleanns",
	}))
}

func TestInitConnsFailureRollsBackWithStopAndCleanns(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	f.runner.failOn["init_conns"] = true

	err := f.container.Create(context.Background(), "ext-port")
	Expect(err).To(BeAssignableToTypeOf(&IPSecError{}))
	Expect(f.runner.trace()).To(Equal([]string{
		"prepare", "cleanns", "makens", "start_service", "init_conns",
		"stop_service", "cleanns",
	}))
}

func TestDeleteTearsDownAndLeavesNoFiles(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	Expect(f.container.Create(context.Background(), "ext-port")).To(Succeed())
	Expect(f.path).To(BeADirectory())

	Expect(f.container.Delete(context.Background())).To(Succeed())
	Expect(f.runner.trace()).To(Equal([]string{
		"prepare", "cleanns", "makens", "start_service", "init_conns",
		"stop_service", "cleanns",
	}))
	Expect(f.path).ToNot(BeADirectory())
}

func TestDeleteIdempotentWhenNeverStarted(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	Expect(f.container.Delete(context.Background())).To(Succeed())
	Expect(f.container.Delete(context.Background())).To(Succeed())
	Expect(f.runner.trace()).To(BeEmpty())
}

func TestTopologyChangeTriggersRebuild(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	Expect(f.container.Create(context.Background(), "ext-port")).To(Succeed())

	updated := testConfig()
	updated.Service.FilePath = f.path
	updated.Connections[0].MTU = 1400
	f.source.setConfig(updated)

	Eventually(func() []string { return f.runner.trace() }).Should(Equal([]string{
		"prepare", "cleanns", "makens", "start_service", "init_conns",
		"stop_service", "cleanns",
		"prepare", "cleanns", "makens", "start_service", "init_conns",
	}))
	conf, err := ioutil.ReadFile(filepath.Join(f.path, "etc", "ipsec.conf"))
	Expect(err).To(BeNil())
	Expect(string(conf)).To(ContainSubstring("mtu=1400"))
}

func TestEmptyConfigStaysTornDown(t *testing.T) {
	RegisterTestingT(t)

	f := newContainerFixture(t)
	Expect(f.container.Create(context.Background(), "ext-port")).To(Succeed())

	empty := testConfig()
	empty.Service.FilePath = f.path
	empty.Connections = nil
	f.source.setConfig(empty)

	Eventually(func() []string { return f.runner.trace() }).Should(Equal([]string{
		"prepare", "cleanns", "makens", "start_service", "init_conns",
		"stop_service", "cleanns",
	}))
	Expect(f.path).ToNot(BeADirectory())
}
