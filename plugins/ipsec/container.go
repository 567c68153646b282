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
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/midonet/agent/plugins/topology"
)

var setupFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "midonet",
	Subsystem: "ipsec",
	Name:      "setup_failures_total",
	Help:      "Number of container setups that failed and were rolled back.",
})

func init() {
	prometheus.MustRegister(setupFailures)
}

// IPSecError reports a failed helper invocation or a missing precondition
// of the container lifecycle.
type IPSecError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *IPSecError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ipsec: %s failed", e.Op)
	}
	return fmt.Sprintf("ipsec: %s failed: %v", e.Op, e.Err)
}

// Cause returns the underlying error.
func (e *IPSecError) Cause() error { return e.Err }

// ConfigSource resolves the VPN service configuration from the topology and
// signals changes to it.
type ConfigSource interface {
	// ResolveConfig returns the current config of the service: its admin
	// state and the connections bound to it.
	ResolveConfig(ctx context.Context) (*Config, error)

	// Watch registers a callback invoked on every change to the VPN service
	// or its connection set. The callback must not block.
	Watch(callback func()) topology.CancelFunc
}

// Deps carries the collaborators of a Container.
type Deps struct {
	Log    logging.Logger
	Ports  topology.PortResolver
	Source ConfigSource
	Helper *VpnHelper

	// OnHealth, when set, receives every health transition.
	OnHealth func(ContainerHealth)
}

// Container drives one IPsec VPN container through its lifecycle. Only one
// of Create, Update and Delete may be in progress at a time; the container
// serializes them internally.
type Container struct {
	Deps

	mu          sync.Mutex
	current     *Config
	running     bool
	cancelWatch topology.CancelFunc
	ifaceName   string
}

// NewContainer creates an idle container.
func NewContainer(deps Deps) *Container {
	return &Container{Deps: deps}
}

// Create resolves the router's external port and the VPN config, then sets
// the container up. When the service is administratively down, Create
// subscribes to topology updates and returns without side effects.
func (c *Container) Create(ctx context.Context, portID topology.PortID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	port, err := c.Ports.GetRouterPort(ctx, portID)
	if err != nil {
		return &IPSecError{Op: "resolve external port", Err: err}
	}
	c.ifaceName = "vpn-" + string(port.ID)

	c.cancelWatch = c.Source.Watch(func() {
		go func() {
			if err := c.Update(context.Background()); err != nil {
				c.Log.Errorf("VPN container update failed: %v", err)
			}
		}()
	})

	config, err := c.Source.ResolveConfig(ctx)
	if err != nil {
		return &IPSecError{Op: "resolve config", Err: err}
	}
	c.current = config
	if !config.AdminStateUp || config.IsEmpty() {
		c.Log.Infof("VPN service %s is down or empty, not starting", config.Service.Name)
		return nil
	}

	if err := c.setup(ctx, config); err != nil {
		return err
	}
	c.running = true
	c.publishHealth(ContainerHealth{Code: HealthRunning, Description: c.ifaceName})
	return nil
}

// Update tears the container down and, when the newly resolved config is
// non-empty and admin-up, sets it up again.
func (c *Container) Update(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.publishHealth(ContainerHealth{Code: HealthStopping, Description: c.ifaceName})
		c.cleanup(ctx, c.current)
		c.running = false
	}

	config, err := c.Source.ResolveConfig(ctx)
	if err != nil {
		return &IPSecError{Op: "resolve config", Err: err}
	}
	c.current = config
	if !config.AdminStateUp || config.IsEmpty() {
		c.publishHealth(ContainerHealth{Code: HealthStopped, Description: c.ifaceName})
		return nil
	}

	if err := c.setup(ctx, config); err != nil {
		c.publishHealth(ContainerHealth{Code: HealthError, Description: err.Error()})
		return err
	}
	c.running = true
	c.publishHealth(ContainerHealth{Code: HealthRunning, Description: c.ifaceName})
	return nil
}

// Delete tears the container down and cancels the topology subscription.
// Idempotent, also when Create never ran.
func (c *Container) Delete(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.publishHealth(ContainerHealth{Code: HealthStopping, Description: c.ifaceName})
		c.cleanup(ctx, c.current)
		c.running = false
	}
	if c.cancelWatch != nil {
		c.cancelWatch()
		c.cancelWatch = nil
	}
	c.publishHealth(ContainerHealth{Code: HealthStopped, Description: c.ifaceName})
	return nil
}

// setup renders the config files and drives the helper through the
// namespace and service bring-up. A failure of the namespace creation or of
// any later step rolls back the successful prefix in inverse order.
func (c *Container) setup(ctx context.Context, config *Config) error {
	service := &config.Service
	if err := c.writeConfigFiles(config); err != nil {
		return &IPSecError{Op: "write config files", Err: err}
	}

	if err := c.Helper.Prepare(ctx); err != nil {
		setupFailures.Inc()
		return &IPSecError{Op: "prepare", Err: err}
	}
	if err := c.Helper.CleanNS(ctx, service.Name); err != nil {
		setupFailures.Inc()
		return &IPSecError{Op: "cleanns", Err: err}
	}
	if err := c.Helper.MakeNS(ctx, service); err != nil {
		setupFailures.Inc()
		c.rollback(ctx, service, false)
		return &IPSecError{Op: "makens", Err: err}
	}
	if err := c.Helper.StartService(ctx, service.Name, service.FilePath); err != nil {
		setupFailures.Inc()
		c.rollback(ctx, service, true)
		return &IPSecError{Op: "start_service", Err: err}
	}

	conns := make([]string, 0, len(config.Connections))
	for _, conn := range config.adminUpConnections() {
		conns = append(conns, sanitizeName(conn.Name))
	}
	if err := c.Helper.InitConns(ctx, service.Name, service.FilePath,
		service.NamespaceGatewayIP.String(), conns); err != nil {
		setupFailures.Inc()
		c.rollback(ctx, service, true)
		return &IPSecError{Op: "init_conns", Err: err}
	}
	return nil
}

// writeConfigFiles recreates the service directory and renders ipsec.conf
// and ipsec.secrets under its etc subdirectory.
func (c *Container) writeConfigFiles(config *Config) error {
	path := config.Service.FilePath
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "failed to clear %s", path)
	}
	etc := filepath.Join(path, "etc")
	if err := os.MkdirAll(etc, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", etc)
	}
	conf := filepath.Join(etc, "ipsec.conf")
	if err := ioutil.WriteFile(conf, []byte(RenderConf(config)), 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", conf)
	}
	secrets := filepath.Join(etc, "ipsec.secrets")
	if err := ioutil.WriteFile(secrets, []byte(RenderSecrets(config)), 0600); err != nil {
		return errors.Wrapf(err, "failed to write %s", secrets)
	}
	return nil
}

// rollback undoes the successful prefix of a failed setup: the service is
// stopped first when it was started, then the namespace is removed along
// with the rendered files. Rollback errors are logged, not propagated.
func (c *Container) rollback(ctx context.Context, service *ServiceDef, stopService bool) {
	if stopService {
		if err := c.Helper.StopService(ctx, service.Name, service.FilePath); err != nil {
			c.Log.Warnf("Rollback stop_service for %s failed: %v", service.Name, err)
		}
	}
	if err := c.Helper.CleanNS(ctx, service.Name); err != nil {
		c.Log.Warnf("Rollback cleanns for %s failed: %v", service.Name, err)
	}
	if err := os.RemoveAll(service.FilePath); err != nil {
		c.Log.Warnf("Rollback removal of %s failed: %v", service.FilePath, err)
	}
}

// cleanup stops a running service and removes its namespace and files.
func (c *Container) cleanup(ctx context.Context, config *Config) {
	service := &config.Service
	if err := c.Helper.StopService(ctx, service.Name, service.FilePath); err != nil {
		c.Log.Warnf("stop_service for %s failed: %v", service.Name, err)
	}
	if err := c.Helper.CleanNS(ctx, service.Name); err != nil {
		c.Log.Warnf("cleanns for %s failed: %v", service.Name, err)
	}
	if err := os.RemoveAll(service.FilePath); err != nil {
		c.Log.Warnf("Removal of %s failed: %v", service.FilePath, err)
	}
}

// publishHealth must run with the container lock held.
func (c *Container) publishHealth(health ContainerHealth) {
	if c.OnHealth != nil {
		c.OnHealth(health)
	}
}
