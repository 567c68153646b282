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

package main

import (
	"context"
	"net/http"

	"github.com/ligato/cn-infra/agent"
	"github.com/ligato/cn-infra/db/keyval/etcd"
	"github.com/ligato/cn-infra/health/probe"
	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/namsral/flag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"

	"github.com/midonet/agent/plugins/arptable"
	"github.com/midonet/agent/plugins/state"
	"github.com/midonet/agent/plugins/supervisor"
	"github.com/midonet/agent/plugins/vxgw"
)

// MetricsURL is the REST endpoint serving the Prometheus metrics.
const MetricsURL = "/midonet/v1/metrics"

// MidonetAgent wires the shared state, the gateway registry and the debug
// REST surface of one agent instance.
type MidonetAgent struct {
	Log         logging.Logger
	HTTP        rest.HTTPHandlers
	Etcd        *etcd.Plugin
	HealthProbe *probe.Plugin

	config     *Config
	supervisor *supervisor.Supervisor
	gateways   *vxgw.Registry
	arpCache   state.ArpCache
}

func (a *MidonetAgent) String() string {
	return "midonet-agent"
}

// Init builds the shared state maps and registers the REST handlers.
func (a *MidonetAgent) Init() error {
	a.supervisor = supervisor.New(a.Log)
	a.gateways = vxgw.NewRegistry()

	if a.Etcd != nil && !a.Etcd.Disabled() {
		cache, err := state.NewKVArpCache(a.Log, a.config.DeviceID,
			a.Etcd.NewBroker(""), a.Etcd.NewWatcher(""))
		if err != nil {
			return err
		}
		a.arpCache = cache
		a.Log.Infof("Shared ARP cache for device %s backed by etcd", a.config.DeviceID)
	} else {
		a.arpCache = state.NewMemArpCache()
		a.Log.Warnf("Etcd is disabled, the ARP cache of device %s stays local",
			a.config.DeviceID)
	}

	if proxy := a.config.FloodingProxy(); proxy != nil {
		a.Log.Infof("VxGW flooding proxy configured at %s", proxy)
	}

	arptable.RegisterHandlers(a.Log, a.HTTP, a.arpCache)
	a.gateways.RegisterHandlers(a.Log, a.HTTP)
	a.registerMetricsHandler()
	return nil
}

// Close stops the supervised children and detaches from the shared state.
func (a *MidonetAgent) Close() error {
	err := a.supervisor.Stop(context.Background())
	if cache, ok := a.arpCache.(*state.KVArpCache); ok {
		if closeErr := cache.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (a *MidonetAgent) registerMetricsHandler() {
	if a.HTTP == nil {
		return
	}
	handler := promhttp.Handler()
	a.HTTP.RegisterHTTPHandler(MetricsURL,
		func(formatter *render.Render) http.HandlerFunc {
			return handler.ServeHTTP
		}, "GET")
	a.Log.Infof("Metrics handler registered: GET %v", MetricsURL)
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "midonet-agent.conf",
		"location of the agent configuration file")
	flag.Parse()

	log := logrus.DefaultLogger()
	config, err := loadConfig(configFile)
	if err != nil {
		log.Fatal(err)
	}

	midonetAgent := &MidonetAgent{
		Log:         log,
		HTTP:        &rest.DefaultPlugin,
		Etcd:        &etcd.DefaultPlugin,
		HealthProbe: &probe.DefaultPlugin,
		config:      config,
	}

	a := agent.NewAgent(agent.AllPlugins(midonetAgent))
	if err := a.Run(); err != nil {
		log.Fatal(err)
	}
}
