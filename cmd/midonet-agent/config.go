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
	"io/ioutil"
	"net"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/midonet/agent/plugins/arptable"
)

// ArpConfig overrides the ARP cache entry lifetimes, in seconds. Zero
// fields keep the defaults.
type ArpConfig struct {
	RetrySeconds      int `json:"retrySeconds"`
	TimeoutSeconds    int `json:"timeoutSeconds"`
	StaleSeconds      int `json:"staleSeconds"`
	ExpirationSeconds int `json:"expirationSeconds"`
}

// Timings translates the overrides into the ARP table configuration.
func (c ArpConfig) Timings() arptable.Config {
	return arptable.Config{
		Retry:      time.Duration(c.RetrySeconds) * time.Second,
		Timeout:    time.Duration(c.TimeoutSeconds) * time.Second,
		Stale:      time.Duration(c.StaleSeconds) * time.Second,
		Expiration: time.Duration(c.ExpirationSeconds) * time.Second,
	}
}

// VxGWConfig carries the VxLAN gateway settings.
type VxGWConfig struct {
	// FloodingProxyIP is the tunnel endpoint advertised for MACs with an
	// unknown location. Empty disables flooding-proxy advertisements.
	FloodingProxyIP string `json:"floodingProxyIp"`
}

// IPSecConfig carries the VPN container settings.
type IPSecConfig struct {
	// ConfigDir is the root under which per-container directories are
	// created.
	ConfigDir string `json:"configDir"`
}

// Config is the agent configuration file model.
type Config struct {
	// DeviceID scopes the shared ARP cache keys of this agent's router.
	DeviceID string      `json:"deviceId"`
	Arp      ArpConfig   `json:"arp"`
	VxGW     VxGWConfig  `json:"vxgw"`
	IPSec    IPSecConfig `json:"ipsec"`
}

func defaultConfig() *Config {
	return &Config{
		DeviceID: "default",
		IPSec:    IPSecConfig{ConfigDir: "/tmp"},
	}
}

// FloodingProxy parses the configured flooding proxy, nil when unset.
func (c *Config) FloodingProxy() net.IP {
	if c.VxGW.FloodingProxyIP == "" {
		return nil
	}
	return net.ParseIP(c.VxGW.FloodingProxyIP)
}

// loadConfig reads the YAML configuration file. A missing file yields the
// defaults.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	if config.VxGW.FloodingProxyIP != "" && config.FloodingProxy() == nil {
		return nil, errors.Errorf("bad flooding proxy IP %q", config.VxGW.FloodingProxyIP)
	}
	return config, nil
}
