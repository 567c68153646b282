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
	"time"

	"github.com/pkg/errors"

	"github.com/midonet/agent/plugins/topology"
)

// Default lifetimes of the shared ARP cache entries.
const (
	// DefaultRetry is the interval between ARP request retransmissions.
	DefaultRetry = 10 * time.Second
	// DefaultTimeout bounds an unresolved in-flight resolution.
	DefaultTimeout = 60 * time.Second
	// DefaultStale is the age at which a resolved binding should be
	// refreshed, while still remaining usable.
	DefaultStale = 1800 * time.Second
	// DefaultExpiration is the age at which a resolved binding becomes
	// unusable and is dropped from the cache.
	DefaultExpiration = 3600 * time.Second
)

// ErrTimeout is returned by Get when the caller's deadline elapses before
// the address resolves.
var ErrTimeout = errors.New("timed out waiting for ARP resolution")

// ErrClosed is returned by Get when the ARP table shuts down while the
// lookup is pending.
var ErrClosed = errors.New("ARP table is closed")

// API resolves next-hop MAC addresses for the router pipeline.
type API interface {
	// Get returns the MAC for ip reachable via port, bounded by the context
	// deadline. A nil MAC with a nil error means the address is known to be
	// unreachable on that port (off-subnet on an exterior port, or the
	// resolution expired).
	Get(ctx context.Context, ip net.IP, port *topology.RouterPort) (net.HardwareAddr, error)

	// Set publishes a resolved binding, waking every pending waiter for ip.
	Set(ip net.IP, mac net.HardwareAddr)
}

// Config carries the entry lifetimes; zero fields fall back to the defaults.
type Config struct {
	Retry      time.Duration `json:"retry"`
	Timeout    time.Duration `json:"timeout"`
	Stale      time.Duration `json:"stale"`
	Expiration time.Duration `json:"expiration"`
}

// withDefaults fills in defaults for unset fields.
func (c *Config) withDefaults() *Config {
	filled := &Config{
		Retry:      DefaultRetry,
		Timeout:    DefaultTimeout,
		Stale:      DefaultStale,
		Expiration: DefaultExpiration,
	}
	if c == nil {
		return filled
	}
	if c.Retry > 0 {
		filled.Retry = c.Retry
	}
	if c.Timeout > 0 {
		filled.Timeout = c.Timeout
	}
	if c.Stale > 0 {
		filled.Stale = c.Stale
	}
	if c.Expiration > 0 {
		filled.Expiration = c.Expiration
	}
	return filled
}
