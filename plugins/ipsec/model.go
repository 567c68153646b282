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

import "net"

// DpdAction selects the dead-peer-detection reaction.
type DpdAction string

// The dead-peer-detection actions Neutron defines.
const (
	DpdHold          DpdAction = "hold"
	DpdClear         DpdAction = "clear"
	DpdRestart       DpdAction = "restart"
	DpdRestartByPeer DpdAction = "restart-by-peer"
	DpdDisabled      DpdAction = "disabled"
)

// Initiator selects who may initiate the connection.
type Initiator string

// The initiator modes Neutron defines.
const (
	BiDirectional Initiator = "bi-directional"
	ResponseOnly  Initiator = "response-only"
)

// IkeVersion is the IKE protocol version of a policy.
type IkeVersion int

// Supported IKE versions.
const (
	IkeV1 IkeVersion = 1
	IkeV2 IkeVersion = 2
)

// TransformProtocol is the IPsec transform protocol of a policy.
type TransformProtocol string

// Supported transform protocols.
const (
	TransformEsp   TransformProtocol = "esp"
	TransformAhEsp TransformProtocol = "ah-esp"
)

// EncapsulationMode is the IPsec encapsulation mode of a policy.
type EncapsulationMode string

// Supported encapsulation modes.
const (
	EncapTunnel    EncapsulationMode = "tunnel"
	EncapTransport EncapsulationMode = "transport"
)

// IkePolicy carries the IKE phase-1 parameters of a connection.
type IkePolicy struct {
	Version         IkeVersion
	LifetimeSeconds int
}

// IpsecPolicy carries the IPsec phase-2 parameters of a connection.
type IpsecPolicy struct {
	TransformProtocol TransformProtocol
	EncapsulationMode EncapsulationMode
	LifetimeSeconds   int
}

// SiteConnection is one IPsec site-to-site connection of a VPN service.
type SiteConnection struct {
	Name         string
	AdminStateUp bool
	PeerAddress  net.IP
	PSK          string
	LocalCIDR    *net.IPNet
	PeerCIDRs    []*net.IPNet
	MTU          int
	DpdAction    DpdAction
	DpdInterval  int
	DpdTimeout   int
	Initiator    Initiator
	Ike          IkePolicy
	Ipsec        IpsecPolicy
}

// ServiceDef describes the VPN service endpoint and the network namespace
// the helper builds for it.
type ServiceDef struct {
	Name     string
	FilePath string

	LocalEndpointIP  net.IP
	LocalEndpointMAC net.HardwareAddr

	// NamespaceInterfaceIP is the address plus subnet of the interface
	// inside the service namespace.
	NamespaceInterfaceIP *net.IPNet
	NamespaceGatewayIP   net.IP
	NamespaceGatewayMAC  net.HardwareAddr
}

// Config is the fully resolved input of one container setup: the service
// plus its ordered connections.
type Config struct {
	AdminStateUp bool
	Service      ServiceDef
	Connections  []SiteConnection
}

// adminUpConnections filters the connections to the administratively
// enabled ones, preserving order.
func (c *Config) adminUpConnections() []SiteConnection {
	var up []SiteConnection
	for _, conn := range c.Connections {
		if conn.AdminStateUp {
			up = append(up, conn)
		}
	}
	return up
}

// IsEmpty tells whether there is anything to set up.
func (c *Config) IsEmpty() bool {
	return c == nil || len(c.adminUpConnections()) == 0
}

// HealthCode is the coarse container state reported upward.
type HealthCode string

// The container health codes.
const (
	HealthRunning  HealthCode = "RUNNING"
	HealthStopping HealthCode = "STOPPING"
	HealthStopped  HealthCode = "STOPPED"
	HealthError    HealthCode = "ERROR"
)

// ContainerHealth is the health descriptor published by the container.
type ContainerHealth struct {
	Code        HealthCode
	Description string
}
