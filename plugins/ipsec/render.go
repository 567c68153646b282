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
	"fmt"
	"regexp"
	"strings"
)

var nameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// sanitizeName strips every byte outside [A-Za-z0-9_] from a connection
// name so it is safe as an ipsec.conf section header.
func sanitizeName(name string) string {
	return nameSanitizer.ReplaceAllString(name, "")
}

const confPreamble = `config setup
    nat_traversal=yes
conn %default
    ikelifetime=480m
    keylife=60m
    keyingtries=%forever
`

// RenderSecrets produces the ipsec.secrets contents: one PSK line per
// admin-up connection.
func RenderSecrets(config *Config) string {
	var b strings.Builder
	for _, conn := range config.adminUpConnections() {
		fmt.Fprintf(&b, "%s %s : PSK \"%s\"\n",
			config.Service.LocalEndpointIP, conn.PeerAddress, conn.PSK)
	}
	return b.String()
}

// RenderConf produces the ipsec.conf contents: the fixed preamble followed
// by one conn block per admin-up connection, fields in the order the
// helper's pluto build expects.
func RenderConf(config *Config) string {
	var b strings.Builder
	b.WriteString(confPreamble)
	for _, conn := range config.adminUpConnections() {
		renderConn(&b, &config.Service, &conn)
	}
	return b.String()
}

func renderConn(b *strings.Builder, service *ServiceDef, conn *SiteConnection) {
	auto := "start"
	if conn.Initiator == ResponseOnly {
		auto = "add"
	}
	ikev2 := "never"
	if conn.Ike.Version == IkeV2 {
		ikev2 = "insist"
	}
	auth := string(conn.Ipsec.TransformProtocol)
	if auth == "" {
		auth = string(TransformEsp)
	}
	encap := string(conn.Ipsec.EncapsulationMode)
	if encap == "" {
		encap = string(EncapTunnel)
	}

	peerCIDRs := make([]string, 0, len(conn.PeerCIDRs))
	for _, cidr := range conn.PeerCIDRs {
		peerCIDRs = append(peerCIDRs, cidr.String())
	}

	fmt.Fprintf(b, "conn %s\n", sanitizeName(conn.Name))
	fmt.Fprintf(b, "    leftnexthop=%%defaultroute\n")
	fmt.Fprintf(b, "    rightnexthop=%%defaultroute\n")
	fmt.Fprintf(b, "    left=%s\n", service.LocalEndpointIP)
	fmt.Fprintf(b, "    leftid=%s\n", service.LocalEndpointIP)
	fmt.Fprintf(b, "    auto=%s\n", auto)
	fmt.Fprintf(b, "    leftsubnets={ %s }\n", conn.LocalCIDR)
	fmt.Fprintf(b, "    leftupdown=\"ipsec _updown --route yes\"\n")
	fmt.Fprintf(b, "    right=%s\n", conn.PeerAddress)
	fmt.Fprintf(b, "    rightid=%s\n", conn.PeerAddress)
	fmt.Fprintf(b, "    rightsubnets={ %s }\n", strings.Join(peerCIDRs, " "))
	fmt.Fprintf(b, "    mtu=%d\n", conn.MTU)
	fmt.Fprintf(b, "    dpdaction=%s\n", conn.DpdAction)
	fmt.Fprintf(b, "    dpddelay=%d\n", conn.DpdInterval)
	fmt.Fprintf(b, "    dpdtimeout=%d\n", conn.DpdTimeout)
	fmt.Fprintf(b, "    authby=secret\n")
	fmt.Fprintf(b, "    ikev2=%s\n", ikev2)
	fmt.Fprintf(b, "    ike=aes128-sha1;modp1536\n")
	fmt.Fprintf(b, "    ikelifetime=%ds\n", conn.Ike.LifetimeSeconds)
	fmt.Fprintf(b, "    auth=%s\n", auth)
	fmt.Fprintf(b, "    phase2alg=aes128-sha1;modp1536\n")
	fmt.Fprintf(b, "    type=%s\n", encap)
	fmt.Fprintf(b, "    lifetime=%ds\n", conn.Ipsec.LifetimeSeconds)
}
