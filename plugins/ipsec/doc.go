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

// Package ipsec orchestrates the lifecycle of a site-to-site IPsec VPN
// container: it renders ipsec.conf and ipsec.secrets from the typed service
// model and drives the external vpn-helper program through a strictly
// ordered create/update/delete sequence with compensating cleanup on
// failure. Topology changes to the VPN service or its connections trigger a
// teardown-and-rebuild.
package ipsec
