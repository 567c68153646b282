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

// Package vxgw keeps a virtual bridge's MAC and ARP tables mirrored across
// the hardware VTEPs bound to it through VxLAN ports.
//
// Each bridge participating in a VxLAN gateway gets one Manager. The manager
// watches the bridge for VxLAN port binding changes, attaches or detaches
// VTEP peers accordingly, and translates every local MAC-port and IP-MAC
// table change into MacLocation advertisements published on the gateway bus.
// Updates that move a MAC strictly between VTEPs are not republished; the
// peers carry those themselves.
package vxgw
