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

// Package router simulates the packet-processing pipeline of a virtual L3
// router: ingress validation, ARP and ICMP echo handling, TTL accounting,
// longest-prefix-match routing and next-hop MAC resolution through the ARP
// table. The outcome of each packet is an Action consumed by the datapath.
//
// ICMP errors follow RFC 1812: Time Exceeded on TTL expiry, Destination
// Unreachable variants on routing failures, all subject to the section
// 4.3.2.7 suppression rules.
package router
