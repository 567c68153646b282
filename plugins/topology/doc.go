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

// Package topology defines the virtual-topology model consumed by the
// packet-processing pipeline and by the VxLAN gateway manager: router ports,
// VxLAN ports and bridges, together with the resolver contracts through which
// the agent reads them from the topology cache. The cache itself lives
// outside of this repository; the interfaces here allow mock injection in
// unit tests.
package topology
