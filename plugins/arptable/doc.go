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

// Package arptable implements the asynchronous IP to MAC resolver of a
// single virtual router, backed by the ARP cache shared with the other
// agents of the cluster.
//
// Concurrent lookups for the same address coalesce onto one outstanding
// ARP request loop; the loop retries every Retry interval until the address
// resolves, the resolution times out, or another agent visibly takes over
// the retransmissions (cooperative lease on the lastArp field of the shared
// entry). Resolved bindings published by any agent wake every local waiter.
package arptable
