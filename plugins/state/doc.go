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

// Package state provides the replicated maps shared by all agents of the
// cluster: the per-router ARP cache, the per-bridge MAC to port forwarding
// table and the per-bridge IP to MAC (ARP suppression) table.
//
// Two families of implementations are provided:
//   - in-memory maps, used by unit tests and by single-node deployments,
//   - maps mirrored through a key-value store (by default etcd), where every
//     mutation is written through to the store and remote mutations arrive
//     via watch notifications.
//
// Watch callbacks run on the store notification goroutine and must only
// enqueue work. All watcher-derived publications are idempotent under
// replay so that a reconnection-triggered resync cannot corrupt consumers.
package state
