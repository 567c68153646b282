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

package arp

import (
	"github.com/gogo/protobuf/proto"
)

// Entry is the wire form of a single ARP cache entry as stored in the
// shared key-value store. Timestamps are UNIX nanoseconds; Mac is the
// canonical colon-separated form, empty while a resolution is in flight.
type Entry struct {
	Mac     string `protobuf:"bytes,1,opt,name=mac,proto3" json:"mac,omitempty"`
	Expiry  int64  `protobuf:"varint,2,opt,name=expiry,proto3" json:"expiry,omitempty"`
	Stale   int64  `protobuf:"varint,3,opt,name=stale,proto3" json:"stale,omitempty"`
	LastArp int64  `protobuf:"varint,4,opt,name=last_arp,json=lastArp,proto3" json:"last_arp,omitempty"`
}

// Reset implements the proto.Message interface.
func (m *Entry) Reset() { *m = Entry{} }

// String implements the proto.Message interface.
func (m *Entry) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements the proto.Message interface.
func (*Entry) ProtoMessage() {}
