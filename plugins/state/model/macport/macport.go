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

package macport

import (
	"github.com/gogo/protobuf/proto"
)

// Binding is the wire form of one MAC to port binding of a bridge's
// forwarding table as stored in the shared key-value store.
type Binding struct {
	Mac    string `protobuf:"bytes,1,opt,name=mac,proto3" json:"mac,omitempty"`
	PortId string `protobuf:"bytes,2,opt,name=port_id,json=portId,proto3" json:"port_id,omitempty"`
}

// Reset implements the proto.Message interface.
func (m *Binding) Reset() { *m = Binding{} }

// String implements the proto.Message interface.
func (m *Binding) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements the proto.Message interface.
func (*Binding) ProtoMessage() {}
