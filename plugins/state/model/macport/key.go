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
	"fmt"
	"strings"
)

const (
	// Keyword identifies MAC-port binding data in the store.
	Keyword = "mac-port"

	// prefix common to all agent state.
	statePrefix = "midonet/v1/"
)

// KeyPrefix returns the key prefix under which the forwarding table of the
// given bridge is stored.
func KeyPrefix(bridgeID string) string {
	return statePrefix + Keyword + "/" + bridgeID + "/"
}

// Key returns the key under which the binding for the given MAC is stored.
func Key(bridgeID string, mac string) string {
	return KeyPrefix(bridgeID) + mac
}

// ParseMACFromKey extracts the MAC address component from a binding key.
func ParseMACFromKey(key string) (mac string, err error) {
	keywords := strings.Split(strings.TrimPrefix(key, statePrefix), "/")
	if len(keywords) == 3 && keywords[0] == Keyword {
		return keywords[2], nil
	}
	return "", fmt.Errorf("invalid format of the key %s", key)
}
