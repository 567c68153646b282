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
	"fmt"
	"strings"
)

const (
	// Keyword identifies ARP cache data in the store.
	Keyword = "arp"

	// prefix common to all agent state.
	statePrefix = "midonet/v1/"
)

// KeyPrefix returns the key prefix under which the ARP cache of the given
// device is stored.
func KeyPrefix(deviceID string) string {
	return statePrefix + Keyword + "/" + deviceID + "/"
}

// Key returns the key under which the ARP entry for the given IP is stored.
func Key(deviceID string, ip string) string {
	return KeyPrefix(deviceID) + ip
}

// ParseIPFromKey extracts the IP address component from an ARP entry key.
func ParseIPFromKey(key string) (ip string, err error) {
	keywords := strings.Split(strings.TrimPrefix(key, statePrefix), "/")
	if len(keywords) == 3 && keywords[0] == Keyword {
		return keywords[2], nil
	}
	return "", fmt.Errorf("invalid format of the key %s", key)
}
