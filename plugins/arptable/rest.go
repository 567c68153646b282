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

package arptable

import (
	"net/http"
	"sort"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/unrolled/render"

	"github.com/midonet/agent/plugins/state"
)

// ArpCacheURL is the REST endpoint listing the shared ARP cache contents.
const ArpCacheURL = "/midonet/v1/arp"

type arpEntryData struct {
	IP      string    `json:"ip"`
	MAC     string    `json:"mac,omitempty"`
	Expiry  time.Time `json:"expiry"`
	Stale   time.Time `json:"stale"`
	LastArp time.Time `json:"lastArp"`
}

// RegisterHandlers exposes the given ARP cache over the HTTP handlers, a
// no-op when none are provided.
func RegisterHandlers(log logging.Logger, http rest.HTTPHandlers, cache state.ArpCache) {
	if http == nil {
		log.Warnf("No HTTP handlers provided, skipping registration of ARP REST handlers")
		return
	}
	http.RegisterHTTPHandler(ArpCacheURL, arpCacheGetHandler(cache), "GET")
	log.Infof("ARP REST handler registered: GET %v", ArpCacheURL)
}

func arpCacheGetHandler(cache state.ArpCache) func(*render.Render) http.HandlerFunc {
	return func(formatter *render.Render) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			entries := cache.List()
			data := make([]arpEntryData, 0, len(entries))
			for ip, entry := range entries {
				item := arpEntryData{
					IP:      ip,
					Expiry:  entry.Expiry,
					Stale:   entry.Stale,
					LastArp: entry.LastArp,
				}
				if entry.MAC != nil {
					item.MAC = entry.MAC.String()
				}
				data = append(data, item)
			}
			sort.Slice(data, func(i, j int) bool { return data[i].IP < data[j].IP })
			formatter.JSON(w, http.StatusOK, data)
		}
	}
}
