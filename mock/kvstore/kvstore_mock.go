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

// Package kvstore provides an in-memory stand-in for the shared proto
// key-value store. It serves both as broker and watcher: every mutation,
// whether performed through the broker or injected to simulate another
// agent, is delivered to the registered watch callbacks.
package kvstore

import (
	"strings"
	"sync"

	"github.com/ligato/cn-infra/datasync"
	"github.com/ligato/cn-infra/db/keyval"

	gogoproto "github.com/gogo/protobuf/proto"
)

// MockKVStore implements keyval.ProtoBroker and keyval.ProtoWatcher over a
// plain map. Values are held in their wire form so that both protobuf
// runtimes can decode them.
type MockKVStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	revs     map[string]int64
	watchers []*watchReg
}

type watchReg struct {
	callback func(datasync.ProtoWatchResp)
	closeCh  chan string
	prefixes []string
}

// NewMockKVStore creates an empty store.
func NewMockKVStore() *MockKVStore {
	return &MockKVStore{
		data: make(map[string][]byte),
		revs: make(map[string]int64),
	}
}

// Put stores the marshaled value and notifies the watchers.
func (s *MockKVStore) Put(key string, data gogoproto.Message, opts ...datasync.PutOption) error {
	wire, err := gogoproto.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = wire
	s.revs[key]++
	rev := s.revs[key]
	s.mu.Unlock()
	s.notify(&mockWatchResp{op: datasync.Put, key: key, wire: wire, rev: rev})
	return nil
}

// Delete removes the value and notifies the watchers.
func (s *MockKVStore) Delete(key string, opts ...datasync.DelOption) (bool, error) {
	s.mu.Lock()
	wire, found := s.data[key]
	delete(s.data, key)
	rev := s.revs[key]
	s.mu.Unlock()
	if found {
		s.notify(&mockWatchResp{op: datasync.Delete, key: key, wire: wire, rev: rev})
	}
	return found, nil
}

// GetValue unmarshals the stored value into reqObj.
func (s *MockKVStore) GetValue(key string, reqObj gogoproto.Message) (bool, int64, error) {
	s.mu.Lock()
	wire, found := s.data[key]
	rev := s.revs[key]
	s.mu.Unlock()
	if !found {
		return false, 0, nil
	}
	return true, rev, gogoproto.Unmarshal(wire, reqObj)
}

// ListValues iterates over the values stored under the prefix.
func (s *MockKVStore) ListValues(prefix string) (keyval.ProtoKeyValIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := &mockIterator{}
	for key, wire := range s.data {
		if strings.HasPrefix(key, prefix) {
			it.items = append(it.items, &mockKeyVal{
				key: key, wire: wire, rev: s.revs[key],
			})
		}
	}
	return it, nil
}

// ListKeys iterates over the keys stored under the prefix.
func (s *MockKVStore) ListKeys(prefix string) (keyval.ProtoKeyIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := &mockKeyIterator{revs: make(map[string]int64)}
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			it.keys = append(it.keys, key)
			it.revs[key] = s.revs[key]
		}
	}
	return it, nil
}

// NewTxn is not supported by the mock.
func (s *MockKVStore) NewTxn() keyval.ProtoTxn {
	return nil
}

// Watch registers a callback for changes under the given key prefixes.
// Delivery stops once closeChan is closed.
func (s *MockKVStore) Watch(callback func(datasync.ProtoWatchResp),
	closeChan chan string, keys ...string) error {

	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, &watchReg{
		callback: callback,
		closeCh:  closeChan,
		prefixes: keys,
	})
	return nil
}

func (s *MockKVStore) notify(resp *mockWatchResp) {
	s.mu.Lock()
	watchers := append([]*watchReg(nil), s.watchers...)
	s.mu.Unlock()
	for _, w := range watchers {
		if w.closed() || !w.matches(resp.key) {
			continue
		}
		w.callback(resp)
	}
}

func (w *watchReg) closed() bool {
	if w.closeCh == nil {
		return false
	}
	select {
	case <-w.closeCh:
		return true
	default:
		return false
	}
}

func (w *watchReg) matches(key string) bool {
	for _, prefix := range w.prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return len(w.prefixes) == 0
}

// mockWatchResp implements datasync.ProtoWatchResp.
type mockWatchResp struct {
	op   datasync.Op
	key  string
	wire []byte
	rev  int64
}

func (r *mockWatchResp) GetChangeType() datasync.Op { return r.op }
func (r *mockWatchResp) GetKey() string             { return r.key }
func (r *mockWatchResp) GetRevision() int64         { return r.rev }

func (r *mockWatchResp) GetValue(out gogoproto.Message) error {
	return gogoproto.Unmarshal(r.wire, out)
}

func (r *mockWatchResp) GetPrevValue(out gogoproto.Message) (bool, error) {
	return false, nil
}

// mockKeyVal implements keyval.ProtoKeyVal.
type mockKeyVal struct {
	key  string
	wire []byte
	rev  int64
}

func (kv *mockKeyVal) GetKey() string     { return kv.key }
func (kv *mockKeyVal) GetRevision() int64 { return kv.rev }

func (kv *mockKeyVal) GetValue(out gogoproto.Message) error {
	return gogoproto.Unmarshal(kv.wire, out)
}

func (kv *mockKeyVal) GetPrevValue(out gogoproto.Message) (bool, error) {
	return false, nil
}

type mockIterator struct {
	items []*mockKeyVal
	index int
}

func (it *mockIterator) GetNext() (keyval.ProtoKeyVal, bool) {
	if it.index >= len(it.items) {
		return nil, true
	}
	kv := it.items[it.index]
	it.index++
	return kv, false
}

func (it *mockIterator) Close() error { return nil }

type mockKeyIterator struct {
	keys  []string
	revs  map[string]int64
	index int
}

func (it *mockKeyIterator) GetNext() (string, int64, bool) {
	if it.index >= len(it.keys) {
		return "", 0, true
	}
	key := it.keys[it.index]
	it.index++
	return key, it.revs[key], false
}

func (it *mockKeyIterator) Close() error { return nil }
