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

package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var childrenRunning = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "midonet",
	Subsystem: "supervisor",
	Name:      "children_running",
	Help:      "Number of supervised children currently running.",
})

func init() {
	prometheus.MustRegister(childrenRunning)
}

// DefaultReadyTimeout bounds the ready handshake of Start when the
// supervisor carries no explicit timeout.
const DefaultReadyTimeout = 10 * time.Second

// Child is one supervised component. Start must invoke ready once the child
// is able to serve; a child that neither calls ready nor returns an error
// within the supervisor's deadline failed to start. Returning nil from
// Start before calling ready is also a start failure.
type Child interface {
	Start(ctx context.Context, ready func()) error
	Stop(ctx context.Context) error
}

type childHandle struct {
	name  string
	child Child
}

// Supervisor starts named children and stops them in reverse start order.
type Supervisor struct {
	Log logging.Logger

	// ReadyTimeout bounds each child's ready handshake. Zero means
	// DefaultReadyTimeout.
	ReadyTimeout time.Duration

	mu       sync.Mutex
	children []*childHandle
}

// New creates an empty supervisor.
func New(log logging.Logger) *Supervisor {
	return &Supervisor{Log: log}
}

// Start registers the child under the given name and brings it up. The call
// returns once the child reports ready, or with an error when the child
// fails or the ready deadline elapses. Names must be unique among running
// children.
func (s *Supervisor) Start(ctx context.Context, name string, child Child) error {
	s.mu.Lock()
	if s.lookupLocked(name) != nil {
		s.mu.Unlock()
		return errors.Errorf("child %q is already registered", name)
	}
	handle := &childHandle{name: name, child: child}
	s.children = append(s.children, handle)
	s.mu.Unlock()

	readyCh := make(chan struct{})
	errCh := make(chan error, 1)
	var once sync.Once
	go func() {
		errCh <- child.Start(ctx, func() {
			once.Do(func() { close(readyCh) })
		})
	}()

	timeout := s.ReadyTimeout
	if timeout == 0 {
		timeout = DefaultReadyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-readyCh:
		s.watch(handle, errCh)
		childrenRunning.Inc()
		return nil
	case err := <-errCh:
		select {
		case <-readyCh:
			if err != nil {
				s.remove(name)
				return errors.Wrapf(err, "child %q failed right after start", name)
			}
			childrenRunning.Inc()
			return nil
		default:
		}
		s.remove(name)
		if err == nil {
			err = errors.New("returned without reporting ready")
		}
		return errors.Wrapf(err, "child %q failed to start", name)
	case <-timer.C:
		s.remove(name)
		return errors.Errorf("child %q did not report ready within %s", name, timeout)
	case <-ctx.Done():
		s.remove(name)
		return errors.Wrapf(ctx.Err(), "child %q start aborted", name)
	}
}

// watch logs a child's eventual failure without touching its siblings.
func (s *Supervisor) watch(handle *childHandle, errCh <-chan error) {
	go func() {
		if err := <-errCh; err != nil {
			s.Log.Errorf("Child %q failed: %v", handle.name, err)
		}
	}()
}

// Lookup resolves a running child by name, nil if there is none.
func (s *Supervisor) Lookup(name string) Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle := s.lookupLocked(name); handle != nil {
		return handle.child
	}
	return nil
}

// Names returns the names of the running children in start order.
func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.children))
	for _, handle := range s.children {
		names = append(names, handle.name)
	}
	return names
}

// Stop stops every child in reverse start order. A child's stop failure is
// logged and does not prevent stopping the remaining children; the first
// failure is returned.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	children := s.children
	s.children = nil
	s.mu.Unlock()

	var firstErr error
	for i := len(children) - 1; i >= 0; i-- {
		handle := children[i]
		if err := handle.child.Stop(ctx); err != nil {
			s.Log.Errorf("Child %q failed to stop: %v", handle.name, err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "child %q failed to stop", handle.name)
			}
		}
		childrenRunning.Dec()
	}
	return firstErr
}

// StopChild stops and deregisters the named child. Unknown names are a
// no-op.
func (s *Supervisor) StopChild(ctx context.Context, name string) error {
	s.mu.Lock()
	var handle *childHandle
	for i, candidate := range s.children {
		if candidate.name == name {
			handle = candidate
			s.children = append(s.children[:i], s.children[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if handle == nil {
		return nil
	}
	childrenRunning.Dec()
	if err := handle.child.Stop(ctx); err != nil {
		return errors.Wrapf(err, "child %q failed to stop", name)
	}
	return nil
}

func (s *Supervisor) lookupLocked(name string) *childHandle {
	for _, handle := range s.children {
		if handle.name == name {
			return handle
		}
	}
	return nil
}

func (s *Supervisor) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, handle := range s.children {
		if handle.name == name {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}
