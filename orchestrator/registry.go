// Copyright 2025 DeskFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"errors"
	"sync"
	"time"
)

// ErrAgentNotFound is returned when an agent id is not in the current
// snapshot.
var ErrAgentNotFound = errors.New("agent not found")

// Snapshot is an immutable view of the registry at one point in time.
// Every request resolves against exactly one snapshot, so a reload
// mid-request can never mix old and new agent sets.
type Snapshot struct {
	agents     []AgentDescriptor
	index      map[string]int
	generation uint64
	loadedAt   time.Time
}

// Agents returns the agents in declaration order. Callers must not
// mutate the returned slice.
func (s *Snapshot) Agents() []AgentDescriptor { return s.agents }

// Get looks up an agent by id.
func (s *Snapshot) Get(id string) (AgentDescriptor, bool) {
	i, ok := s.index[id]
	if !ok {
		return AgentDescriptor{}, false
	}
	return s.agents[i], true
}

// Len returns the number of agents.
func (s *Snapshot) Len() int { return len(s.agents) }

// Generation is a counter incremented on every successful reload.
func (s *Snapshot) Generation() uint64 { return s.generation }

// LoadedAt is when this snapshot became current.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Registry holds the current agent set and supports atomic reload.
// Reads are lock-free apart from a brief RLock to fetch the snapshot
// pointer; requests then work entirely against that snapshot.
type Registry struct {
	mu       sync.RWMutex
	current  *Snapshot
	path     string
	reloads  uint64
	failures uint64
}

// NewRegistry loads the manifest at path and returns a registry
// serving it.
func NewRegistry(path string) (*Registry, error) {
	manifest, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return &Registry{
		current: newSnapshot(manifest.Spec.Agents, 1),
		path:    path,
	}, nil
}

// NewRegistryFromDescriptors builds a registry directly from agent
// descriptors. Used by tests and embedded setups that have no manifest
// file.
func NewRegistryFromDescriptors(agents []AgentDescriptor) *Registry {
	return &Registry{current: newSnapshot(agents, 1)}
}

func newSnapshot(agents []AgentDescriptor, generation uint64) *Snapshot {
	copied := make([]AgentDescriptor, len(agents))
	copy(copied, agents)
	index := make(map[string]int, len(copied))
	for i, a := range copied {
		index[a.ID] = i
	}
	return &Snapshot{
		agents:     copied,
		index:      index,
		generation: generation,
		loadedAt:   time.Now(),
	}
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload re-reads the manifest and atomically swaps in the new agent
// set. On any error the previous snapshot stays in service untouched.
func (r *Registry) Reload() (*Snapshot, error) {
	if r.path == "" {
		return nil, errors.New("registry was not loaded from a file")
	}

	manifest, err := LoadManifest(r.path)
	if err != nil {
		r.mu.Lock()
		r.failures++
		r.mu.Unlock()
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads++
	r.current = newSnapshot(manifest.Spec.Agents, r.current.generation+1)
	return r.current, nil
}

// RegistryStats summarizes registry state for health and admin
// endpoints.
type RegistryStats struct {
	Agents        int       `json:"agents"`
	Generation    uint64    `json:"generation"`
	LoadedAt      time.Time `json:"loaded_at"`
	Reloads       uint64    `json:"reloads"`
	FailedReloads uint64    `json:"failed_reloads"`
}

// Stats returns current registry statistics.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistryStats{
		Agents:        len(r.current.agents),
		Generation:    r.current.generation,
		LoadedAt:      r.current.loadedAt,
		Reloads:       r.reloads,
		FailedReloads: r.failures,
	}
}
