// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

// Package registry holds the process-wide set of remote listen
// addresses currently driven by a session (spec §4.3). It is the only
// piece of cross-task shared mutable state in the node, and is
// protected by a single sync.RWMutex the way the teacher's dupemap
// protects its filters.
package registry

import (
	"sync"

	"github.com/Leonqn/p2p-console-app/internal/wire"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	peers map[wire.Addr]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{peers: make(map[wire.Addr]struct{})}
}

// Insert registers addr as driven. It returns false, doing nothing, if
// addr is already present — the authoritative dedup check described in
// spec §4.3: exactly one driver may own a given address at a time.
func (r *Registry) Insert(addr wire.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[addr]; ok {
		return false
	}
	r.peers[addr] = struct{}{}
	return true
}

// Remove deregisters addr. Called exactly once per driver, from its
// scope-exit cleanup, regardless of how the driver terminated.
func (r *Registry) Remove(addr wire.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, addr)
}

// Contains reports whether addr is currently driven. The check is
// advisory when used ahead of a dial: see the race note in spec §4.3.
func (r *Registry) Contains(addr wire.Addr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[addr]
	return ok
}

// Snapshot returns the current set of driven addresses as a flat slice,
// taken under a reader lock.
func (r *Registry) Snapshot() []wire.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]wire.Addr, 0, len(r.peers))
	for a := range r.peers {
		out = append(out, a)
	}
	return out
}

// Len returns the number of currently driven addresses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
