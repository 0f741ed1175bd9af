// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

// Package seen throttles duplicate-peer log lines (spec §7): discovering
// an address that is already in the registry is not an error, but
// logging it at info on every single gossip round would flood the log
// for a busy mesh. A cuckoo filter gives a compact, fixed-memory,
// approximate "have I already logged this one recently" set, the same
// approach the teacher's dupemap uses for message dedup, adapted here
// from message hashes to peer addresses and given a single rolling
// window instead of one filter per consensus round.
package seen

import (
	"sync"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/Leonqn/p2p-console-app/internal/wire"
)

// DefaultCapacity is the approximate number of distinct addresses the
// filter can track before false positives become common.
const DefaultCapacity = 10000

// Throttle reports whether a duplicate-peer sighting should be logged.
type Throttle struct {
	mu      sync.Mutex
	filter  *cuckoo.Filter
	expire  time.Duration
	resetAt time.Time
}

// New builds a Throttle whose filter resets every window, bounding how
// long a "already logged" suppression lasts.
func New(window time.Duration) *Throttle {
	return &Throttle{
		filter:  cuckoo.NewFilter(DefaultCapacity),
		expire:  window,
		resetAt: time.Now().Add(window),
	}
}

// ShouldLog returns true the first time addr is seen within the current
// window, and false for repeats until the window rolls over.
func (t *Throttle) ShouldLog(addr wire.Addr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Now().After(t.resetAt) {
		t.filter.Reset()
		t.resetAt = time.Now().Add(t.expire)
	}

	key := []byte(addr.String())
	if t.filter.Lookup(key) {
		return false
	}
	t.filter.Insert(key)
	return true
}
