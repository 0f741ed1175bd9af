// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

// Package dialcache throttles repeated outbound dial attempts against an
// address that has recently failed to connect. It exists to keep a
// noisy, unreachable peer surfaced in gossip responses from making the
// node hammer it on every "ask peers" round; a dial is skipped while a
// prior failure for the same address is still within its cache window.
package dialcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Leonqn/p2p-console-app/internal/wire"
)

// DefaultCapacity bounds the number of distinct failed addresses tracked
// at once; the oldest entry is evicted once the cache is full.
const DefaultCapacity = 4096

// Cache remembers addresses that recently failed to dial.
type Cache struct {
	window time.Duration
	lru    *lru.Cache
}

// New builds a Cache that suppresses re-dials for window after a
// failure. A zero or negative window disables suppression entirely.
func New(window time.Duration) *Cache {
	c, err := lru.New(DefaultCapacity)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// DefaultCapacity never is.
		panic(err)
	}
	return &Cache{window: window, lru: c}
}

// MarkFailed records addr as having just failed to dial.
func (c *Cache) MarkFailed(addr wire.Addr) {
	c.lru.Add(addr, time.Now())
}

// ShouldSkip reports whether addr failed recently enough that the
// caller should skip dialing it again.
func (c *Cache) ShouldSkip(addr wire.Addr) bool {
	if c.window <= 0 {
		return false
	}
	v, ok := c.lru.Get(addr)
	if !ok {
		return false
	}
	return time.Since(v.(time.Time)) < c.window
}
