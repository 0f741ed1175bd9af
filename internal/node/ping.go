// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

package node

import (
	"context"
	"time"
)

// PingTicker produces a sequence of ticks that drive a single driver's
// outbound Ping cadence (spec §4.3: "a pluggable, lazily-started tick
// source"). Subscribe is called at most once per driver's lifetime; the
// returned channel is closed once the sequence is exhausted (finite
// variants) or when ctx is cancelled.
type PingTicker interface {
	Subscribe(ctx context.Context) <-chan struct{}
}

// PeriodicPingTicker emits a tick every Period, forever, until its
// context is cancelled. This is the production ticker.
type PeriodicPingTicker struct {
	Period time.Duration
}

// Subscribe implements PingTicker.
func (p PeriodicPingTicker) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		t := time.NewTicker(p.Period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// FinitePingTicker emits exactly Count ticks, Period apart, then closes
// its channel. Used by tests that need a deterministic, bounded number
// of driver iterations instead of a real-time infinite cadence.
type FinitePingTicker struct {
	Period time.Duration
	Count  int
}

// Subscribe implements PingTicker.
func (f FinitePingTicker) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		t := time.NewTicker(f.Period)
		defer t.Stop()
		for i := 0; i < f.Count; i++ {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
