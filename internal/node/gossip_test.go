// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

package node

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Leonqn/p2p-console-app/internal/peer"
	"github.com/Leonqn/p2p-console-app/internal/wire"
)

// TestGossipReachesWholeChain is the spec §8 reachability scenario,
// scaled down from its ten-node form: a chain of three nodes, each only
// knowing its neighbor at startup, ends up with every node registering
// every other node once ask-peers gossip has had time to run. It needs
// real TCP sockets and real time, so it is skipped under -short.
func TestGossipReachesWholeChain(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real TCP and real time")
	}

	const n = 3
	engines := make([]*Engine, n)
	cancels := make([]context.CancelFunc, n)
	addrs := make([]wire.Addr, n)

	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		_, portStr, err := net.SplitHostPort(ln.Addr().String())
		require.NoError(t, err)
		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		self := wire.Addr{IP: [4]byte{127, 0, 0, 1}, Port: uint16(port)}
		addrs[i] = self

		e := NewEngine(ln, Config{
			Self:           self,
			AskPeersPeriod: 50 * time.Millisecond,
			DialFailureTTL: time.Second,
			SeenWindow:     time.Minute,
			TickerFactory:  func() PingTicker { return FinitePingTicker{Period: time.Hour, Count: 0} },
		})
		ctx, cancel := context.WithCancel(context.Background())
		go e.Run(ctx)
		engines[i] = e
		cancels[i] = cancel
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	// Chain: i bootstraps to i+1.
	for i := 0; i < n-1; i++ {
		sess, err := peer.DialAndHandshake(context.Background(), addrs[i+1], addrs[i])
		require.NoError(t, err)
		engines[i].ready.Push(sess)
	}

	eventually(t, 5*time.Second, func() bool {
		for i := 0; i < n; i++ {
			if engines[i].Registry().Len() != n-1 {
				return false
			}
		}
		return true
	})
}
