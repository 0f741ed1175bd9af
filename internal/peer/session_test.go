// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

package peer

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leonqn/p2p-console-app/internal/wire"
)

func listenAddr(t *testing.T, ln net.Listener) wire.Addr {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return wire.Addr{IP: [4]byte{127, 0, 0, 1}, Port: uint16(port)}
}

// TestHandshakeContract exercises spec §8 property 3: the outbound side
// must send Connected(self) first, and the inbound side must observe it
// as its very first frame and learn the dialer's claimed listen address.
func TestHandshakeContract(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	self := wire.Addr{IP: [4]byte{10, 1, 2, 3}, Port: 4242}
	serverAddr := listenAddr(t, ln)

	accepted := make(chan *Session, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		s, err := AcceptAndHandshake(conn)
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- s
	}()

	client, err := DialAndHandshake(context.Background(), serverAddr, self)
	require.NoError(t, err)
	defer client.Close()

	select {
	case s := <-accepted:
		defer s.Close()
		assert.Equal(t, self, s.RemoteListenAddr())
	case err := <-acceptErr:
		t.Fatalf("accept side failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound handshake")
	}
}

// TestAcceptAndHandshakeRejectsNonHello ensures any message other than
// Connected as the first inbound frame fails with ErrBadHello.
func TestAcceptAndHandshakeRejectsNonHello(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	result := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			result <- err
			return
		}
		_, err = AcceptAndHandshake(conn)
		result <- err
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.NewWriter(conn).WriteMessage(wire.GetPeersRequest{}))

	select {
	case err := <-result:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBadHello)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestAcceptAndHandshakeRejectsClosedConn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	result := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			result <- err
			return
		}
		_, err = AcceptAndHandshake(conn)
		result <- err
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrBadHello)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestReadWriteMessageAfterHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	self := wire.Addr{IP: [4]byte{1, 1, 1, 1}, Port: 1}
	serverAddr := listenAddr(t, ln)

	accepted := make(chan *Session, 1)
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		s, err := AcceptAndHandshake(conn)
		require.NoError(t, err)
		accepted <- s
	}()

	client, err := DialAndHandshake(context.Background(), serverAddr, self)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, client.WriteMessage(wire.Ping{Text: "hi"}))
	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.Ping{Text: "hi"}, msg)
}
