// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

// Package peer implements the handshake and framed message exchange for
// a single peer connection (spec §4.2). A Session owns the net.Conn and
// exposes the remote listen address learned during the handshake.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Leonqn/p2p-console-app/internal/wire"
)

var log = logrus.WithField("prefix", "peer")

// ErrBadHello is returned when an inbound connection's first frame is
// not a Connected message.
var ErrBadHello = errors.New("peer: bad hello")

// ErrUnexpectedMessage is returned by ReadMessage when the peer sends a
// Connect or Connected message after the handshake has completed.
var ErrUnexpectedMessage = errors.New("peer: unexpected message")

// dialTimeout bounds the TCP handshake of an outbound connection.
const dialTimeout = 5 * time.Second

// Session wraps an established, handshaken connection to a remote peer.
type Session struct {
	conn         net.Conn
	dec          *wire.Decoder
	enc          *wire.Writer
	remoteListen wire.Addr
}

// DialAndHandshake dials addr and performs the outbound handshake: send
// Connected(self) immediately, per spec §4.2. The remote's listen
// address is not learned this way — outbound sessions already know it,
// since addr is how they found the peer.
func DialAndHandshake(ctx context.Context, addr wire.Addr, self wire.Addr) (*Session, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s: %w", addr, err)
	}

	s := newSession(conn, addr)
	if err := s.enc.WriteMessage(wire.Connected{Addr: self}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("peer: send hello to %s: %w", addr, err)
	}

	log.WithField("r_addr", addr.String()).WithField("dir", "outbound").Info("peer session established")
	return s, nil
}

// AcceptAndHandshake completes the inbound side of a handshake over an
// already-accepted conn: the first frame received must be Connected,
// carrying the remote's own listen address (spec §4.2). Any other first
// message, or a framing error, fails with ErrBadHello.
func AcceptAndHandshake(conn net.Conn) (*Session, error) {
	s := newSession(conn, wire.Addr{})

	msg, err := s.dec.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadHello, err)
	}

	connected, ok := msg.(wire.Connected)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: got %T", ErrBadHello, msg)
	}

	s.remoteListen = connected.Addr
	log.WithField("r_addr", connected.Addr.String()).WithField("dir", "inbound").Info("peer session established")
	return s, nil
}

func newSession(conn net.Conn, remoteListen wire.Addr) *Session {
	return &Session{
		conn:         conn,
		dec:          wire.NewDecoder(conn),
		enc:          wire.NewWriter(conn),
		remoteListen: remoteListen,
	}
}

// RemoteListenAddr is the address this peer accepts inbound connections
// on, as learned from the handshake. For outbound sessions it is the
// dialed address; for inbound sessions it is whatever the remote
// claimed in its Connected hello.
func (s *Session) RemoteListenAddr() wire.Addr {
	return s.remoteListen
}

// ReadMessage blocks until the next application message is decoded. A
// Connect or Connected frame fails the read with ErrUnexpectedMessage.
func (s *Session) ReadMessage() (wire.Message, error) {
	msg, err := s.dec.ReadMessage()
	if err != nil {
		return nil, err
	}
	switch msg.(type) {
	case wire.Connect, wire.Connected:
		return nil, fmt.Errorf("%w: got %T", ErrUnexpectedMessage, msg)
	}
	return msg, nil
}

// WriteMessage sends msg, flushing it to the transport before returning.
func (s *Session) WriteMessage(msg wire.Message) error {
	return s.enc.WriteMessage(msg)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
