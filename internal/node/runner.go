// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

// Package node implements the peer driver loop and listener that
// together form the running mesh node (spec §4.3, §4.4).
package node

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Leonqn/p2p-console-app/internal/dialcache"
	"github.com/Leonqn/p2p-console-app/internal/meshmetrics"
	"github.com/Leonqn/p2p-console-app/internal/notify"
	"github.com/Leonqn/p2p-console-app/internal/peer"
	"github.com/Leonqn/p2p-console-app/internal/queue"
	"github.com/Leonqn/p2p-console-app/internal/registry"
	"github.com/Leonqn/p2p-console-app/internal/seen"
	"github.com/Leonqn/p2p-console-app/internal/wire"
)

var log = logrus.WithField("prefix", "node")

// ErrUnexpectedPostHandshake is returned when a peer sends a Connect or
// Connected message after the handshake has already completed.
var ErrUnexpectedPostHandshake = errors.New("node: unexpected message after handshake")

// PingEvent is pushed to the Runner's pings sink every time a Ping is
// exchanged with a peer, in either direction. It is the Go rendering of
// the tokio original's unbounded pings channel (spec §5): a cheap,
// decoupled record of activity a caller can drain however it likes —
// logged, counted, or ignored.
type PingEvent struct {
	Peer     wire.Addr
	Outbound bool
	Text     string
}

// Runner drives a single peer connection's message loop for its entire
// lifetime: reading inbound frames, replying to gossip requests,
// fanning out newly-discovered addresses, and emitting its own Pings on
// an independently-ticking schedule.
type Runner struct {
	Self      wire.Addr
	Registry  *registry.Registry
	AskPeers  *notify.Notify
	Tickers   func() PingTicker
	DialCache *dialcache.Cache
	Seen      *seen.Throttle

	// Ready receives sessions for newly-dialed peers discovered via
	// gossip, the same destination the listener feeds accepted
	// sessions into (spec §4.3: gossip fan-out joins the listener's
	// own ready-session stream rather than touching the registry
	// directly).
	Ready *queue.Unbounded[*peer.Session]
	Pings *queue.Unbounded[PingEvent]
}

// RunPeer drives sess until it errors out or ctx is cancelled. The
// caller must have already Inserted sess's RemoteListenAddr into the
// Registry; RunPeer removes it on every exit path via defer, mirroring
// the scope-exit guarantee the original gave via Drop.
func (r *Runner) RunPeer(ctx context.Context, sess *peer.Session) {
	addr := sess.RemoteListenAddr()
	entry := log.WithField("r_addr", addr.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		r.Registry.Remove(addr)
		sess.Close()
		entry.Info("peer driver exited")
	}()

	inbound := readPump(sess)
	ticker := r.Tickers().Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if msg.err != nil {
				entry.WithError(msg.err).Warn("session read failed")
				return
			}
			if err := r.handleMessage(ctx, sess, addr, msg.msg); err != nil {
				entry.WithError(err).Warn("failed to handle message")
				return
			}

		case <-r.AskPeers.C():
			if err := sess.WriteMessage(wire.GetPeersRequest{}); err != nil {
				entry.WithError(err).Warn("failed to send GetPeersRequest")
				return
			}

		case _, ok := <-ticker:
			if !ok {
				// Exhausted (finite test tickers) or cancelled: stop
				// selecting on it. A nil channel blocks forever in a
				// select, so the driver simply keeps running on its
				// remaining two sources.
				ticker = nil
				continue
			}
			if err := sess.WriteMessage(wire.Ping{Text: "ping"}); err != nil {
				entry.WithError(err).Warn("failed to send ping")
				return
			}
			meshmetrics.PingsSent.Inc()
			r.Pings.Push(PingEvent{Peer: addr, Outbound: true, Text: "ping"})
		}
	}
}

func (r *Runner) handleMessage(ctx context.Context, sess *peer.Session, addr wire.Addr, msg wire.Message) error {
	switch m := msg.(type) {
	case wire.GetPeersRequest:
		snap := r.Registry.Snapshot()
		snap = append(snap, r.Self)
		return sess.WriteMessage(wire.GetPeersResponse{Addrs: snap})

	case wire.Ping:
		meshmetrics.PingsReceived.Inc()
		r.Pings.Push(PingEvent{Peer: addr, Outbound: false, Text: m.Text})
		return nil

	case wire.GetPeersResponse:
		r.handleGossip(ctx, m.Addrs)
		return nil

	case wire.Connected, wire.Connect:
		return ErrUnexpectedPostHandshake

	default:
		return nil
	}
}

// handleGossip spawns one outbound dial per newly-learned address,
// skipping self, already-registered peers, and addresses that recently
// failed to dial. Each successful dial's session is handed to Ready,
// the same channel the listener populates, rather than inserted into
// the Registry directly — insertion happens once, at the point the
// session is actually consumed (spec §4.3).
func (r *Runner) handleGossip(ctx context.Context, addrs []wire.Addr) {
	for _, a := range addrs {
		if a == r.Self {
			continue
		}
		if r.Registry.Contains(a) {
			if r.Seen.ShouldLog(a) {
				log.WithField("r_addr", a.String()).Info("gossip named an already-known peer")
			}
			meshmetrics.DuplicatePeerSightings.Inc()
			continue
		}
		if r.DialCache.ShouldSkip(a) {
			continue
		}

		a := a
		go r.dialAndSubmit(ctx, a)
	}
}

func (r *Runner) dialAndSubmit(ctx context.Context, addr wire.Addr) {
	sess, err := peer.DialAndHandshake(ctx, addr, r.Self)
	if err != nil {
		log.WithField("r_addr", addr.String()).WithError(err).Info("gossip dial failed")
		r.DialCache.MarkFailed(addr)
		meshmetrics.DialAttempts.WithLabelValues("failed").Inc()
		return
	}
	meshmetrics.DialAttempts.WithLabelValues("ok").Inc()
	r.Ready.Push(sess)
}

type inboundMsg struct {
	msg wire.Message
	err error
}

// readPump runs sess's blocking ReadMessage in its own goroutine so the
// driver loop can select over it alongside the notifier and ticker,
// neither of which can be combined with a blocking read any other way.
func readPump(sess *peer.Session) <-chan inboundMsg {
	out := make(chan inboundMsg)
	go func() {
		defer close(out)
		for {
			msg, err := sess.ReadMessage()
			out <- inboundMsg{msg: msg, err: err}
			if err != nil {
				return
			}
		}
	}()
	return out
}
