// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

package node

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Leonqn/p2p-console-app/internal/dialcache"
	"github.com/Leonqn/p2p-console-app/internal/meshmetrics"
	"github.com/Leonqn/p2p-console-app/internal/notify"
	"github.com/Leonqn/p2p-console-app/internal/peer"
	"github.com/Leonqn/p2p-console-app/internal/queue"
	"github.com/Leonqn/p2p-console-app/internal/registry"
	"github.com/Leonqn/p2p-console-app/internal/seen"
	"github.com/Leonqn/p2p-console-app/internal/wire"
)

// Config wires together the policy knobs an Engine needs.
type Config struct {
	Self           wire.Addr
	AskPeersPeriod time.Duration
	DialFailureTTL time.Duration
	SeenWindow     time.Duration
	TickerFactory  func() PingTicker
}

// Engine owns the listener and coordinates every driver's lifecycle: it
// is the top-level object spec §4.4 describes, wired here with
// errgroup instead of a hand-rolled wait group so a listener failure or
// a context cancellation unwinds every driver goroutine together.
type Engine struct {
	cfg      Config
	ln       net.Listener
	registry *registry.Registry
	askPeers *notify.Notify
	dialCache *dialcache.Cache
	seen     *seen.Throttle
	ready    *queue.Unbounded[*peer.Session]
	pings    *queue.Unbounded[PingEvent]
}

// NewEngine binds ln and builds an Engine ready to Run.
func NewEngine(ln net.Listener, cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		ln:        ln,
		registry:  registry.New(),
		askPeers:  notify.New(),
		dialCache: dialcache.New(cfg.DialFailureTTL),
		seen:      seen.New(cfg.SeenWindow),
		ready:     queue.New[*peer.Session](),
		pings:     queue.New[PingEvent](),
	}
}

// Pings exposes the engine's ping activity stream for a caller to drain
// (logged by default in cmd/meshnode).
func (e *Engine) Pings() *queue.Unbounded[PingEvent] { return e.pings }

// Registry exposes the live registry, e.g. for a GraphQL or metrics
// server to read a snapshot from.
func (e *Engine) Registry() *registry.Registry { return e.registry }

func (e *Engine) runner() *Runner {
	return &Runner{
		Self:      e.cfg.Self,
		Registry:  e.registry,
		AskPeers:  e.askPeers,
		Tickers:   e.cfg.TickerFactory,
		DialCache: e.dialCache,
		Seen:      e.seen,
		Ready:     e.ready,
		Pings:     e.pings,
	}
}

// Run starts the accept loop, the ready-session consumer, and the
// ask-peers ticker, and blocks until ctx is cancelled or any of them
// fails fatally. Only a listener Accept error is fatal to the whole
// Engine (spec §7); every other failure is scoped to the one affected
// driver.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		e.ready.Close()
		e.pings.Close()
		return e.ln.Close()
	})

	g.Go(func() error { return e.acceptLoop(ctx) })
	g.Go(func() error { e.consumeReady(ctx); return nil })
	g.Go(func() error { e.askPeersLoop(ctx); return nil })

	return g.Wait()
}

// Bootstrap dials addr once at startup and, on success, hands the
// resulting session into the same ready-session stream the listener
// and gossip fan-out use.
func (e *Engine) Bootstrap(ctx context.Context, addr wire.Addr) error {
	sess, err := peer.DialAndHandshake(ctx, addr, e.cfg.Self)
	if err != nil {
		return err
	}
	e.ready.Push(sess)
	return nil
}

func (e *Engine) acceptLoop(ctx context.Context) error {
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		go func() {
			sess, err := peer.AcceptAndHandshake(conn)
			if err != nil {
				log.WithField("r_addr", conn.RemoteAddr().String()).WithError(err).Warn("inbound handshake failed")
				return
			}
			e.ready.Push(sess)
		}()
	}
}

// consumeReady is the single point where a session is actually
// registered and handed a driver goroutine, whether it arrived via
// accept, bootstrap, or gossip fan-out dial.
func (e *Engine) consumeReady(ctx context.Context) {
	for {
		sess, ok := e.ready.Pop()
		if !ok {
			return
		}

		addr := sess.RemoteListenAddr()
		if !e.registry.Insert(addr) {
			log.WithField("r_addr", addr.String()).Info("dropping duplicate session for already-registered peer")
			sess.Close()
			continue
		}

		meshmetrics.ConnectedPeers.Set(float64(e.registry.Len()))
		r := e.runner()
		go func() {
			r.RunPeer(ctx, sess)
			meshmetrics.ConnectedPeers.Set(float64(e.registry.Len()))
		}()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (e *Engine) askPeersLoop(ctx context.Context) {
	t := time.NewTicker(e.cfg.AskPeersPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.askPeers.Signal()
		}
	}
}
