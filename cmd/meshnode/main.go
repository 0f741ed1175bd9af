// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/Leonqn/p2p-console-app/internal/gql"
	"github.com/Leonqn/p2p-console-app/internal/meshmetrics"
	"github.com/Leonqn/p2p-console-app/internal/node"
	"github.com/Leonqn/p2p-console-app/internal/wire"
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {})); err != nil {
		log.WithError(err).Warn("could not set GOMAXPROCS")
	}

	app := &cli.App{
		Name:  "meshnode",
		Usage: "run a gossip overlay mesh node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional config file (yaml/toml/json)"},
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1:0", Usage: "address to listen on"},
			&cli.StringFlag{Name: "connect", Usage: "address of an existing peer to bootstrap from"},
			&cli.DurationFlag{Name: "ping-period", Value: 15 * time.Second, Usage: "interval between Pings sent to each peer"},
			&cli.DurationFlag{Name: "ask-peers-interval", Value: 10 * time.Second, Usage: "interval between ask-peers gossip rounds"},
			&cli.DurationFlag{Name: "dial-failure-ttl", Value: time.Minute, Usage: "how long a failed dial suppresses re-dialing the same address"},
			&cli.DurationFlag{Name: "seen-window", Value: 5 * time.Minute, Usage: "how long a duplicate-peer log suppression window lasts"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "logrus level: trace, debug, info, warn, error"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "optional bind address for /metrics and /graphql"},
		},
		Before: loadConfigFile,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("meshnode exited with error")
	}
}

// loadConfigFile lets --config point at a viper-readable file whose
// keys match the flag names. It only fills in flags the user did not set
// on the command line; an explicit CLI flag always wins over the file.
func loadConfigFile(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("meshnode: reading config %s: %w", path, err)
	}

	for _, name := range []string{"bind", "connect", "ping-period", "ask-peers-interval",
		"dial-failure-ttl", "seen-window", "log-level", "metrics-addr"} {
		if c.IsSet(name) || !viper.IsSet(name) {
			continue
		}
		if err := c.Set(name, viper.GetString(name)); err != nil {
			return fmt.Errorf("meshnode: applying config key %q: %w", name, err)
		}
	}
	return nil
}

func run(c *cli.Context) error {
	level, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("meshnode: %w", err)
	}
	log.SetLevel(level)

	bindAddr := c.String("bind")
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("meshnode: could not bind %s: %w", bindAddr, err)
	}

	self, err := wire.ParseAddr(ln.Addr().String())
	if err != nil {
		return fmt.Errorf("meshnode: listen address %s is not a routable self address: %w", ln.Addr(), err)
	}

	pingPeriod := c.Duration("ping-period")
	engine := node.NewEngine(ln, node.Config{
		Self:           self,
		AskPeersPeriod: c.Duration("ask-peers-interval"),
		DialFailureTTL: c.Duration("dial-failure-ttl"),
		SeenWindow:     c.Duration("seen-window"),
		TickerFactory: func() node.PingTicker {
			return node.PeriodicPingTicker{Period: pingPeriod}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return engine.Run(ctx) })

	g.Go(func() error {
		for {
			ev, ok := engine.Pings().Pop()
			if !ok {
				return nil
			}
			dir := "from"
			if ev.Outbound {
				dir = "to"
			}
			log.WithField("prefix", "pings").
				WithField("peer", ev.Peer.String()).
				Debugf("ping %s %s: %s", dir, ev.Peer, ev.Text)
		}
	})

	if connect := c.String("connect"); connect != "" {
		bootstrap, err := wire.ParseAddr(connect)
		if err != nil {
			return fmt.Errorf("meshnode: --connect %s: %w", connect, err)
		}
		if err := engine.Bootstrap(ctx, bootstrap); err != nil {
			log.WithError(err).Warn("bootstrap dial failed")
		}
	}

	if addr := c.String("metrics-addr"); addr != "" {
		root := gql.NewRoot(engine.Registry())
		schema, err := gql.Schema(root)
		if err != nil {
			return fmt.Errorf("meshnode: building graphql schema: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", meshmetrics.Handler())
		mux.Handle("/graphql", gql.Handler(schema))
		srv := &http.Server{Addr: addr, Handler: mux}

		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
		g.Go(func() error {
			log.WithField("addr", addr).Info("serving /metrics and /graphql")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	log.WithField("r_addr", self.String()).Info("meshnode listening")
	return g.Wait()
}
