package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chazu/storyvm/server"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "Serve a story to websocket clients",
		ArgsUsage: "[story]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config)"},
		},
		Action: func(c *cli.Context) error {
			story, err := readStory(c)
			if err != nil {
				return err
			}
			cfg := config(c)
			store, err := cfg.OpenSaveStore()
			if err != nil {
				return err
			}
			defer store.Close()

			opts := []server.ServerOption{
				server.WithMaxSessions(cfg.Server.MaxSessions),
				server.WithSaveStore(store),
				server.WithMachineOptions(cfg.MachineOptions()...),
			}
			if cfg.Server.JWTSecret != "" {
				opts = append(opts,
					server.WithTokens(server.NewTokenIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL)),
					server.WithTokenKey(cfg.Server.TokenKey),
				)
			}
			s, err := server.New(story, opts...)
			if err != nil {
				return err
			}

			addr := cfg.Server.Addr
			if c.IsSet("addr") {
				addr = c.String("addr")
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return listenAndServe(ctx, &http.Server{Addr: addr, Handler: s.Handler()})
		},
	}
}

// listenAndServe runs srv until ctx is done, then shuts it down.
func listenAndServe(ctx context.Context, srv *http.Server) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Noticef("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdown), "shutdown")
	})
	return g.Wait()
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Issue a player token for the play server",
		ArgsUsage: "<player>",
		Action: func(c *cli.Context) error {
			cfg := config(c)
			if cfg.Server.JWTSecret == "" {
				return errors.New("server.jwt_secret is not configured")
			}
			player := c.Args().First()
			if player == "" {
				return errors.New("a player name is required")
			}
			token, err := server.NewTokenIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL).Issue(player)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}
