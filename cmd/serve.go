package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/jukebox/internal/server"
	"github.com/desertthunder/jukebox/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve runs the web service and the cache refresher until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Opts{Service: client, Logger: r.logger, Gatherer: r.registry})
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	if !client.HasToken() {
		r.logger.Info("authorization required", "link", client.AuthorizationLink())
	}
	if client.PlaylistID() == "" {
		r.logger.Info("no playlist selected, complete setup in the browser", "url", r.config.Server.BaseURL)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresher := tasks.NewCacheRefresher(client, r.config.Spotify.CacheRefreshInterval.Duration, r.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
	g.Go(func() error { return refresher.Run(ctx) })
	return g.Wait()
}
