package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/iasync/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve sweeps stale cache rows, then serves the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	if n, err := r.cache.Sweep(ctx); err != nil {
		r.logger.Warn("cache sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("swept stale cache entries", "entries", n)
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	api := server.NewAPI(r.engine, r.matcher, r.cache, r.logger)
	handler := server.NewHandler(api, r.logger, r.config.Server.CORSOrigins)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !r.config.Archive.HasCredentials() {
		r.logger.Warn("archive credentials missing, metadata writes will fail")
	}
	return server.New(addr, handler, r.logger).Run(ctx)
}
