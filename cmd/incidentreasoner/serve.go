package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/incidentreasoner/internal/logging"
	"github.com/dshills/incidentreasoner/internal/server"
)

func newServeCmd() *cobra.Command {
	var configPath, profileName string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, profileName)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "incident profile (see 'profiles')")
	return cmd
}

func runServe(ctx context.Context, configPath, profileName string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath, profileName)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	srv, err := server.New(a.orch, logger.Named("http"), server.Config{
		Addr:           cfg.Server.Addr(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimit:      cfg.Server.RateLimit,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}
