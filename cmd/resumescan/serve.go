package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/resume-scanner/internal/api"
	"github.com/joseph-ayodele/resume-scanner/internal/export"
	"github.com/joseph-ayodele/resume-scanner/internal/ingest"
	"github.com/joseph-ayodele/resume-scanner/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC scan API with its worker pool",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	zl, err := newZapLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("build grpc logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	handler, err := api.NewHandler(p.coord, ingest.NewCSVReader(logger), export.NewService(cfg.Export.Path, cfg.Export.Sheet, logger), logger,
		api.WithHealthCheck(p.store.Ping),
		api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)
	if err != nil {
		p.close(context.Background(), logger)
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(handler.Routes(), "resumescan.http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		p.close(context.Background(), logger)
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}
	grpcServer := server.New(server.NewScanService(p.coord, zl), zl)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := grpcServer.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
		}
		grpcServer.Stop(shutdownCtx)
		p.close(shutdownCtx, logger)
		shutdownTelemetry(shutdownCtx)
		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		logger.Error("server stopped", "error", runErr)
	}
	logger.Info("stopped")
	return runErr
}
