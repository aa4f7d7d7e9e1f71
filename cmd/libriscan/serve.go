package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/core/async"
	"github.com/libriscan/libriscan/internal/server"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction workers, lease sweeper and health endpoints",
	Long: `Start the long-running libriscan process.

On start it applies the schema, recovers jobs left open by a previous run and
starts the worker pool that executes queued extractions. Jobs queued by other
commands (extract --async, import --extract) are picked up every
extraction.claim_interval. Stale extraction leases are reclaimed every
extraction.sweep_interval.

Endpoints:
  - gRPC health and reflection on server.grpc_addr
  - /metrics, /health and /ready on server.metrics_addr

Editing the config file while running changes the log level in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		loader, logger, level, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := loader.Get()
		loader.OnChange(func(c *common.Config) {
			level.Set(common.ParseLevel(c.Log.Level))
			logger.Info("configuration reloaded", "log_level", c.Log.Level)
		})
		loader.Watch()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		a, err := openApp(ctx, cfg, logger, reg)
		if err != nil {
			return err
		}
		defer a.Close()

		queue := async.NewProcessorQueue(a.orch, logger,
			async.WithWorkers(cfg.Extraction.Workers),
			async.WithQueueSize(cfg.Extraction.QueueSize),
			async.WithProcessTimeout(cfg.Extraction.ProcessTimeout),
			async.WithMetrics(a.metrics),
		)
		a.orch.SetDispatcher(queue)

		if n, err := a.orch.Recover(ctx); err != nil {
			logger.Error("job recovery failed", "err", err)
		} else if n > 0 {
			logger.Info("recovered open extraction jobs", "count", n)
		}

		ready := func(ctx context.Context) error {
			return server.PingDB(ctx, a.db, logger, cfg.Database.DialTimeout)
		}
		grpcServer, hs := server.NewGRPCServer(a.metrics, logger)
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		obs := server.NewObservabilityServer(cfg.Server.MetricsAddr, server.NewObservabilityHandler(reg, ready), logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("gRPC serving", "addr", lis.Addr().String())
			return grpcServer.Serve(lis)
		})
		g.Go(obs.Start)
		g.Go(func() error {
			a.orch.RunSweeper(gctx, cfg.Extraction.SweepInterval)
			return nil
		})
		g.Go(func() error {
			a.orch.RunClaimer(gctx, cfg.Extraction.ClaimInterval)
			return nil
		})
		g.Go(func() error {
			server.WatchHealth(gctx, hs, ready, 0, logger)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			grpcServer.GracefulStop()
			queue.Shutdown(shutdownCtx)
			return obs.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
