package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/api"
	"liquidityEngine/internal/config"
	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pool state, quotes and metrics over HTTP",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", ":8080", "listen address")
	addStateFlags(cmd, "file")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for postgres state backend")
	cmd.Flags().String("registry", "", "registry address when no snapshot exists")
	cmd.Flags().Uint("decimals", 18, "decimals used to format amounts")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadServe(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, cfg.Decimals)

	var registry common.Address
	if cfg.Registry != "" {
		registry = common.HexToAddress(cfg.Registry)
	}
	ex := exchange.New(logger, registry, m)

	store, closeStore, err := openStateStore(ctx, cfg.State)
	if err != nil {
		return err
	}
	defer closeStore()
	if store != nil {
		state, ok, err := store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load world state: %w", err)
		}
		if ok {
			if err := ex.Restore(state); err != nil {
				return err
			}
			logger.Info("world restored", zap.Uint64("seq", state.Seq), zap.Int("pools", len(state.Pools)))
		}
	}
	m.SetPools(ex.Pools())

	server := api.NewServer(ex, reg, cfg.Decimals, logger)
	return server.Run(ctx, cfg.Listen)
}
