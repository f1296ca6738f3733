package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/api"
	"liquidityEngine/internal/config"
	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/metrics"
	"liquidityEngine/internal/scenario"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply a scenario file to the exchange and emit its logs",
		RunE:  runSimulate,
	}

	cmd.Flags().String("ops", "", "scenario JSONL file")
	addSinkFlags(cmd)
	addStateFlags(cmd, "file")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for postgres sink or state backend")
	cmd.Flags().Uint64("chain-id", 31337, "chain id stamped on emitted logs")
	cmd.Flags().String("registry", "", "registry address (default derived)")
	cmd.Flags().Uint("decimals", 18, "decimals of scenario amounts")
	cmd.Flags().Uint64("batch-size", 100, "ops per checkpoint")
	cmd.Flags().Bool("halt-on-error", false, "stop at the first failed op")
	cmd.Flags().Int("max-retries", 3, "maximum sink retry attempts")
	cmd.Flags().Duration("retry-backoff", 200*time.Millisecond, "initial sink retry backoff")
	cmd.Flags().String("genesis-time", "", "timestamp of seq 0 (unix seconds or RFC3339)")
	cmd.Flags().Uint64("block-time", 12, "seconds between simulated blocks")
	cmd.Flags().String("metrics-listen", "", "serve /metrics and the pool API on this address while the run lasts")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSimulate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ops, err := scenario.ReadOpsFile(cfg.Ops)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := openSink(ctx, cfg.Sink)
	if err != nil {
		return err
	}
	defer closeSink()

	state, closeState, err := openStateStore(ctx, cfg.State)
	if err != nil {
		return err
	}
	defer closeState()

	var registry common.Address
	if cfg.Registry != "" {
		registry = common.HexToAddress(cfg.Registry)
	}
	reg := prometheus.NewRegistry()
	ex := exchange.New(logger, registry, metrics.New(reg, cfg.Decimals))

	runner, err := scenario.NewRunner(scenario.Config{
		ChainID:      cfg.ChainID,
		BatchSize:    cfg.BatchSize,
		Decimals:     cfg.Decimals,
		HaltOnError:  cfg.HaltOnError,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		GenesisTime:  cfg.GenesisTime,
		BlockTime:    cfg.BlockTime,
	}, ex, sink, state, logger)
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("ops", cfg.Ops),
		zap.Int("op_count", len(ops)),
		zap.Strings("sink", cfg.Sink.Kinds),
		zap.String("state_backend", cfg.State.Backend),
		zap.String("pg_dsn", redactDSN(cfg.Sink.PGDSN)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("halt_on_error", cfg.HaltOnError),
		zap.String("metrics_listen", cfg.MetricsListen),
	)

	stopServer := func() {}
	if cfg.MetricsListen != "" {
		stopServer = serveDuringRun(ctx, api.NewServer(ex, reg, cfg.Decimals, logger), cfg.MetricsListen, logger)
	}

	res, err := runner.Run(ctx, ops)
	stopServer()

	totals, gatherErr := metrics.OpTotals(reg)
	if gatherErr != nil {
		logger.Warn("gather metrics failed", zap.Error(gatherErr))
	}
	logger.Info("simulate complete",
		zap.Int("applied", res.Applied),
		zap.Int("failed", res.Failed),
		zap.Int("logs", res.Logs),
		zap.Int64("last_applied", res.LastApplied),
		zap.Bool("resumed", res.Resumed),
		zap.Uint64("seq", ex.Seq()),
		zap.Float64("ops_ok", totals["ok"]),
		zap.Float64("ops_reverted", totals["reverted"]),
	)
	return err
}

// serveDuringRun starts server on addr and returns a func that shuts it
// down and waits for it to exit.
func serveDuringRun(ctx context.Context, server *api.Server, addr string, logger *zap.Logger) func() {
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Run(serveCtx, addr); err != nil {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
