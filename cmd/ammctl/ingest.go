package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/config"
	"liquidityEngine/internal/indexer"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch exchange logs from an RPC node",
		RunE:  runIngest,
	}

	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().StringSlice("exchange", nil, "exchange addresses (comma-separated)")
	cmd.Flags().StringSlice("topic0", nil, "topic0 hashes or event names (comma-separated), default all exchange events")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	addSinkFlags(cmd)
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for postgres sink")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadIngest(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	exchanges, err := indexer.ParseAddresses(cfg.Exchanges)
	if err != nil {
		return err
	}
	if len(exchanges) == 0 {
		return fmt.Errorf("exchange list is required")
	}

	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sink, closeSink, err := openSink(ctx, cfg.Sink)
	if err != nil {
		return err
	}
	defer closeSink()
	if sink == nil {
		return fmt.Errorf("at least one sink is required")
	}

	runner, err := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Exchanges:         exchanges,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sink, logger)
	if err != nil {
		return err
	}

	logger.Info("ingest start",
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("exchanges", len(exchanges)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Strings("sink", cfg.Sink.Kinds),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	res, err := runner.Run(ctx)
	logger.Info("ingest complete",
		zap.Int("stored", res.Stored),
		zap.Int("skipped", res.Skipped),
		zap.Any("events", res.Events),
		zap.Int("exchanges_verified", len(res.Tokens)),
	)
	return err
}
