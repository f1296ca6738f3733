package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/config"
	"liquidityEngine/internal/dex"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/storage/sqlite"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed events",
		RunE:  runDecode,
	}

	cmd.Flags().String("rpc", "", "RPC URL, optional when a world snapshot covers every pool")
	cmd.Flags().String("in", "./data/logs.jsonl", "input raw logs JSONL")
	cmd.Flags().String("in-sqlite", "", "read raw logs from a sqlite sink database instead of --in")
	cmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	cmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	cmd.Flags().Bool("include-live-meta", false, "attach reserves read at each log's block (requires archive RPC)")
	cmd.Flags().Uint("decimals", 18, "decimals of tokens seeded from the world snapshot")
	addStateFlags(cmd, "none")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for postgres state backend")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadDecode(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" && cfg.InSQLite == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var chainClient *chain.Client
	if cfg.RPCURL != "" {
		chainClient, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
	}

	decoder, err := dex.NewExchangeDecoder(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	decodeCtx := dex.DecodeContext{
		Context:             ctx,
		Chain:               chainClient,
		PoolMetaCache:       dex.NewPoolMetaCache(),
		TokenMetaCache:      dex.NewTokenMetaCache(),
		Logger:              logger,
		IncludeLiveReserves: cfg.IncludeLiveMeta,
	}

	seeded, err := seedFromState(ctx, cfg, decodeCtx)
	if err != nil {
		return err
	}
	if chainClient == nil && seeded == 0 {
		return fmt.Errorf("rpc or a world snapshot is required to resolve pool metadata")
	}

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("in_sqlite", cfg.InSQLite),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Bool("rpc", chainClient != nil),
		zap.Int("seeded_pools", seeded),
		zap.Bool("include_live_meta", cfg.IncludeLiveMeta),
	)

	var total, decoded, skipped, failed int
	decodeRecord := func(record model.LogRecord) error {
		total++
		if len(record.Topics) == 0 {
			failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, fmt.Errorf("missing topic0")))
			return nil
		}

		if !decoder.CanDecode(record.Topics[0]) {
			skipped++
			return nil
		}

		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, err))
			return nil
		}

		if err := outWriter.Write(event); err != nil {
			return err
		}
		decoded++
		return nil
	}

	if cfg.InSQLite != "" {
		err = scanSQLiteLogs(ctx, cfg.InSQLite, decodeRecord)
	} else {
		err = storage.ScanJSONLFile(cfg.In, func(_ int, line []byte) error {
			var record model.LogRecord
			if err := json.Unmarshal(line, &record); err != nil {
				total++
				failed++
				writeDecodeError(errWriter, model.DecodeError{Error: err.Error()})
				return nil
			}
			return decodeRecord(record)
		})
	}
	if err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

// scanSQLiteLogs feeds every log stored by a sqlite sink to fn in log order.
func scanSQLiteLogs(ctx context.Context, path string, fn func(model.LogRecord) error) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open sqlite input: %w", err)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	logs, err := db.Logs(ctx, 0)
	if err != nil {
		return err
	}
	for _, rec := range logs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// seedFromState fills the metadata caches from the configured world
// snapshot and returns the number of pools it knows.
func seedFromState(ctx context.Context, cfg config.DecodeConfig, decodeCtx dex.DecodeContext) (int, error) {
	store, closeStore, err := openStateStore(ctx, cfg.State)
	if err != nil {
		return 0, err
	}
	defer closeStore()
	if store == nil {
		return 0, nil
	}

	state, ok, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load world state: %w", err)
	}
	if !ok {
		return 0, nil
	}
	dex.SeedFromWorld(state, cfg.Decimals, decodeCtx.PoolMetaCache, decodeCtx.TokenMetaCache)
	return len(state.Pools), nil
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}

	return model.DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      topic0,
		Error:       err.Error(),
	}
}

func writeDecodeError(writer *storage.JSONLWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
