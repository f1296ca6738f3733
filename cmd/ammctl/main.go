package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityEngine/internal/config"
	"liquidityEngine/internal/statestore"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/storage/postgres"
	"liquidityEngine/internal/storage/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "Constant-product exchange simulator and pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newSimulateCmd(),
		newIngestCmd(),
		newDecodeCmd(),
		newAggregateCmd(),
		newServeCmd(),
		newQuoteCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func configFile(cmd *cobra.Command) string {
	cfgFile, _ := cmd.Flags().GetString("config")
	return cfgFile
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func addStateFlags(cmd *cobra.Command, backend string) {
	cmd.Flags().String("state-backend", backend, "world state backend (none, file, sqlite, postgres)")
	cmd.Flags().String("state", "./data/world.json", "state file (file backend) or database path (sqlite backend)")
	cmd.Flags().String("state-name", "default", "snapshot name for database backends")
}

func addSinkFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("sink", []string{"jsonl"}, "log sinks (jsonl, sqlite, postgres, none)")
	cmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	cmd.Flags().String("sqlite", "./data/amm.db", "sqlite database path")
}

// closers runs cleanup funcs in reverse order.
type closers []func()

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openStateStore returns nil for the none backend.
func openStateStore(ctx context.Context, cfg config.StateConfig) (statestore.Store, func(), error) {
	switch cfg.Backend {
	case "", "none":
		return nil, func() {}, nil
	case "file":
		return &statestore.FileStore{Path: cfg.Path}, func() {}, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return &statestore.DBStore{DB: db, Name: cfg.Name}, func() { _ = db.Close() }, nil
	case "postgres":
		db, err := openPostgres(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		return &statestore.DBStore{DB: db, Name: cfg.Name}, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

func openSink(ctx context.Context, cfg config.SinkConfig) (storage.Storage, func(), error) {
	var (
		sinks storage.Multi
		done  closers
	)
	for _, kind := range cfg.Kinds {
		switch kind {
		case "none":
		case "jsonl":
			sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
		case "sqlite":
			db, err := sqlite.Open(cfg.SQLitePath)
			if err != nil {
				done.Close()
				return nil, nil, err
			}
			sinks = append(sinks, db)
			done = append(done, func() { _ = db.Close() })
		case "postgres":
			db, err := openPostgres(ctx, cfg.PGDSN)
			if err != nil {
				done.Close()
				return nil, nil, err
			}
			sinks = append(sinks, db)
			done = append(done, db.Close)
		default:
			done.Close()
			return nil, nil, fmt.Errorf("unknown sink %q", kind)
		}
	}
	if len(sinks) == 0 {
		return nil, done.Close, nil
	}
	return sinks, done.Close, nil
}

func openPostgres(ctx context.Context, dsn string) (*postgres.Store, error) {
	if dsn == "" {
		return nil, errors.New("pg dsn is required")
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
