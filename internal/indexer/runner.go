package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityEngine/internal/batch"
	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/dex"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/retry"
	"liquidityEngine/internal/storage"
)

// ErrNotExchange is returned when a configured address does not answer
// tokenAddress() with a non-zero token.
var ErrNotExchange = errors.New("address is not an exchange")

// RunConfig holds runtime settings for ingesting exchange logs.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Exchanges         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Result summarizes an ingest run.
type Result struct {
	Stored int
	// Skipped counts removed, duplicate and foreign logs.
	Skipped int
	// Events counts stored logs by exchange event name.
	Events map[string]int
	// Tokens maps each verified exchange to the token it trades.
	Tokens map[common.Address]common.Address
}

type logKey struct {
	block uint64
	tx    common.Hash
	index uint
}

// Runner streams exchange logs from a chain and writes them to storage.
// Only logs emitted by a verified exchange with a known event topic are
// stored.
type Runner struct {
	cfg        RunConfig
	chain      *chain.Client
	sink       storage.Storage
	decoder    *dex.ExchangeDecoder
	checkpoint *CheckpointStore
	logger     *zap.Logger

	tokens map[common.Address]common.Address
	seen   map[logKey]struct{}
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainClient *chain.Client, sink storage.Storage, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := dex.NewExchangeDecoder(dex.DecoderConfig{})
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		sink:       sink,
		decoder:    decoder,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		logger:     logger,
		tokens:     make(map[common.Address]common.Address),
		seen:       make(map[logKey]struct{}),
	}, nil
}

// Run verifies every exchange, then ingests the block range batch by batch,
// checkpointing after each one.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{Events: make(map[string]int), Tokens: r.tokens}
	switch {
	case r.chain == nil:
		return res, fmt.Errorf("chain client is nil")
	case r.sink == nil:
		return res, fmt.Errorf("storage is nil")
	case len(r.cfg.Exchanges) == 0:
		return res, fmt.Errorf("at least one exchange address is required")
	}
	if len(r.cfg.Topic0) == 0 {
		r.cfg.Topic0 = r.decoder.Topic0s()
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return res, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return res, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	if err := r.verifyExchanges(ctx); err != nil {
		return res, err
	}

	from, to, err := r.span(ctx)
	if err != nil {
		return res, err
	}
	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return res, nil
	}

	ranges, err := batch.Split(from, to, r.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.ingest(ctx, chainID.Uint64(), blockRange, &res); err != nil {
			return res, err
		}
		if err := r.checkpoint.Save(blockRange.To); err != nil {
			return res, err
		}
	}
	return res, nil
}

// verifyExchanges reads tokenAddress() from every configured exchange.
func (r *Runner) verifyExchanges(ctx context.Context) error {
	for _, addr := range r.cfg.Exchanges {
		var token common.Address
		err := r.withRetry(ctx, "token address", func(ctx context.Context) error {
			var err error
			token, err = dex.FetchExchangeToken(ctx, r.chain, addr)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotExchange, addr.Hex(), err)
		}
		if token == (common.Address{}) {
			return fmt.Errorf("%w: %s trades the zero token", ErrNotExchange, addr.Hex())
		}
		r.tokens[addr] = token
		r.logger.Info("exchange verified", zap.String("exchange", addr.Hex()), zap.String("token", token.Hex()))
	}
	return nil
}

// span resolves the block range left to ingest, honoring the checkpoint and
// following the chain head when no end block is set.
func (r *Runner) span(ctx context.Context) (uint64, uint64, error) {
	from, to := r.cfg.FromBlock, r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return 0, 0, err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}
	return from, to, nil
}

func (r *Runner) ingest(ctx context.Context, chainID uint64, blockRange batch.Range, res *Result) error {
	var logs []types.Log
	err := r.withRetry(ctx, "filter logs", func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Exchanges, r.cfg.Topic0)
		return err
	})
	if err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
	}

	ingestedAt := time.Now().UTC()
	records := make([]model.LogRecord, 0, len(logs))
	events := make(map[string]int)
	for _, log := range logs {
		name, ok := r.accept(log)
		if !ok {
			res.Skipped++
			continue
		}

		var ts uint64
		err := r.withRetry(ctx, "block timestamp", func(ctx context.Context) error {
			var err error
			ts, err = r.chain.BlockTimestamp(ctx, log.BlockNumber)
			return err
		})
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		records = append(records, dex.LogRecordFromLog(chainID, log, ts, ingestedAt))
		events[name]++
	}

	if err := r.sink.PutLogBatch(records); err != nil {
		return fmt.Errorf("store logs: %w", err)
	}
	res.Stored += len(records)
	for name, n := range events {
		res.Events[name] += n
	}

	r.logger.Info("batch complete",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Int("logs", len(records)),
		zap.Any("events", events),
	)
	return nil
}

// accept reports whether log is a live, unseen exchange event from a
// verified exchange, and names the event.
func (r *Runner) accept(log types.Log) (string, bool) {
	if log.Removed || len(log.Topics) == 0 {
		return "", false
	}
	if _, ok := r.tokens[log.Address]; !ok {
		return "", false
	}
	name, ok := r.decoder.EventName(log.Topics[0].Hex())
	if !ok {
		return "", false
	}
	key := logKey{block: log.BlockNumber, tx: log.TxHash, index: log.Index}
	if _, dup := r.seen[key]; dup {
		return "", false
	}
	r.seen[key] = struct{}{}
	return name, true
}

func (r *Runner) withRetry(ctx context.Context, what string, fn func(context.Context) error) error {
	return retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			r.logger.Warn(what+" failed", zap.Error(err))
		}
		return err
	})
}
