package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	Registry      string
	StateStore    StateStore
}

// MetricsStore receives pool rows and window metrics; postgres.Store
// implements it.
type MetricsStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator aggregates typed exchange events into pool window metrics.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	chainClient  *chain.Client
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	reserves     map[string]*reserveTracker
	poolSeen     map[string]model.Pool
}

// NewAggregator builds an Aggregator. chainClient is optional; without it
// closing reserves come from the event history.
func NewAggregator(cfg Config, store MetricsStore, chainClient *chain.Client, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		chainClient:  chainClient,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		reserves:     make(map[string]*reserveTracker),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run executes aggregation over a typed events JSONL file. Events at or
// before the stored progress still feed the reserve trackers but open no
// windows.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 256)
	maxTs := startTs
	var total, decoded, skipped, failed int

	err = storage.ScanJSONLFile(inputPath, func(lineNo int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Int("line", lineNo), zap.Error(err))
			return nil
		}

		f, err := parseFlow(record)
		if err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			return nil
		}

		key := poolKey(record.Address)
		tracker := a.reserves[key]
		if tracker == nil {
			tracker = newReserveTracker()
			a.reserves[key] = tracker
		}

		if record.Timestamp <= startTs {
			tracker.apply(f)
			skipped++
			return nil
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(ctx, acc)
			if metrics != nil {
				batch = append(batch, *metrics)
				decoded++
			}
			if pool != nil {
				pools = append(pools, *pool)
			}
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[key] = acc
		}

		tracker.apply(f)
		acc.AddEvent(record, f)

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("aggregate input: %w", err)
	}

	for _, key := range sortedKeys(a.accumulators) {
		metrics, pool := a.flushAccumulator(ctx, a.accumulators[key])
		if metrics != nil {
			batch = append(batch, *metrics)
			decoded++
		}
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", decoded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.store.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	if acc == nil {
		return nil, nil
	}
	if acc.PoolMeta.Token == "" {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil
	}

	poolRecord := a.registerPool(acc)

	tvlBase, tvlToken, tvlMethod := a.resolveTVL(ctx, acc)
	feeRateBase, feeRateToken := computeFeeRates(acc.BaseFee, acc.TokenFee, tvlBase, tvlToken)
	apr := computeAPR(acc.BaseFee, acc.TokenFee, tvlBase, tvlToken, a.cfg.WindowSeconds)

	metrics := &model.PoolWindowMetrics{
		ChainID:         acc.ChainID,
		PoolAddress:     acc.PoolAddress,
		WindowSizeSecs:  int64(a.cfg.WindowSeconds),
		WindowStart:     time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:       time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:       acc.SwapCount,
		LiquidityEvents: acc.LiquidityEvents,
		BaseVolume:      acc.BaseVolume.String(),
		TokenVolume:     acc.TokenVolume.String(),
		BaseFee:         acc.BaseFee.String(),
		TokenFee:        acc.TokenFee.String(),
		FeeRateBase:     feeRateBase,
		FeeRateToken:    feeRateToken,
		TVLBase:         intString(tvlBase),
		TVLToken:        intString(tvlToken),
		APR:             apr,
		TVLMethod:       tvlMethod,
	}

	return metrics, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		ChainID:    acc.ChainID,
		Address:    acc.PoolAddress,
		Token:      acc.PoolMeta.Token,
		Symbol:     acc.PoolMeta.Symbol,
		Registry:   a.cfg.Registry,
		CreatedSeq: acc.FirstBlock,
	}

	existing, ok := a.poolSeen[key]
	if ok {
		if existing.CreatedSeq <= pool.CreatedSeq {
			return nil
		}
	}

	a.poolSeen[key] = pool
	return &pool
}

func intString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
