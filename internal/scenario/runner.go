package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/batch"
	"liquidityEngine/internal/dex"
	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/retry"
	"liquidityEngine/internal/statestore"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/units"
)

// Config holds runtime settings for a scenario run.
type Config struct {
	ChainID      uint64
	BatchSize    uint64
	Decimals     uint8
	HaltOnError  bool
	MaxRetries   int
	RetryBackoff time.Duration
	// GenesisTime and BlockTime stamp simulated logs: operation seq n is
	// dated GenesisTime + n*BlockTime.
	GenesisTime uint64
	BlockTime   uint64
}

// Result summarizes a run.
type Result struct {
	Applied     int
	Failed      int
	Logs        int
	LastApplied int64
	Resumed     bool
}

// Runner applies scenario ops to an exchange, streams the resulting logs to
// a sink and checkpoints the world after every batch.
type Runner struct {
	cfg     Config
	ex      *exchange.Exchange
	encoder *dex.Encoder
	sink    storage.Storage
	state   statestore.Store
	logger  *zap.Logger

	mu        sync.Mutex
	pending   []model.LogRecord
	encodeErr error
}

// NewRunner wires a runner to ex. sink and state may be nil.
func NewRunner(cfg Config, ex *exchange.Exchange, sink storage.Storage, state statestore.Store, logger *zap.Logger) (*Runner, error) {
	if ex == nil {
		return nil, fmt.Errorf("exchange is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = units.DefaultDecimals
	}
	if cfg.BlockTime == 0 {
		cfg.BlockTime = 12
	}
	encoder, err := dex.NewEncoder(cfg.ChainID)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:     cfg,
		ex:      ex,
		encoder: encoder,
		sink:    sink,
		state:   state,
		logger:  logger,
	}
	ex.AddObserver(exchange.ObserverFunc(r.observe))
	return r, nil
}

func (r *Runner) observe(receipt exchange.Receipt) {
	ts := r.cfg.GenesisTime + receipt.Seq*r.cfg.BlockTime
	records, err := r.encoder.Records(receipt, ts, time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.encodeErr = errors.Join(r.encodeErr, err)
		return
	}
	r.pending = append(r.pending, records...)
}

// Run applies ops, resuming after the last checkpointed op when the state
// store holds one.
func (r *Runner) Run(ctx context.Context, ops []Op) (Result, error) {
	res := Result{LastApplied: -1}

	if r.state != nil {
		st, ok, err := r.state.Load(ctx)
		if err != nil {
			return res, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok {
			if err := r.ex.Restore(st); err != nil {
				return res, err
			}
			res.LastApplied = st.LastApplied
			res.Resumed = true
			r.logger.Info("resume from checkpoint", zap.Int64("last_applied", st.LastApplied), zap.Uint64("seq", st.Seq))
		}
	}

	from := uint64(res.LastApplied + 1)
	if len(ops) == 0 || from >= uint64(len(ops)) {
		r.logger.Info("nothing to apply", zap.Int("ops", len(ops)), zap.Int64("last_applied", res.LastApplied))
		return res, nil
	}

	ranges, err := batch.Split(from, uint64(len(ops)-1), r.cfg.BatchSize)
	if err != nil {
		return res, err
	}

	symbols := r.symbols()
	for _, rng := range ranges {
		for i := rng.From; i <= rng.To; i++ {
			select {
			case <-ctx.Done():
				return res, r.finish(ctx, &res, ctx.Err())
			default:
			}

			op := ops[i]
			if err := r.apply(op, symbols); err != nil {
				res.Failed++
				r.logger.Warn("op failed",
					zap.Uint64("index", i),
					zap.String("op", op.Op),
					zap.Int("line", op.Line),
					zap.Error(err),
				)
				if r.cfg.HaltOnError {
					return res, r.finish(ctx, &res, fmt.Errorf("op %d %s: %w", i, op, err))
				}
			} else {
				res.Applied++
			}
			res.LastApplied = int64(i)
		}

		if err := r.finish(ctx, &res, nil); err != nil {
			return res, err
		}
		r.logger.Info("batch complete",
			zap.Uint64("from", rng.From),
			zap.Uint64("to", rng.To),
			zap.Int("applied", res.Applied),
			zap.Int("failed", res.Failed),
			zap.Int("logs", res.Logs),
		)
	}

	return res, nil
}

// finish flushes pending logs and checkpoints res.LastApplied, then
// returns cause joined with any flush error.
func (r *Runner) finish(ctx context.Context, res *Result, cause error) error {
	flushCtx := ctx
	if ctx.Err() != nil {
		flushCtx = context.WithoutCancel(ctx)
	}
	if err := r.flush(flushCtx, res); err != nil {
		return errors.Join(cause, err)
	}
	if err := r.checkpoint(flushCtx, res.LastApplied); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (r *Runner) flush(ctx context.Context, res *Result) error {
	r.mu.Lock()
	records := r.pending
	r.pending = nil
	encodeErr := r.encodeErr
	r.encodeErr = nil
	r.mu.Unlock()

	if encodeErr != nil {
		return fmt.Errorf("encode logs: %w", encodeErr)
	}
	if len(records) == 0 || r.sink == nil {
		return nil
	}
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(context.Context) error {
		err := r.sink.PutLogBatch(records)
		if err != nil {
			r.logger.Warn("store logs failed", zap.Int("logs", len(records)), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("store logs: %w", err)
	}
	res.Logs += len(records)
	return nil
}

func (r *Runner) checkpoint(ctx context.Context, lastApplied int64) error {
	if r.state == nil || lastApplied < 0 {
		return nil
	}
	st := r.ex.Snapshot()
	st.ChainID = r.cfg.ChainID
	st.LastApplied = lastApplied
	if err := r.state.Save(ctx, st); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *Runner) symbols() map[string]common.Address {
	out := make(map[string]common.Address)
	for _, t := range r.ex.Snapshot().Tokens {
		out[strings.ToUpper(t.Symbol)] = common.HexToAddress(t.Address)
	}
	return out
}

func (r *Runner) apply(op Op, symbols map[string]common.Address) error {
	switch op.Op {
	case OpCreateToken:
		addr, err := r.ex.CreateToken(op.Symbol)
		if err != nil {
			return err
		}
		symbols[strings.ToUpper(op.Symbol)] = addr
		return nil
	case OpFund:
		amount, err := r.amount(op.Amount)
		if err != nil {
			return err
		}
		return r.ex.Fund(AccountAddress(op.To), amount)
	}

	token, err := resolveToken(op.Token, symbols)
	if err != nil {
		return err
	}

	switch op.Op {
	case OpMintToken:
		amount, err := r.amount(op.Amount)
		if err != nil {
			return err
		}
		return r.ex.MintToken(token, AccountAddress(op.To), amount)

	case OpApprove:
		amount, err := r.amount(op.Amount)
		if err != nil {
			return err
		}
		spender, err := r.spender(op.Spender, symbols)
		if err != nil {
			return err
		}
		return r.ex.Approve(token, AccountAddress(op.Sender), spender, amount)

	case OpCreatePool:
		_, err := r.ex.CreatePool(token)
		return err

	case OpAddLiquidity:
		value, err := r.amount(op.Value)
		if err != nil {
			return err
		}
		amount, err := r.amount(op.Amount)
		if err != nil {
			return err
		}
		_, err = r.ex.AddLiquidity(token, exchange.Msg{Sender: AccountAddress(op.Sender), Value: value}, amount)
		return err

	case OpRemoveLiquidity:
		amount, err := r.amount(op.Amount)
		if err != nil {
			return err
		}
		_, _, err = r.ex.RemoveLiquidity(token, AccountAddress(op.Sender), amount)
		return err

	case OpEthToToken:
		value, err := r.amount(op.Value)
		if err != nil {
			return err
		}
		min, err := r.optionalAmount(op.Min)
		if err != nil {
			return err
		}
		_, err = r.ex.EthToTokenSwap(token, exchange.Msg{Sender: AccountAddress(op.Sender), Value: value}, min)
		return err

	case OpTokenToEth:
		amount, err := r.amount(op.Amount)
		if err != nil {
			return err
		}
		min, err := r.optionalAmount(op.Min)
		if err != nil {
			return err
		}
		_, err = r.ex.TokenToEthSwap(token, AccountAddress(op.Sender), amount, min)
		return err

	case OpTokenToToken:
		amount, err := r.amount(op.Amount)
		if err != nil {
			return err
		}
		min, err := r.optionalAmount(op.Min)
		if err != nil {
			return err
		}
		target, err := resolveToken(op.Target, symbols)
		if err != nil {
			return err
		}
		_, err = r.ex.TokenToTokenSwap(token, AccountAddress(op.Sender), amount, min, target)
		return err
	}
	return fmt.Errorf("%w: unknown op %q", ErrInvalidOp, op.Op)
}

func (r *Runner) amount(s string) (*uint256.Int, error) {
	return units.Parse(s, r.cfg.Decimals)
}

func (r *Runner) optionalAmount(s string) (*uint256.Int, error) {
	if strings.TrimSpace(s) == "" {
		return new(uint256.Int), nil
	}
	return r.amount(s)
}

func (r *Runner) spender(s string, symbols map[string]common.Address) (common.Address, error) {
	if sym, ok := strings.CutPrefix(s, "pool:"); ok {
		token, err := resolveToken(sym, symbols)
		if err != nil {
			return common.Address{}, err
		}
		pool, ok := r.ex.GetPool(token)
		if !ok {
			return common.Address{}, fmt.Errorf("%w: token %s", exchange.ErrPoolNotFound, token.Hex())
		}
		return pool, nil
	}
	return AccountAddress(s), nil
}

func resolveToken(s string, symbols map[string]common.Address) (common.Address, error) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	if addr, ok := symbols[strings.ToUpper(s)]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("%w: unknown token %q", ErrInvalidOp, s)
}
