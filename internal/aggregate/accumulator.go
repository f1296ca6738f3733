package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"liquidityEngine/internal/model"
)

// swapFeeDivisor is the share of every swap input kept by the pool (1%).
const swapFeeDivisor = 100

// flow is the base and token movement an event causes at its pool.
type flow struct {
	event    string
	baseIn   *big.Int
	baseOut  *big.Int
	tokenIn  *big.Int
	tokenOut *big.Int
}

func (f flow) isSwap() bool {
	return f.event == "TokenPurchase" || f.event == "EthPurchase"
}

func parseFlow(record model.TypedEventRecord) (flow, error) {
	f := flow{
		event:    record.EventName,
		baseIn:   new(big.Int),
		baseOut:  new(big.Int),
		tokenIn:  new(big.Int),
		tokenOut: new(big.Int),
	}
	var err error
	switch record.EventName {
	case "AddLiquidity":
		var data model.AddLiquidityEventData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return flow{}, fmt.Errorf("decode add liquidity: %w", err)
		}
		f.baseIn, err = parseBigInt(data.EthAmount)
		if err == nil {
			f.tokenIn, err = parseBigInt(data.TokenAmount)
		}
	case "RemoveLiquidity":
		var data model.RemoveLiquidityEventData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return flow{}, fmt.Errorf("decode remove liquidity: %w", err)
		}
		f.baseOut, err = parseBigInt(data.EthAmount)
		if err == nil {
			f.tokenOut, err = parseBigInt(data.TokenAmount)
		}
	case "TokenPurchase":
		var data model.TokenPurchaseEventData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return flow{}, fmt.Errorf("decode token purchase: %w", err)
		}
		f.baseIn, err = parseBigInt(data.EthSold)
		if err == nil {
			f.tokenOut, err = parseBigInt(data.TokensBought)
		}
	case "EthPurchase":
		var data model.EthPurchaseEventData
		if err := json.Unmarshal(record.Decoded, &data); err != nil {
			return flow{}, fmt.Errorf("decode eth purchase: %w", err)
		}
		f.tokenIn, err = parseBigInt(data.TokensSold)
		if err == nil {
			f.baseOut, err = parseBigInt(data.EthBought)
		}
	default:
		return flow{}, fmt.Errorf("unsupported event: %s", record.EventName)
	}
	if err != nil {
		return flow{}, err
	}
	return f, nil
}

// reserveTracker rebuilds a pool's reserves from its event history. It is
// invalidated as soon as a delta would drive a reserve negative, which
// means the history did not start at the pool's first deposit.
type reserveTracker struct {
	Base  *big.Int
	Token *big.Int
	Valid bool
}

func newReserveTracker() *reserveTracker {
	return &reserveTracker{Base: new(big.Int), Token: new(big.Int), Valid: true}
}

func (r *reserveTracker) apply(f flow) {
	if !r.Valid {
		return
	}
	r.Base.Add(r.Base, f.baseIn)
	r.Base.Sub(r.Base, f.baseOut)
	r.Token.Add(r.Token, f.tokenIn)
	r.Token.Sub(r.Token, f.tokenOut)
	if r.Base.Sign() < 0 || r.Token.Sign() < 0 {
		r.Valid = false
	}
}

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID         uint64
	PoolAddress     string
	PoolMeta        model.PoolMeta
	WindowStart     uint64
	WindowEnd       uint64
	SwapCount       uint64
	LiquidityEvents uint64
	BaseVolume      *big.Int
	TokenVolume     *big.Int
	BaseFee         *big.Int
	TokenFee        *big.Int
	LastBlock       uint64
	LastTS          uint64
	FirstBlock      uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: record.Address,
		PoolMeta:    record.PoolMeta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		BaseVolume:  big.NewInt(0),
		TokenVolume: big.NewInt(0),
		BaseFee:     big.NewInt(0),
		TokenFee:    big.NewInt(0),
		LastBlock:   record.BlockNumber,
		LastTS:      record.Timestamp,
		FirstBlock:  record.BlockNumber,
	}
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord, f flow) {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if record.PoolMeta.Token != "" {
		a.PoolMeta = record.PoolMeta
	}

	if !f.isSwap() {
		a.LiquidityEvents++
		return
	}

	a.BaseVolume.Add(a.BaseVolume, f.baseIn)
	a.BaseVolume.Add(a.BaseVolume, f.baseOut)
	a.TokenVolume.Add(a.TokenVolume, f.tokenIn)
	a.TokenVolume.Add(a.TokenVolume, f.tokenOut)
	a.BaseFee.Add(a.BaseFee, feeFromAmount(f.baseIn))
	a.TokenFee.Add(a.TokenFee, feeFromAmount(f.tokenIn))
	a.SwapCount++
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}

func feeFromAmount(amountIn *big.Int) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Div(amountIn, big.NewInt(swapFeeDivisor))
}
