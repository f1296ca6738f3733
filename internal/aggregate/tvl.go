package aggregate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityEngine/internal/dex"
)

const (
	tvlMethodBlock    = "balance_of_block"
	tvlMethodLatest   = "balance_of_latest"
	tvlMethodEvents   = "event_deltas"
	tvlMethodSnapshot = "pool_meta_snapshot"
	tvlMethodNone     = "unavailable"
)

// resolveTVL picks the closing reserves of a window: on-chain balances when
// a chain client is configured, then the reserves rebuilt from events, then
// the reserves the decoder attached to the pool metadata.
func (a *Aggregator) resolveTVL(ctx context.Context, acc *Accumulator) (*big.Int, *big.Int, string) {
	if a.chainClient != nil && acc.LastBlock > 0 {
		base, token, method, err := a.fetchTVL(ctx, acc.PoolMeta.Token, acc.PoolAddress, acc.LastBlock)
		if err == nil {
			return base, token, method
		}
		a.logger.Warn("tvl fetch failed", zap.String("pool", acc.PoolAddress), zap.Error(err))
	}

	if tracker := a.reserves[poolKey(acc.PoolAddress)]; tracker != nil && tracker.Valid {
		return new(big.Int).Set(tracker.Base), new(big.Int).Set(tracker.Token), tvlMethodEvents
	}

	base, okBase := new(big.Int).SetString(acc.PoolMeta.BaseReserve, 10)
	token, okToken := new(big.Int).SetString(acc.PoolMeta.TokenReserve, 10)
	if okBase && okToken {
		return base, token, tvlMethodSnapshot
	}
	return nil, nil, tvlMethodNone
}

func (a *Aggregator) fetchTVL(ctx context.Context, tokenAddr, poolAddr string, blockNumber uint64) (*big.Int, *big.Int, string, error) {
	if !common.IsHexAddress(tokenAddr) || !common.IsHexAddress(poolAddr) {
		return nil, nil, tvlMethodNone, fmt.Errorf("invalid address")
	}
	pool := common.HexToAddress(poolAddr)
	token := common.HexToAddress(tokenAddr)

	reserves, err := dex.FetchReserves(ctx, a.chainClient, pool, token, new(big.Int).SetUint64(blockNumber))
	if err == nil {
		return reserves.Base, reserves.Token, tvlMethodBlock, nil
	}
	reserves, err = dex.FetchReserves(ctx, a.chainClient, pool, token, nil)
	if err == nil {
		return reserves.Base, reserves.Token, tvlMethodLatest, nil
	}
	return nil, nil, tvlMethodNone, fmt.Errorf("reserves: %w", err)
}
