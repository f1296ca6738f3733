package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/model"
)

// PoolMetaCache caches pool metadata by pool address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// SeedFromWorld fills both caches from a world snapshot so simulated logs
// decode without a chain connection. Simulated tokens use decimals.
func SeedFromWorld(state model.WorldState, decimals uint8, pools *PoolMetaCache, tokens *TokenMetaCache) {
	symbols := make(map[string]string, len(state.Tokens))
	for _, t := range state.Tokens {
		symbols[t.Address] = t.Symbol
		if tokens != nil {
			tokens.Set(common.HexToAddress(t.Address), model.TokenMeta{
				Address:  t.Address,
				Symbol:   t.Symbol,
				Decimals: decimals,
			})
		}
	}
	if pools == nil {
		return
	}
	for _, p := range state.Pools {
		pools.Set(common.HexToAddress(p.Address), model.PoolMeta{
			Token:    p.Token,
			Symbol:   symbols[p.Token],
			Decimals: decimals,
		})
	}
}

// FetchPoolMeta resolves an exchange's token and its ERC20 metadata.
func FetchPoolMeta(ctx context.Context, chainClient *chain.Client, pool common.Address, tokenCache *TokenMetaCache, logger *zap.Logger) (model.PoolMeta, error) {
	if chainClient == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	exchangeABI, err := ExchangeABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse exchange abi: %w", err)
	}

	values, err := callMethod(ctx, chainClient, pool, exchangeABI, "tokenAddress", nil)
	if err != nil {
		return model.PoolMeta{}, err
	}
	token, err := asAddress(values[0])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("tokenAddress: %w", err)
	}

	var tokenMeta model.TokenMeta
	var ok bool
	if tokenCache != nil {
		tokenMeta, ok = tokenCache.Get(token)
	}
	if !ok {
		tokenMeta, err = FetchTokenMeta(ctx, chainClient, token, logger)
		if err != nil {
			logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
		}
		if tokenCache != nil {
			tokenCache.Set(token, tokenMeta)
		}
	}

	return model.PoolMeta{
		Token:    token.Hex(),
		Symbol:   tokenMeta.Symbol,
		Decimals: tokenMeta.Decimals,
	}, nil
}

// Reserves is a deployed exchange's reserve pair.
type Reserves struct {
	Token *big.Int
	Base  *big.Int
}

// FetchReserves reads the token reserve as the token's balanceOf(pool) and
// the base reserve as the pool's native balance. A nil block reads latest.
func FetchReserves(ctx context.Context, chainClient *chain.Client, pool, token common.Address, block *big.Int) (Reserves, error) {
	if chainClient == nil {
		return Reserves{}, fmt.Errorf("chain client is nil")
	}
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		return Reserves{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := callMethod(ctx, chainClient, token, erc20, "balanceOf", block, pool)
	if err != nil {
		return Reserves{}, err
	}
	tokenReserve, err := asBigInt(values[0])
	if err != nil {
		return Reserves{}, fmt.Errorf("balanceOf: %w", err)
	}

	baseReserve, err := chainClient.BalanceAt(ctx, pool, block)
	if err != nil {
		return Reserves{}, fmt.Errorf("get balance %s: %w", pool.Hex(), err)
	}
	return Reserves{Token: tokenReserve, Base: baseReserve}, nil
}

// FetchExchangeToken returns the token address an exchange trades.
func FetchExchangeToken(ctx context.Context, chainClient *chain.Client, pool common.Address) (common.Address, error) {
	exchangeABI, err := ExchangeABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse exchange abi: %w", err)
	}
	values, err := callMethod(ctx, chainClient, pool, exchangeABI, "tokenAddress", nil)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

func callMethod(ctx context.Context, chainClient *chain.Client, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := chainClient.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

// FetchTokenMeta loads token metadata via ERC20 calls.
func FetchTokenMeta(ctx context.Context, chainClient *chain.Client, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if chainClient == nil {
		return meta, fmt.Errorf("chain client is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, chainClient, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, chainClient, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, chainClient, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, chainClient, token, stringABI, "name", nil); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := callMethod(ctx, chainClient, token, bytes32ABI, "name", nil); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else if logger != nil {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
