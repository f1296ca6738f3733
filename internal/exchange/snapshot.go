package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/ledger"
	"liquidityEngine/internal/model"
)

// Snapshot captures the full world. LastApplied and ChainID are left for
// the caller to fill in.
func (e *Exchange) Snapshot() model.WorldState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := model.NewWorldState()
	state.Seq = e.seq
	state.TokenNonce = e.world.TokenNonce()
	state.RegistryNonce = e.registry.Nonce()
	state.Registry = e.registry.Address().Hex()
	state.Bank = encodeBalances(e.world.Bank().Balances())

	for _, t := range e.world.Tokens() {
		ts := model.TokenState{
			Address:  t.Address().Hex(),
			Symbol:   t.Symbol(),
			Balances: encodeBalances(t.Balances()),
		}
		if allowances := t.Allowances(); len(allowances) > 0 {
			ts.Allowances = make(map[string]map[string]string, len(allowances))
			for owner, spenders := range allowances {
				ts.Allowances[owner.Hex()] = encodeBalances(spenders)
			}
		}
		state.Tokens = append(state.Tokens, ts)
	}
	for _, p := range e.registry.Pools() {
		tokenReserve, baseReserve := p.Reserves()
		state.Pools = append(state.Pools, model.PoolState{
			Address:      p.Address().Hex(),
			Token:        p.Token().Hex(),
			Shares:       encodeBalances(p.ShareBalances()),
			TokenReserve: tokenReserve.Dec(),
			BaseReserve:  baseReserve.Dec(),
			ShareSupply:  p.ShareSupply().Dec(),
		})
	}
	return state
}

// Restore replaces the whole world with state. Registered receivers are
// dropped. On error the exchange is left unchanged.
func (e *Exchange) Restore(state model.WorldState) error {
	if state.Version != model.WorldStateVersion {
		return fmt.Errorf("restore world: unsupported version %d", state.Version)
	}

	world := ledger.NewWorld()
	events := NewEventLog(world.Journal())
	registryAddr := DefaultRegistryAddress
	if state.Registry != "" {
		registryAddr = common.HexToAddress(state.Registry)
	}
	registry := NewRegistry(registryAddr, world, events)

	for addr, amount := range state.Bank {
		v, err := decodeAmount(amount)
		if err != nil {
			return fmt.Errorf("restore bank %s: %w", addr, err)
		}
		if err := world.Bank().Mint(common.HexToAddress(addr), v); err != nil {
			return fmt.Errorf("restore bank %s: %w", addr, err)
		}
	}
	for _, ts := range state.Tokens {
		token, err := world.CreateToken(ts.Symbol, common.HexToAddress(ts.Address))
		if err != nil {
			return fmt.Errorf("restore token %s: %w", ts.Address, err)
		}
		for holder, amount := range ts.Balances {
			v, err := decodeAmount(amount)
			if err != nil {
				return fmt.Errorf("restore token %s holder %s: %w", ts.Address, holder, err)
			}
			if err := token.Mint(common.HexToAddress(holder), v); err != nil {
				return fmt.Errorf("restore token %s holder %s: %w", ts.Address, holder, err)
			}
		}
		for owner, spenders := range ts.Allowances {
			for spender, amount := range spenders {
				v, err := decodeAmount(amount)
				if err != nil {
					return fmt.Errorf("restore allowance %s/%s: %w", owner, spender, err)
				}
				if err := token.Approve(common.HexToAddress(owner), common.HexToAddress(spender), v); err != nil {
					return fmt.Errorf("restore allowance %s/%s: %w", owner, spender, err)
				}
			}
		}
	}
	world.SetTokenNonce(state.TokenNonce)

	for _, ps := range state.Pools {
		tokenAddr := common.HexToAddress(ps.Token)
		token, ok := world.Token(tokenAddr)
		if !ok {
			return fmt.Errorf("restore pool %s: %w: %s", ps.Address, ErrTokenNotFound, ps.Token)
		}
		pool := NewPool(common.HexToAddress(ps.Address), token, world.Bank(), world.Journal(), registry, events)
		for holder, amount := range ps.Shares {
			v, err := decodeAmount(amount)
			if err != nil {
				return fmt.Errorf("restore pool %s shares %s: %w", ps.Address, holder, err)
			}
			if err := pool.shares.Mint(common.HexToAddress(holder), v); err != nil {
				return fmt.Errorf("restore pool %s shares %s: %w", ps.Address, holder, err)
			}
		}
		if err := checkPoolTotals(ps, pool); err != nil {
			return fmt.Errorf("restore pool %s: %w", ps.Address, err)
		}
		registry.insert(tokenAddr, pool, registry.nonce)
	}
	registry.nonce = state.RegistryNonce
	world.Journal().Commit()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.world = world
	e.events = events
	e.registry = registry
	e.seq = state.Seq
	e.logger.Info("world restored",
		zap.Uint64("seq", state.Seq),
		zap.Int("tokens", len(state.Tokens)),
		zap.Int("pools", len(state.Pools)),
	)
	return nil
}

// checkPoolTotals compares the recorded reserves and share supply, when
// present, with the balances rebuilt from the ledgers.
func checkPoolTotals(ps model.PoolState, pool *Pool) error {
	tokenReserve, baseReserve := pool.Reserves()
	checks := []struct {
		field    string
		recorded string
		rebuilt  *uint256.Int
	}{
		{"token reserve", ps.TokenReserve, tokenReserve},
		{"base reserve", ps.BaseReserve, baseReserve},
		{"share supply", ps.ShareSupply, pool.ShareSupply()},
	}
	for _, c := range checks {
		if c.recorded == "" {
			continue
		}
		want, err := decodeAmount(c.recorded)
		if err != nil {
			return fmt.Errorf("%s: %w", c.field, err)
		}
		if !want.Eq(c.rebuilt) {
			return fmt.Errorf("%w: %s recorded %s, balances hold %s", ErrSnapshotMismatch, c.field, want.Dec(), c.rebuilt.Dec())
		}
	}
	return nil
}

func encodeBalances(in map[common.Address]*uint256.Int) map[string]string {
	out := make(map[string]string, len(in))
	for addr, v := range in {
		out[addr.Hex()] = v.Dec()
	}
	return out
}

func decodeAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
