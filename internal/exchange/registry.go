package exchange

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"liquidityEngine/internal/ledger"
)

// Registry keeps exactly one pool per token. Pool addresses are derived from
// the registry address and a creation nonce, so the address of the next pool
// is known before it is created.
type Registry struct {
	address   common.Address
	world     *ledger.World
	events    *EventLog
	pools     map[common.Address]*Pool
	byAddress map[common.Address]*Pool
	nonce     uint64
}

func NewRegistry(address common.Address, world *ledger.World, events *EventLog) *Registry {
	return &Registry{
		address:   address,
		world:     world,
		events:    events,
		pools:     make(map[common.Address]*Pool),
		byAddress: make(map[common.Address]*Pool),
	}
}

func (r *Registry) Address() common.Address {
	return r.address
}

func (r *Registry) Nonce() uint64 {
	return r.nonce
}

// NextPoolAddress returns the address CreatePool would assign next.
func (r *Registry) NextPoolAddress() common.Address {
	return crypto.CreateAddress(r.address, r.nonce)
}

// CreatePool constructs and records the pool for token.
func (r *Registry) CreatePool(token common.Address) (*Pool, error) {
	if token == (common.Address{}) {
		return nil, fmt.Errorf("create pool: %w", ErrInvalidTokenAddress)
	}
	if _, ok := r.pools[token]; ok {
		return nil, fmt.Errorf("create pool for %s: %w", token.Hex(), ErrPoolAlreadyExists)
	}
	ledgerToken, ok := r.world.Token(token)
	if !ok {
		return nil, fmt.Errorf("create pool for %s: %w: %w", token.Hex(), ErrInvalidTokenAddress, ErrTokenNotFound)
	}

	pool := NewPool(r.NextPoolAddress(), ledgerToken, r.world.Bank(), r.world.Journal(), r, r.events)
	r.insert(token, pool, r.nonce+1)
	return pool, nil
}

func (r *Registry) insert(token common.Address, pool *Pool, nextNonce uint64) {
	prevNonce := r.nonce
	r.pools[token] = pool
	r.byAddress[pool.address] = pool
	r.nonce = nextNonce
	r.world.Journal().Append(func() {
		delete(r.pools, token)
		delete(r.byAddress, pool.address)
		r.nonce = prevNonce
	})
}

// GetPool returns the pool registered for token.
func (r *Registry) GetPool(token common.Address) (*Pool, bool) {
	p, ok := r.pools[token]
	return p, ok
}

// PoolAt returns the pool deployed at addr.
func (r *Registry) PoolAt(addr common.Address) (*Pool, bool) {
	p, ok := r.byAddress[addr]
	return p, ok
}

// Counterpart implements CounterpartResolver.
func (r *Registry) Counterpart(token common.Address) (Counterpart, bool) {
	p, ok := r.pools[token]
	if !ok {
		return nil, false
	}
	return p, true
}

// Pools returns every pool ordered by address.
func (r *Registry) Pools() []*Pool {
	out := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].address.Cmp(out[j].address) < 0
	})
	return out
}
