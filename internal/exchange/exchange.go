package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/ledger"
)

// DefaultRegistryAddress is the registry address used when none is configured.
var DefaultRegistryAddress = common.HexToAddress("0x000000000000000000000000000000000000fac7")

// PoolSnapshot is a pool's observable state after an operation.
type PoolSnapshot struct {
	Address      common.Address
	Token        common.Address
	Symbol       string
	TokenReserve *uint256.Int
	BaseReserve  *uint256.Int
	ShareSupply  *uint256.Int
}

// Receipt describes one facade operation. Events and Pools are empty when
// Err is set because every effect of a failed operation was reverted.
type Receipt struct {
	Seq      uint64
	Op       string
	Sender   common.Address
	Events   []Event
	Pools    []PoolSnapshot
	Err      error
	Duration time.Duration
}

// Observer receives every receipt in operation order. Observers run under
// the exchange lock and must not call back into the Exchange.
type Observer interface {
	Observe(Receipt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Receipt)

func (f ObserverFunc) Observe(r Receipt) { f(r) }

// Exchange is the goroutine-safe entry point. One mutex gives every
// operation a total order; each top-level operation either commits all of
// its ledger, pool and registry effects or none of them.
type Exchange struct {
	mu        sync.Mutex
	world     *ledger.World
	events    *EventLog
	registry  *Registry
	observers []Observer
	seq       uint64
	logger    *zap.Logger
}

// New creates an empty exchange whose registry lives at registryAddr.
func New(logger *zap.Logger, registryAddr common.Address, observers ...Observer) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registryAddr == (common.Address{}) {
		registryAddr = DefaultRegistryAddress
	}
	world := ledger.NewWorld()
	events := NewEventLog(world.Journal())
	return &Exchange{
		world:     world,
		events:    events,
		registry:  NewRegistry(registryAddr, world, events),
		observers: observers,
		logger:    logger,
	}
}

// AddObserver registers o for all subsequent receipts.
func (e *Exchange) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Seq returns the number of operations executed so far.
func (e *Exchange) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// RegisterReceiver attaches foreign code that runs when addr receives base
// asset. It runs inside the operation that sent the funds.
func (e *Exchange) RegisterReceiver(addr common.Address, r ledger.Receiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.world.Bank().RegisterReceiver(addr, r)
}

func (e *Exchange) do(op string, sender common.Address, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	journal := e.world.Journal()
	snap := journal.Snapshot()
	err := fn()
	if err != nil {
		journal.RevertToSnapshot(snap)
	} else {
		journal.Commit()
	}
	events := e.events.Drain()
	e.seq++

	receipt := Receipt{
		Seq:      e.seq,
		Op:       op,
		Sender:   sender,
		Events:   events,
		Err:      err,
		Duration: time.Since(start),
	}
	if err == nil {
		receipt.Pools = e.touched(events)
	}

	if err != nil {
		e.logger.Debug("operation reverted",
			zap.Uint64("seq", e.seq),
			zap.String("op", op),
			zap.String("sender", sender.Hex()),
			zap.Error(err),
		)
	} else {
		e.logger.Debug("operation committed",
			zap.Uint64("seq", e.seq),
			zap.String("op", op),
			zap.String("sender", sender.Hex()),
			zap.Int("events", len(events)),
		)
	}
	for _, o := range e.observers {
		o.Observe(receipt)
	}
	return err
}

func (e *Exchange) touched(events []Event) []PoolSnapshot {
	seen := make(map[common.Address]bool, len(events))
	var out []PoolSnapshot
	for _, ev := range events {
		if seen[ev.Pool] {
			continue
		}
		seen[ev.Pool] = true
		if p, ok := e.registry.PoolAt(ev.Pool); ok {
			out = append(out, e.snapshotPool(p))
		}
	}
	return out
}

func (e *Exchange) snapshotPool(p *Pool) PoolSnapshot {
	tokenReserve, baseReserve := p.Reserves()
	snap := PoolSnapshot{
		Address:      p.Address(),
		Token:        p.Token(),
		TokenReserve: tokenReserve,
		BaseReserve:  baseReserve,
		ShareSupply:  p.ShareSupply(),
	}
	if t, ok := e.world.Token(p.Token()); ok {
		snap.Symbol = t.Symbol()
	}
	return snap
}

func (e *Exchange) pool(token common.Address) (*Pool, error) {
	p, ok := e.registry.GetPool(token)
	if !ok {
		return nil, fmt.Errorf("%w: token %s", ErrPoolNotFound, token.Hex())
	}
	return p, nil
}

func (e *Exchange) token(addr common.Address) (*ledger.Token, error) {
	t, ok := e.world.Token(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, addr.Hex())
	}
	return t, nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// CreateToken deploys a token ledger and returns its address.
func (e *Exchange) CreateToken(symbol string) (common.Address, error) {
	var addr common.Address
	err := e.do("create_token", common.Address{}, func() error {
		t, err := e.world.CreateToken(symbol, common.Address{})
		if err != nil {
			return err
		}
		addr = t.Address()
		return nil
	})
	return addr, err
}

// MintToken credits amount of token to to.
func (e *Exchange) MintToken(token, to common.Address, amount *uint256.Int) error {
	return e.do("mint_token", to, func() error {
		t, err := e.token(token)
		if err != nil {
			return err
		}
		return t.Mint(to, orZero(amount))
	})
}

// Fund credits amount of base asset to to.
func (e *Exchange) Fund(to common.Address, amount *uint256.Int) error {
	return e.do("fund", to, func() error {
		return e.world.Bank().Mint(to, orZero(amount))
	})
}

// Approve sets owner's token allowance for spender.
func (e *Exchange) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	return e.do("approve", owner, func() error {
		t, err := e.token(token)
		if err != nil {
			return err
		}
		return t.Approve(owner, spender, orZero(amount))
	})
}

// CreatePool registers the pool for token and returns its address.
func (e *Exchange) CreatePool(token common.Address) (common.Address, error) {
	var addr common.Address
	err := e.do("create_pool", common.Address{}, func() error {
		p, err := e.registry.CreatePool(token)
		if err != nil {
			return err
		}
		addr = p.Address()
		return nil
	})
	return addr, err
}

// GetPool returns the pool address for token.
func (e *Exchange) GetPool(token common.Address) (common.Address, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.registry.GetPool(token)
	if !ok {
		return common.Address{}, false
	}
	return p.Address(), true
}

// Pool returns the pool for token. Calling its mutating methods directly
// bypasses the exchange lock; only receivers running inside an exchange
// operation may do that.
func (e *Exchange) Pool(token common.Address) (*Pool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.GetPool(token)
}

func (e *Exchange) AddLiquidity(token common.Address, msg Msg, tokenAmount *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := e.do("add_liquidity", msg.Sender, func() error {
		p, err := e.pool(token)
		if err != nil {
			return err
		}
		minted, err = p.AddLiquidity(msg, orZero(tokenAmount))
		return err
	})
	return minted, err
}

func (e *Exchange) RemoveLiquidity(token, caller common.Address, shares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	var baseOut, tokenOut *uint256.Int
	err := e.do("remove_liquidity", caller, func() error {
		p, err := e.pool(token)
		if err != nil {
			return err
		}
		baseOut, tokenOut, err = p.RemoveLiquidity(caller, orZero(shares))
		return err
	})
	return baseOut, tokenOut, err
}

func (e *Exchange) EthToTokenSwap(token common.Address, msg Msg, minTokensOut *uint256.Int) (*uint256.Int, error) {
	var bought *uint256.Int
	err := e.do("eth_to_token", msg.Sender, func() error {
		p, err := e.pool(token)
		if err != nil {
			return err
		}
		bought, err = p.EthToTokenSwap(msg, orZero(minTokensOut))
		return err
	})
	return bought, err
}

func (e *Exchange) TokenToEthSwap(token, caller common.Address, tokensSold, minBaseOut *uint256.Int) (*uint256.Int, error) {
	var bought *uint256.Int
	err := e.do("token_to_eth", caller, func() error {
		p, err := e.pool(token)
		if err != nil {
			return err
		}
		bought, err = p.TokenToEthSwap(caller, orZero(tokensSold), orZero(minBaseOut))
		return err
	})
	return bought, err
}

func (e *Exchange) TokenToTokenSwap(token, caller common.Address, tokensSold, minTokensOut *uint256.Int, targetToken common.Address) (*uint256.Int, error) {
	var bought *uint256.Int
	err := e.do("token_to_token", caller, func() error {
		p, err := e.pool(token)
		if err != nil {
			return err
		}
		bought, err = p.TokenToTokenSwap(caller, orZero(tokensSold), orZero(minTokensOut), targetToken)
		return err
	})
	return bought, err
}

func (e *Exchange) GetReserve(token common.Address) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.pool(token)
	if err != nil {
		return nil, err
	}
	return p.GetReserve(), nil
}

func (e *Exchange) GetEthAmount(token common.Address, tokensSold *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.pool(token)
	if err != nil {
		return nil, err
	}
	return p.GetEthAmount(orZero(tokensSold))
}

func (e *Exchange) GetTokenAmount(token common.Address, baseSold *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.pool(token)
	if err != nil {
		return nil, err
	}
	return p.GetTokenAmount(orZero(baseSold))
}

// Pools returns a snapshot of every pool ordered by address.
func (e *Exchange) Pools() []PoolSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	pools := e.registry.Pools()
	out := make([]PoolSnapshot, 0, len(pools))
	for _, p := range pools {
		out = append(out, e.snapshotPool(p))
	}
	return out
}

// PoolState returns the snapshot of token's pool.
func (e *Exchange) PoolState(token common.Address) (PoolSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.pool(token)
	if err != nil {
		return PoolSnapshot{}, err
	}
	return e.snapshotPool(p), nil
}

// BalanceOf returns owner's base-asset balance.
func (e *Exchange) BalanceOf(owner common.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Bank().BalanceOf(owner)
}

func (e *Exchange) TokenBalanceOf(token, owner common.Address) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, err := e.token(token)
	if err != nil {
		return nil, err
	}
	return t.BalanceOf(owner), nil
}

func (e *Exchange) SharesOf(token, owner common.Address) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.pool(token)
	if err != nil {
		return nil, err
	}
	return p.SharesOf(owner), nil
}

// TokenSymbol returns the symbol of a token.
func (e *Exchange) TokenSymbol(token common.Address) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.world.Token(token)
	if !ok {
		return "", false
	}
	return t.Symbol(), true
}
