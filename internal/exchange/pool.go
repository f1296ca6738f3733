// Package exchange implements the constant-product liquidity pools, the
// registry that keeps one pool per token, and the serialized facade that
// callers drive them through.
package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/ledger"
	"liquidityEngine/internal/pricing"
)

// Msg is the call context of a pool operation. Value is the base asset
// attached to a payable call; it is moved from Sender to the pool before
// the operation body runs.
type Msg struct {
	Sender common.Address
	Value  *uint256.Int
}

func (m Msg) value() *uint256.Int {
	if m.Value == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(m.Value)
}

// Counterpart is the typed capability a pool uses to finish a routed swap
// in another pool.
type Counterpart interface {
	Address() common.Address
	// EthToTokenSwapFor sells msg.Value base asset and delivers the bought
	// tokens to recipient.
	EthToTokenSwapFor(msg Msg, minTokensOut *uint256.Int, recipient common.Address) (*uint256.Int, error)
}

// CounterpartResolver resolves the pool registered for a token.
type CounterpartResolver interface {
	Counterpart(token common.Address) (Counterpart, bool)
}

// Pool is a token/base-asset reserve pair with its liquidity-share ledger.
// Reserves are the pool's own balances in the token ledger and the bank.
type Pool struct {
	address  common.Address
	token    ledger.TokenLedger
	bank     ledger.BaseLedger
	shares   *ledger.Token
	journal  *ledger.Journal
	registry CounterpartResolver
	events   *EventLog
	locked   bool
}

func NewPool(address common.Address, token ledger.TokenLedger, bank ledger.BaseLedger, journal *ledger.Journal, registry CounterpartResolver, events *EventLog) *Pool {
	return &Pool{
		address:  address,
		token:    token,
		bank:     bank,
		shares:   ledger.NewToken(address, "SHARE", journal),
		journal:  journal,
		registry: registry,
		events:   events,
	}
}

func (p *Pool) Address() common.Address {
	return p.address
}

func (p *Pool) Token() common.Address {
	return p.token.Address()
}

// GetReserve returns the token reserve.
func (p *Pool) GetReserve() *uint256.Int {
	return p.token.BalanceOf(p.address)
}

// BaseReserve returns the base-asset reserve.
func (p *Pool) BaseReserve() *uint256.Int {
	return p.bank.BalanceOf(p.address)
}

// Reserves returns (tokenReserve, baseReserve).
func (p *Pool) Reserves() (*uint256.Int, *uint256.Int) {
	return p.GetReserve(), p.BaseReserve()
}

func (p *Pool) ShareSupply() *uint256.Int {
	return p.shares.TotalSupply()
}

func (p *Pool) SharesOf(owner common.Address) *uint256.Int {
	return p.shares.BalanceOf(owner)
}

// ShareBalances returns a copy of every non-zero share balance.
func (p *Pool) ShareBalances() map[common.Address]*uint256.Int {
	return p.shares.Balances()
}

// GetEthAmount quotes the base asset received for selling tokensSold.
func (p *Pool) GetEthAmount(tokensSold *uint256.Int) (*uint256.Int, error) {
	tokenReserve, baseReserve := p.Reserves()
	return pricing.GetAmount(tokensSold, tokenReserve, baseReserve)
}

// GetTokenAmount quotes the tokens received for selling baseSold.
func (p *Pool) GetTokenAmount(baseSold *uint256.Int) (*uint256.Int, error) {
	tokenReserve, baseReserve := p.Reserves()
	return pricing.GetAmount(baseSold, baseReserve, tokenReserve)
}

// AddLiquidity deposits msg.Value base asset and the matching token amount
// and returns the shares minted to msg.Sender. The first deposit sets the
// price and mints msg.Value shares; later deposits pull only the token
// amount the current ratio requires.
func (p *Pool) AddLiquidity(msg Msg, tokenAmount *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := p.atomic("add liquidity", func() error {
		value := msg.value()
		baseBefore, err := p.receive(msg.Sender, value)
		if err != nil {
			return err
		}

		supply := p.shares.TotalSupply()
		var pulled *uint256.Int
		if supply.IsZero() {
			if tokenAmount.IsZero() || value.IsZero() {
				return fmt.Errorf("%w: base %s token %s", ErrZeroLiquidity, value.Dec(), tokenAmount.Dec())
			}
			pulled = new(uint256.Int).Set(tokenAmount)
			minted = new(uint256.Int).Set(value)
		} else {
			tokenReserve := p.GetReserve()
			required, err := pricing.MulDiv(value, tokenReserve, baseBefore)
			if err != nil {
				return err
			}
			if tokenAmount.Lt(required) {
				return fmt.Errorf("%w: offered %s, required %s", ErrInsufficientTokenAmount, tokenAmount.Dec(), required.Dec())
			}
			pulled = required
			if minted, err = pricing.MulDiv(supply, value, baseBefore); err != nil {
				return err
			}
		}

		if err := p.token.TransferFrom(p.address, msg.Sender, p.address, pulled); err != nil {
			return err
		}
		if err := p.shares.Mint(msg.Sender, minted); err != nil {
			return err
		}
		p.emit(EventAddLiquidity, msg.Sender, value, pulled)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// RemoveLiquidity burns shares and pays out the proportional reserves.
func (p *Pool) RemoveLiquidity(caller common.Address, shares *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	var baseOut, tokenOut *uint256.Int
	err := p.atomic("remove liquidity", func() error {
		held := p.shares.BalanceOf(caller)
		if shares.IsZero() || shares.Gt(held) {
			return fmt.Errorf("%w: %s of %s", ErrInvalidWithdrawAmount, shares.Dec(), held.Dec())
		}
		supply := p.shares.TotalSupply()
		tokenReserve, baseReserve := p.Reserves()

		var err error
		if baseOut, err = pricing.MulDiv(shares, baseReserve, supply); err != nil {
			return err
		}
		if tokenOut, err = pricing.MulDiv(shares, tokenReserve, supply); err != nil {
			return err
		}

		if err := p.shares.Burn(caller, shares); err != nil {
			return err
		}
		if err := p.token.Transfer(p.address, caller, tokenOut); err != nil {
			return err
		}
		p.emit(EventRemoveLiquidity, caller, baseOut, tokenOut)
		return p.bank.Send(p.address, caller, baseOut)
	})
	if err != nil {
		return nil, nil, err
	}
	return baseOut, tokenOut, nil
}

// EthToTokenSwap sells msg.Value base asset for at least minTokensOut tokens.
func (p *Pool) EthToTokenSwap(msg Msg, minTokensOut *uint256.Int) (*uint256.Int, error) {
	return p.EthToTokenSwapFor(msg, minTokensOut, msg.Sender)
}

// EthToTokenSwapFor is EthToTokenSwap with the tokens delivered to recipient.
func (p *Pool) EthToTokenSwapFor(msg Msg, minTokensOut *uint256.Int, recipient common.Address) (*uint256.Int, error) {
	var bought *uint256.Int
	err := p.atomic("eth to token swap", func() error {
		value := msg.value()
		baseBefore, err := p.receive(msg.Sender, value)
		if err != nil {
			return err
		}
		if bought, err = pricing.GetAmount(value, baseBefore, p.GetReserve()); err != nil {
			return err
		}
		if bought.Lt(minTokensOut) {
			return fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutputAmount, bought.Dec(), minTokensOut.Dec())
		}
		if err := p.token.Transfer(p.address, recipient, bought); err != nil {
			return err
		}
		p.emit(EventTokenPurchase, recipient, value, bought)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bought, nil
}

// TokenToEthSwap sells tokensSold tokens for at least minBaseOut base asset.
func (p *Pool) TokenToEthSwap(caller common.Address, tokensSold, minBaseOut *uint256.Int) (*uint256.Int, error) {
	var bought *uint256.Int
	err := p.atomic("token to eth swap", func() error {
		var err error
		if bought, err = p.sellTokens(caller, tokensSold); err != nil {
			return err
		}
		if bought.Lt(minBaseOut) {
			return fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutputAmount, bought.Dec(), minBaseOut.Dec())
		}
		p.emit(EventEthPurchase, caller, bought, tokensSold)
		return p.bank.Send(p.address, caller, bought)
	})
	if err != nil {
		return nil, err
	}
	return bought, nil
}

// TokenToTokenSwap sells tokensSold tokens here and routes the base proceeds
// into targetToken's pool, which delivers at least minTokensOut of its token
// straight to caller.
func (p *Pool) TokenToTokenSwap(caller common.Address, tokensSold, minTokensOut *uint256.Int, targetToken common.Address) (*uint256.Int, error) {
	var bought *uint256.Int
	err := p.atomic("token to token swap", func() error {
		target, ok := p.registry.Counterpart(targetToken)
		if !ok || target.Address() == p.address {
			return fmt.Errorf("%w: no counterpart for token %s", ErrInvalidPoolAddress, targetToken.Hex())
		}
		baseBought, err := p.sellTokens(caller, tokensSold)
		if err != nil {
			return err
		}
		p.emit(EventEthPurchase, caller, baseBought, tokensSold)
		bought, err = target.EthToTokenSwapFor(Msg{Sender: p.address, Value: baseBought}, minTokensOut, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bought, nil
}

// sellTokens pulls tokensSold from caller and prices them against the
// reserves as they stood before the pull.
func (p *Pool) sellTokens(caller common.Address, tokensSold *uint256.Int) (*uint256.Int, error) {
	tokenReserve, baseReserve := p.Reserves()
	bought, err := pricing.GetAmount(tokensSold, tokenReserve, baseReserve)
	if err != nil {
		return nil, err
	}
	if err := p.token.TransferFrom(p.address, caller, p.address, tokensSold); err != nil {
		return nil, err
	}
	return bought, nil
}

// receive credits value from sender to the pool and returns the base
// reserve as it stood before the credit.
func (p *Pool) receive(sender common.Address, value *uint256.Int) (*uint256.Int, error) {
	before := p.BaseReserve()
	if err := p.bank.Send(sender, p.address, value); err != nil {
		return nil, err
	}
	return before, nil
}

func (p *Pool) emit(kind EventKind, account common.Address, base, token *uint256.Int) {
	p.events.emit(Event{
		Kind:        kind,
		Pool:        p.address,
		Token:       p.token.Address(),
		Account:     account,
		BaseAmount:  new(uint256.Int).Set(base),
		TokenAmount: new(uint256.Int).Set(token),
	})
}

// atomic runs fn under the pool's reentrancy guard and reverts every
// journaled mutation fn made when it fails.
func (p *Pool) atomic(op string, fn func() error) error {
	if p.locked {
		return fmt.Errorf("%s: %w", op, ErrReentrantCall)
	}
	p.locked = true
	defer func() { p.locked = false }()

	snap := p.journal.Snapshot()
	if err := fn(); err != nil {
		p.journal.RevertToSnapshot(snap)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
