// Package ledger holds the asset ledgers the exchange settles against: an
// ERC-20 style token ledger per token and a base-asset bank. All mutations
// are journaled so a failed operation can be rolled back completely.
package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the holder's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when transferFrom exceeds the approved amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrZeroAddress is returned when the zero address is used as a counterparty.
	ErrZeroAddress = errors.New("zero address")
	// ErrOverflow is returned when a credit would not fit in 256 bits.
	ErrOverflow = errors.New("balance overflow")
)

// TokenLedger is the fungible token capability a pool settles its token side with.
type TokenLedger interface {
	Address() common.Address
	BalanceOf(owner common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
	// TransferFrom moves exactly amount from owner to to, spending spender's allowance.
	TransferFrom(spender, owner, to common.Address, amount *uint256.Int) error
}

// BaseLedger is the base-asset transfer primitive.
type BaseLedger interface {
	BalanceOf(owner common.Address) *uint256.Int
	// Send moves amount from one holder to another. When the recipient has a
	// Receiver registered it is invoked after the balances have moved.
	Send(from, to common.Address, amount *uint256.Int) error
}

// Receiver is foreign code attached to an address that runs when it receives
// base asset. Returning an error fails the send.
type Receiver interface {
	Receive(from common.Address, amount *uint256.Int) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(from common.Address, amount *uint256.Int) error

func (f ReceiverFunc) Receive(from common.Address, amount *uint256.Int) error {
	return f(from, amount)
}

// balanceSheet is a journaled address -> amount map. Stored values are never
// mutated in place, so undo closures can keep the previous pointer.
type balanceSheet struct {
	journal *Journal
	values  map[common.Address]*uint256.Int
}

func newBalanceSheet(journal *Journal) *balanceSheet {
	return &balanceSheet{journal: journal, values: make(map[common.Address]*uint256.Int)}
}

func (b *balanceSheet) get(owner common.Address) *uint256.Int {
	if v, ok := b.values[owner]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (b *balanceSheet) set(owner common.Address, value *uint256.Int) {
	prev, had := b.values[owner]
	b.journal.Append(func() {
		if had {
			b.values[owner] = prev
		} else {
			delete(b.values, owner)
		}
	})
	if value.IsZero() {
		delete(b.values, owner)
		return
	}
	b.values[owner] = value
}

func (b *balanceSheet) add(owner common.Address, amount *uint256.Int) error {
	next, overflow := new(uint256.Int).AddOverflow(b.get(owner), amount)
	if overflow {
		return fmt.Errorf("%w: credit %s to %s", ErrOverflow, amount.Dec(), owner.Hex())
	}
	b.set(owner, next)
	return nil
}

func (b *balanceSheet) sub(owner common.Address, amount *uint256.Int) error {
	current := b.get(owner)
	if current.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, owner.Hex(), current.Dec(), amount.Dec())
	}
	b.set(owner, current.Sub(current, amount))
	return nil
}

// move debits from and credits to. The debit happens first so a failed
// credit leaves a journal entry the caller reverts.
func (b *balanceSheet) move(from, to common.Address, amount *uint256.Int) error {
	if err := b.sub(from, amount); err != nil {
		return err
	}
	return b.add(to, amount)
}

// entries returns a copy of all non-zero balances.
func (b *balanceSheet) entries() map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(b.values))
	for owner, v := range b.values {
		out[owner] = new(uint256.Int).Set(v)
	}
	return out
}
