package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Bank holds base-asset balances.
type Bank struct {
	journal   *Journal
	balances  *balanceSheet
	supply    *uint256.Int
	receivers map[common.Address]Receiver
}

func NewBank(journal *Journal) *Bank {
	return &Bank{
		journal:   journal,
		balances:  newBalanceSheet(journal),
		supply:    new(uint256.Int),
		receivers: make(map[common.Address]Receiver),
	}
}

func (b *Bank) BalanceOf(owner common.Address) *uint256.Int {
	return b.balances.get(owner)
}

func (b *Bank) Supply() *uint256.Int {
	return new(uint256.Int).Set(b.supply)
}

// Mint credits amount of freshly issued base asset to to.
func (b *Bank) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("mint base: %w", ErrZeroAddress)
	}
	supply, overflow := new(uint256.Int).AddOverflow(b.supply, amount)
	if overflow {
		return fmt.Errorf("mint base: %w", ErrOverflow)
	}
	prev := b.supply
	b.journal.Append(func() { b.supply = prev })
	b.supply = supply
	return b.balances.add(to, amount)
}

// Send moves amount from one holder to another, then runs the recipient's
// Receiver if one is registered. Balances have already moved when the
// hook runs; a hook error fails the send and the caller reverts.
func (b *Bank) Send(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("send base: %w", ErrZeroAddress)
	}
	if err := b.balances.move(from, to, amount); err != nil {
		return fmt.Errorf("send base: %w", err)
	}
	if r, ok := b.receivers[to]; ok {
		if err := r.Receive(from, new(uint256.Int).Set(amount)); err != nil {
			return fmt.Errorf("send base: receiver %s: %w", to.Hex(), err)
		}
	}
	return nil
}

// RegisterReceiver attaches r to addr. A nil r removes the hook.
// Receivers are configuration and are not journaled.
func (b *Bank) RegisterReceiver(addr common.Address, r Receiver) {
	if r == nil {
		delete(b.receivers, addr)
		return
	}
	b.receivers[addr] = r
}

// Balances returns a copy of all non-zero balances.
func (b *Bank) Balances() map[common.Address]*uint256.Int {
	return b.balances.entries()
}
