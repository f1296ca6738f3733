package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is an in-memory ERC-20 ledger.
type Token struct {
	address     common.Address
	symbol      string
	journal     *Journal
	totalSupply *uint256.Int
	balances    *balanceSheet
	allowances  map[common.Address]*balanceSheet
}

func NewToken(address common.Address, symbol string, journal *Journal) *Token {
	return &Token{
		address:     address,
		symbol:      symbol,
		journal:     journal,
		totalSupply: new(uint256.Int),
		balances:    newBalanceSheet(journal),
		allowances:  make(map[common.Address]*balanceSheet),
	}
}

func (t *Token) Address() common.Address {
	return t.address
}

func (t *Token) Symbol() string {
	return t.symbol
}

func (t *Token) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(t.totalSupply)
}

func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	return t.balances.get(owner)
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	sheet, ok := t.allowances[owner]
	if !ok {
		return new(uint256.Int)
	}
	return sheet.get(spender)
}

// Mint creates amount new tokens for to.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("mint %s: %w", t.symbol, ErrZeroAddress)
	}
	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return fmt.Errorf("mint %s: %w", t.symbol, ErrOverflow)
	}
	prev := t.totalSupply
	t.journal.Append(func() { t.totalSupply = prev })
	t.totalSupply = supply
	return t.balances.add(to, amount)
}

// Burn destroys amount of from's tokens.
func (t *Token) Burn(from common.Address, amount *uint256.Int) error {
	if err := t.balances.sub(from, amount); err != nil {
		return fmt.Errorf("burn %s: %w", t.symbol, err)
	}
	prev := t.totalSupply
	t.journal.Append(func() { t.totalSupply = prev })
	t.totalSupply = new(uint256.Int).Sub(prev, amount)
	return nil
}

func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer %s: %w", t.symbol, ErrZeroAddress)
	}
	if err := t.balances.move(from, to, amount); err != nil {
		return fmt.Errorf("transfer %s: %w", t.symbol, err)
	}
	return nil
}

func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("approve %s: %w", t.symbol, ErrZeroAddress)
	}
	sheet, ok := t.allowances[owner]
	if !ok {
		sheet = newBalanceSheet(t.journal)
		t.allowances[owner] = sheet
	}
	sheet.set(spender, new(uint256.Int).Set(amount))
	return nil
}

func (t *Token) TransferFrom(spender, owner, to common.Address, amount *uint256.Int) error {
	allowed := t.Allowance(owner, spender)
	if allowed.Lt(amount) {
		return fmt.Errorf("transferFrom %s: %w: %s approved %s for %s, needs %s",
			t.symbol, ErrInsufficientAllowance, owner.Hex(), allowed.Dec(), spender.Hex(), amount.Dec())
	}
	if err := t.Transfer(owner, to, amount); err != nil {
		return err
	}
	if sheet, ok := t.allowances[owner]; ok {
		sheet.set(spender, allowed.Sub(allowed, amount))
	}
	return nil
}

// Balances returns a copy of all non-zero holder balances.
func (t *Token) Balances() map[common.Address]*uint256.Int {
	return t.balances.entries()
}

// Allowances returns a copy of all non-zero allowances keyed by owner then spender.
func (t *Token) Allowances() map[common.Address]map[common.Address]*uint256.Int {
	out := make(map[common.Address]map[common.Address]*uint256.Int, len(t.allowances))
	for owner, sheet := range t.allowances {
		entries := sheet.entries()
		if len(entries) > 0 {
			out[owner] = entries
		}
	}
	return out
}
