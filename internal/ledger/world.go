package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrTokenExists = errors.New("token already exists")

// World bundles the journal, the bank and every token ledger that share it.
type World struct {
	journal *Journal
	bank    *Bank
	tokens  map[common.Address]*Token
	nonce   uint64
}

func NewWorld() *World {
	journal := NewJournal()
	return &World{
		journal: journal,
		bank:    NewBank(journal),
		tokens:  make(map[common.Address]*Token),
	}
}

func (w *World) Journal() *Journal {
	return w.journal
}

func (w *World) Bank() *Bank {
	return w.bank
}

// TokenDeployer is the address new token addresses are derived from.
var TokenDeployer = common.HexToAddress("0x00000000000000000000000000000000000c0113")

// CreateToken registers a new token at an address derived from the world's
// token nonce, or at addr when it is non-zero.
func (w *World) CreateToken(symbol string, addr common.Address) (*Token, error) {
	if addr == (common.Address{}) {
		addr = crypto.CreateAddress(TokenDeployer, w.nonce)
	}
	if _, ok := w.tokens[addr]; ok {
		return nil, fmt.Errorf("create token %s: %w: %s", symbol, ErrTokenExists, addr.Hex())
	}
	token := NewToken(addr, symbol, w.journal)
	w.tokens[addr] = token
	prevNonce := w.nonce
	w.nonce++
	w.journal.Append(func() {
		delete(w.tokens, addr)
		w.nonce = prevNonce
	})
	return token, nil
}

func (w *World) Token(addr common.Address) (*Token, bool) {
	t, ok := w.tokens[addr]
	return t, ok
}

// Tokens returns every token ordered by address.
func (w *World) Tokens() []*Token {
	out := make([]*Token, 0, len(w.tokens))
	for _, t := range w.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].address.Cmp(out[j].address) < 0
	})
	return out
}

func (w *World) TokenNonce() uint64 {
	return w.nonce
}

// SetTokenNonce is used when restoring a snapshot.
func (w *World) SetTokenNonce(n uint64) {
	w.nonce = n
}
