package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	pool  = common.HexToAddress("0x000000000000000000000000000000000000d00d")
)

func TestTokenTransferFrom(t *testing.T) {
	w := NewWorld()
	tok, err := w.CreateToken("TKN", common.Address{})
	require.NoError(t, err)
	require.NoError(t, tok.Mint(alice, uint256.NewInt(100)))
	require.NoError(t, tok.Approve(alice, pool, uint256.NewInt(60)))

	require.NoError(t, tok.TransferFrom(pool, alice, pool, uint256.NewInt(40)))
	assert.Equal(t, uint256.NewInt(60), tok.BalanceOf(alice))
	assert.Equal(t, uint256.NewInt(40), tok.BalanceOf(pool))
	assert.Equal(t, uint256.NewInt(20), tok.Allowance(alice, pool))

	err = tok.TransferFrom(pool, alice, pool, uint256.NewInt(21))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	err = tok.Transfer(bob, alice, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = tok.Transfer(alice, common.Address{}, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrZeroAddress)
}

func TestJournalRevert(t *testing.T) {
	w := NewWorld()
	tok, err := w.CreateToken("TKN", common.Address{})
	require.NoError(t, err)
	require.NoError(t, tok.Mint(alice, uint256.NewInt(100)))
	require.NoError(t, w.Bank().Mint(alice, uint256.NewInt(50)))
	w.Journal().Commit()

	snap := w.Journal().Snapshot()
	require.NoError(t, tok.Transfer(alice, bob, uint256.NewInt(30)))
	require.NoError(t, tok.Approve(alice, bob, uint256.NewInt(7)))
	require.NoError(t, w.Bank().Send(alice, bob, uint256.NewInt(50)))
	require.NoError(t, w.Bank().Mint(bob, uint256.NewInt(5)))
	_, err = w.CreateToken("OTHER", common.Address{})
	require.NoError(t, err)
	w.Journal().RevertToSnapshot(snap)

	assert.Equal(t, uint256.NewInt(100), tok.BalanceOf(alice))
	assert.True(t, tok.BalanceOf(bob).IsZero())
	assert.True(t, tok.Allowance(alice, bob).IsZero())
	assert.Equal(t, uint256.NewInt(50), w.Bank().BalanceOf(alice))
	assert.True(t, w.Bank().BalanceOf(bob).IsZero())
	assert.Equal(t, uint256.NewInt(50), w.Bank().Supply())
	assert.Len(t, w.Tokens(), 1)
	assert.Equal(t, uint64(1), w.TokenNonce())
	assert.Equal(t, 0, w.Journal().Len())
}

func TestBankReceiverFailureReverts(t *testing.T) {
	w := NewWorld()
	bank := w.Bank()
	require.NoError(t, bank.Mint(alice, uint256.NewInt(10)))
	w.Journal().Commit()

	errHook := errors.New("rejected")
	var seen *uint256.Int
	bank.RegisterReceiver(bob, ReceiverFunc(func(from common.Address, amount *uint256.Int) error {
		seen = amount
		// balances already moved when the hook runs
		if got := bank.BalanceOf(bob); !got.Eq(amount) {
			t.Fatalf("hook saw bob balance %s, want %s", got.Dec(), amount.Dec())
		}
		return errHook
	}))

	snap := w.Journal().Snapshot()
	err := bank.Send(alice, bob, uint256.NewInt(4))
	require.ErrorIs(t, err, errHook)
	w.Journal().RevertToSnapshot(snap)

	assert.Equal(t, uint256.NewInt(4), seen)
	assert.Equal(t, uint256.NewInt(10), bank.BalanceOf(alice))
	assert.True(t, bank.BalanceOf(bob).IsZero())
}

func TestCreateTokenDuplicate(t *testing.T) {
	w := NewWorld()
	addr := common.HexToAddress("0x1234")
	_, err := w.CreateToken("A", addr)
	require.NoError(t, err)
	_, err = w.CreateToken("B", addr)
	require.ErrorIs(t, err, ErrTokenExists)
}

func TestMintOverflow(t *testing.T) {
	w := NewWorld()
	tok, err := w.CreateToken("TKN", common.Address{})
	require.NoError(t, err)
	require.NoError(t, tok.Mint(alice, new(uint256.Int).SetAllOne()))
	err = tok.Mint(bob, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)
}
