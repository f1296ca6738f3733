package scenario

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/exchange"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/statestore"
)

const script = `
{"op":"create_token","symbol":"AAA"}
{"op":"create_token","symbol":"BBB"}
{"op":"fund","to":"alice","amount":"3000"}
{"op":"mint_token","token":"AAA","to":"alice","amount":"2000"}
{"op":"mint_token","token":"BBB","to":"alice","amount":"1000"}
{"op":"create_pool","token":"AAA"}
{"op":"create_pool","token":"BBB"}
{"op":"approve","token":"AAA","sender":"alice","spender":"pool:AAA","amount":"2000"}
{"op":"approve","token":"BBB","sender":"alice","spender":"pool:BBB","amount":"1000"}
{"op":"add_liquidity","token":"AAA","sender":"alice","value":"1000","amount":"2000"}
{"op":"add_liquidity","token":"BBB","sender":"alice","value":"1000","amount":"1000"}
{"op":"fund","to":"bob","amount":"10"}
{"op":"eth_to_token","token":"AAA","sender":"bob","value":"2"}

{"op":"remove_liquidity","token":"AAA","sender":"bob","amount":"1"}
{"op":"approve","token":"AAA","sender":"bob","spender":"pool:AAA","amount":"100"}
{"op":"token_to_token","token":"AAA","target":"BBB","sender":"bob","amount":"2","min":"raw:1"}
`

type memorySink struct {
	mu      sync.Mutex
	records []model.LogRecord
	fail    int
}

func (s *memorySink) PutLogBatch(logs []model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, logs...)
	return nil
}

func readScript(t *testing.T) []Op {
	t.Helper()
	ops, err := ReadOps(strings.NewReader(script))
	require.NoError(t, err)
	require.Len(t, ops, 16)
	return ops
}

func TestRunnerAppliesScenario(t *testing.T) {
	ops := readScript(t)
	ex := exchange.New(nil, common.Address{})
	sink := &memorySink{fail: 1}
	store := &statestore.FileStore{Path: filepath.Join(t.TempDir(), "state.json")}

	runner, err := NewRunner(Config{ChainID: 31337, BatchSize: 4, MaxRetries: 2, RetryBackoff: 1}, ex, sink, store, nil)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), ops)
	require.NoError(t, err)
	assert.Equal(t, 15, res.Applied)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(15), res.LastApplied)
	assert.Equal(t, 5, res.Logs)
	require.Len(t, sink.records, 5)

	bob := AccountAddress("bob")
	var aaa common.Address
	for _, tok := range ex.Snapshot().Tokens {
		if tok.Symbol == "AAA" {
			aaa = common.HexToAddress(tok.Address)
		}
	}
	symbol, ok := ex.TokenSymbol(aaa)
	require.True(t, ok)
	require.Equal(t, "AAA", symbol)

	bought, err := ex.TokenBalanceOf(aaa, bob)
	require.NoError(t, err)
	assert.Equal(t, "1952174694105670771", bought.Dec())

	last := sink.records[len(sink.records)-1]
	assert.Equal(t, OpTokenToToken, last.Op)
	assert.Equal(t, uint64(31337), last.ChainID)
	assert.Equal(t, sink.records[len(sink.records)-2].TxHash, last.TxHash)

	st, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(15), st.LastApplied)
	assert.Equal(t, ex.Seq(), st.Seq)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	ops := readScript(t)
	ctx := context.Background()

	single := exchange.New(nil, common.Address{})
	singleSink := &memorySink{}
	r, err := NewRunner(Config{ChainID: 1, BatchSize: 5}, single, singleSink, nil, nil)
	require.NoError(t, err)
	_, err = r.Run(ctx, ops)
	require.NoError(t, err)

	store := &statestore.FileStore{Path: filepath.Join(t.TempDir(), "state.json")}
	sink := &memorySink{}
	first := exchange.New(nil, common.Address{})
	r1, err := NewRunner(Config{ChainID: 1, BatchSize: 5}, first, sink, store, nil)
	require.NoError(t, err)
	res, err := r1.Run(ctx, ops[:10])
	require.NoError(t, err)
	require.Equal(t, int64(9), res.LastApplied)

	second := exchange.New(nil, common.Address{})
	r2, err := NewRunner(Config{ChainID: 1, BatchSize: 5}, second, sink, store, nil)
	require.NoError(t, err)
	res, err = r2.Run(ctx, ops)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, 5, res.Applied)
	assert.Equal(t, int64(15), res.LastApplied)

	require.Equal(t, single.Snapshot(), second.Snapshot())
	require.Equal(t, singleSink.records, stripIngested(sink.records, singleSink.records))

	// a finished scenario is a no-op
	third := exchange.New(nil, common.Address{})
	r3, err := NewRunner(Config{ChainID: 1}, third, sink, store, nil)
	require.NoError(t, err)
	res, err = r3.Run(ctx, ops)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
}

func TestRunnerHaltOnError(t *testing.T) {
	ops := readScript(t)
	ex := exchange.New(nil, common.Address{})
	store := &statestore.FileStore{Path: filepath.Join(t.TempDir(), "state.json")}

	runner, err := NewRunner(Config{BatchSize: 100, HaltOnError: true}, ex, &memorySink{}, store, nil)
	require.NoError(t, err)
	res, err := runner.Run(context.Background(), ops)
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(12), res.LastApplied)

	st, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), st.LastApplied)
}

func TestReadOpsRejectsBadLines(t *testing.T) {
	_, err := ReadOps(strings.NewReader(`{"op":"swap"}`))
	require.ErrorIs(t, err, ErrInvalidOp)

	_, err = ReadOps(strings.NewReader(`{"op":"fund","to":"alice"}`))
	require.ErrorIs(t, err, ErrInvalidOp)

	_, err = ReadOps(strings.NewReader(`{"op":`))
	require.ErrorIs(t, err, ErrInvalidOp)
}

func TestAccountAddress(t *testing.T) {
	hex := "0x00000000000000000000000000000000000000a1"
	assert.Equal(t, common.HexToAddress(hex), AccountAddress(hex))
	assert.Equal(t, AccountAddress("alice"), AccountAddress(" alice "))
	assert.NotEqual(t, AccountAddress("alice"), AccountAddress("bob"))
}

// stripIngested copies ingestion times from want so records produced at
// different wall-clock times compare equal.
func stripIngested(got, want []model.LogRecord) []model.LogRecord {
	out := make([]model.LogRecord, len(got))
	copy(out, got)
	for i := range out {
		if i < len(want) {
			out[i].IngestedAt = want[i].IngestedAt
		}
	}
	return out
}
