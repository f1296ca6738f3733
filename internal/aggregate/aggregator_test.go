package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/chain"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage/sqlite"
)

const (
	testPool  = "0x5555555555555555555555555555555555555555"
	testToken = "0x6666666666666666666666666666666666666666"
	provider  = "0x00000000000000000000000000000000000000a1"
)

type memoryStore struct {
	pools   []model.Pool
	metrics []model.PoolWindowMetrics
}

func (s *memoryStore) UpsertPools(ctx context.Context, pools []model.Pool) error {
	s.pools = append(s.pools, pools...)
	return nil
}

func (s *memoryStore) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	s.metrics = append(s.metrics, metrics...)
	return nil
}

func typedEvent(block, ts uint64, name string, decoded interface{}) model.TypedEvent {
	return model.TypedEvent{
		ChainID:     1,
		BlockNumber: block,
		Address:     testPool,
		EventName:   name,
		Timestamp:   ts,
		Decoded:     decoded,
		PoolMeta:    model.PoolMeta{Token: testToken, Symbol: "TKN", Decimals: 18},
	}
}

func writeEvents(t *testing.T, events ...model.TypedEvent) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "typed.jsonl")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	enc := json.NewEncoder(file)
	for _, ev := range events {
		require.NoError(t, enc.Encode(ev))
	}
	_, err = file.WriteString("not json\n")
	require.NoError(t, err)
	return path
}

func sampleEvents() []model.TypedEvent {
	return []model.TypedEvent{
		typedEvent(1, 100, "AddLiquidity", model.AddLiquidityEventData{Provider: provider, EthAmount: "1000", TokenAmount: "2000"}),
		typedEvent(2, 200, "TokenPurchase", model.TokenPurchaseEventData{Buyer: provider, EthSold: "100", TokensBought: "180"}),
		typedEvent(3, 300, "EthPurchase", model.EthPurchaseEventData{Seller: provider, EthBought: "110", TokensSold: "200"}),
		typedEvent(4, 4000, "RemoveLiquidity", model.RemoveLiquidityEventData{Provider: provider, EthAmount: "99", TokenAmount: "202"}),
	}
}

func TestAggregatorWindows(t *testing.T) {
	input := writeEvents(t, sampleEvents()...)
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "agg_state.json")}
	store := &memoryStore{}

	agg := NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, store, nil, nil)
	require.NoError(t, agg.Run(context.Background(), input))

	require.Len(t, store.pools, 1)
	assert.Equal(t, model.Pool{ChainID: 1, Address: testPool, Token: testToken, Symbol: "TKN", CreatedSeq: 1}, store.pools[0])

	require.Len(t, store.metrics, 2)
	first := store.metrics[0]
	assert.Equal(t, int64(0), first.WindowStart.Unix())
	assert.Equal(t, int64(3600), first.WindowEnd.Unix())
	assert.Equal(t, uint64(2), first.SwapCount)
	assert.Equal(t, uint64(1), first.LiquidityEvents)
	assert.Equal(t, "210", first.BaseVolume)
	assert.Equal(t, "380", first.TokenVolume)
	assert.Equal(t, "1", first.BaseFee)
	assert.Equal(t, "2", first.TokenFee)
	assert.Equal(t, tvlMethodEvents, first.TVLMethod)
	require.NotNil(t, first.TVLBase)
	require.NotNil(t, first.TVLToken)
	assert.Equal(t, "990", *first.TVLBase)
	assert.Equal(t, "2020", *first.TVLToken)
	require.NotNil(t, first.FeeRateBase)
	assert.Equal(t, "0.001010101010101010", *first.FeeRateBase)
	require.NotNil(t, first.FeeRateToken)
	assert.Equal(t, "0.000990099009900990", *first.FeeRateToken)
	require.NotNil(t, first.APR)
	assert.Equal(t, "8.760876087608760876", *first.APR)

	second := store.metrics[1]
	assert.Equal(t, int64(3600), second.WindowStart.Unix())
	assert.Equal(t, uint64(0), second.SwapCount)
	assert.Equal(t, uint64(1), second.LiquidityEvents)
	assert.Equal(t, "0", second.BaseFee)
	assert.Nil(t, second.FeeRateBase)
	assert.Equal(t, "891", *second.TVLBase)
	assert.Equal(t, "1818", *second.TVLToken)

	last, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4000), last)

	// progress is kept: a second pass over the same file emits nothing
	store2 := &memoryStore{}
	require.NoError(t, NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, store2, nil, nil).Run(context.Background(), input))
	assert.Empty(t, store2.metrics)
}

func TestAggregatorResumeKeepsReserves(t *testing.T) {
	input := writeEvents(t, sampleEvents()...)
	store := &memoryStore{}

	agg := NewAggregator(Config{WindowSeconds: 3600, RecomputeFrom: 3600}, store, nil, nil)
	require.NoError(t, agg.Run(context.Background(), input))

	require.Len(t, store.metrics, 1)
	m := store.metrics[0]
	assert.Equal(t, tvlMethodEvents, m.TVLMethod)
	assert.Equal(t, "891", *m.TVLBase)
	assert.Equal(t, "1818", *m.TVLToken)
}

func TestAggregatorPartialHistory(t *testing.T) {
	events := sampleEvents()[1:2]
	events[0].PoolMeta.BaseReserve = "5000"
	events[0].PoolMeta.TokenReserve = "7000"
	input := writeEvents(t, events...)
	store := &memoryStore{}

	require.NoError(t, NewAggregator(Config{WindowSeconds: 60}, store, nil, nil).Run(context.Background(), input))
	require.Len(t, store.metrics, 1)
	m := store.metrics[0]
	assert.Equal(t, tvlMethodSnapshot, m.TVLMethod)
	assert.Equal(t, "5000", *m.TVLBase)

	events[0].PoolMeta.BaseReserve = ""
	input = writeEvents(t, events...)
	store = &memoryStore{}
	require.NoError(t, NewAggregator(Config{WindowSeconds: 60}, store, nil, nil).Run(context.Background(), input))
	require.Len(t, store.metrics, 1)
	assert.Equal(t, tvlMethodNone, store.metrics[0].TVLMethod)
	assert.Nil(t, store.metrics[0].APR)
}

// fakeEth answers balance queries for one pool.
type fakeEth struct{}

func (fakeEth) GetBalance(account common.Address, block string) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(4000))
}

func (fakeEth) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	if block != "latest" && block != fmt.Sprintf("0x%x", 3) {
		return nil, fmt.Errorf("unexpected block %s", block)
	}
	return common.LeftPadBytes(big.NewInt(8000).Bytes(), 32), nil
}

func TestAggregatorChainReserves(t *testing.T) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", fakeEth{}))
	client := chain.NewClientFromRPC(rpc.DialInProc(server))
	defer func() {
		client.Close()
		server.Stop()
	}()

	input := writeEvents(t, sampleEvents()[:3]...)
	store := &memoryStore{}
	require.NoError(t, NewAggregator(Config{WindowSeconds: 3600}, store, client, nil).Run(context.Background(), input))

	require.Len(t, store.metrics, 1)
	m := store.metrics[0]
	assert.Equal(t, tvlMethodBlock, m.TVLMethod)
	assert.Equal(t, "4000", *m.TVLBase)
	assert.Equal(t, "8000", *m.TVLToken)
}

func TestDBStateStore(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	store := &DBStateStore{DB: db, Name: "aggregate"}
	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Save(context.Background(), 42))
	ts, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(42), ts)

	var nilStore *DBStateStore
	require.NoError(t, nilStore.Save(context.Background(), 1))
}
