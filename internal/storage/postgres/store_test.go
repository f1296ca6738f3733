package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/model"
)

// openTestStore connects to AMM_TEST_PG_DSN and skips when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AMM_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AMM_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestStateRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("test-%d", time.Now().UnixNano())

	_, ok, err := store.LoadState(ctx, name)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SaveState(ctx, name, 10))
	require.NoError(t, store.SaveState(ctx, name, 20))
	ts, ok, err := store.LoadState(ctx, name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(20), ts)

	_, _, err = store.LoadState(ctx, "")
	require.Error(t, err)
}

func TestWorldStateRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("world-%d", time.Now().UnixNano())

	state := model.NewWorldState()
	state.Seq = 7
	state.LastApplied = 6
	state.Bank["0x00000000000000000000000000000000000000a1"] = "1000"
	require.NoError(t, store.SaveWorldState(ctx, name, state))

	got, ok, err := store.LoadWorldState(ctx, name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), got.Seq)
	assert.Equal(t, int64(6), got.LastApplied)
	assert.Equal(t, "1000", got.Bank["0x00000000000000000000000000000000000000a1"])
}

func TestUpsertMetricsAndLogs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	pool := fmt.Sprintf("0xtest%d", time.Now().UnixNano())

	rec := model.LogRecord{ChainID: 31337, BlockNumber: 1, TxHash: "0x01", Address: pool, Topics: []string{"0xaa"}, Data: "0x", Timestamp: 12}
	require.NoError(t, store.PutLogBatch([]model.LogRecord{rec}))
	require.NoError(t, store.PutLogBatch([]model.LogRecord{rec}))

	require.NoError(t, store.UpsertPools(ctx, []model.Pool{{ChainID: 31337, Address: pool, Token: "0xtoken", Symbol: "TKN", CreatedSeq: 1}}))

	apr := "1.5"
	metrics := model.PoolWindowMetrics{
		ChainID:        31337,
		PoolAddress:    pool,
		WindowSizeSecs: 60,
		WindowStart:    time.Unix(0, 0).UTC(),
		WindowEnd:      time.Unix(60, 0).UTC(),
		SwapCount:      1,
		BaseVolume:     "100",
		TokenVolume:    "180",
		BaseFee:        "1",
		TokenFee:       "0",
		APR:            &apr,
		TVLMethod:      "event_deltas",
	}
	require.NoError(t, store.UpsertWindowMetrics(ctx, []model.PoolWindowMetrics{metrics}))
	metrics.SwapCount = 2
	require.NoError(t, store.UpsertWindowMetrics(ctx, []model.PoolWindowMetrics{metrics}))
}
