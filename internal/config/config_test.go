package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulateFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	flags.String("ops", "", "")
	flags.String("sink", "jsonl", "")
	flags.Uint64("batch-size", 100, "")
	flags.Bool("halt-on-error", false, "")
	flags.String("state-backend", "file", "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadSimulatePrecedence(t *testing.T) {
	t.Setenv("AMM_BATCH_SIZE", "7")
	t.Setenv("AMM_GENESIS_TIME", "2024-01-01T00:00:00Z")

	cfg, err := LoadSimulate("", simulateFlags(t, "--ops", "ops.jsonl", "--halt-on-error"))
	require.NoError(t, err)
	assert.Equal(t, "ops.jsonl", cfg.Ops)
	assert.True(t, cfg.HaltOnError)
	// env wins over an unchanged flag default
	assert.Equal(t, uint64(7), cfg.BatchSize)
	assert.Equal(t, uint64(1704067200), cfg.GenesisTime)
	assert.Equal(t, uint64(31337), cfg.ChainID)
	assert.Equal(t, uint8(18), cfg.Decimals)
	assert.Equal(t, "file", cfg.State.Backend)
	assert.Equal(t, "./data/world.json", cfg.State.Path)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryBackoff)

	cfg, err = LoadSimulate("", simulateFlags(t, "--ops", "ops.jsonl", "--batch-size", "3"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cfg.BatchSize)
}

func TestLoadSimulateValidation(t *testing.T) {
	_, err := LoadSimulate("", simulateFlags(t))
	require.Error(t, err)

	_, err = LoadSimulate("", simulateFlags(t, "--ops", "x", "--sink", "kafka"))
	require.Error(t, err)

	_, err = LoadSimulate("", simulateFlags(t, "--ops", "x", "--state-backend", "postgres"))
	require.Error(t, err)
}

func TestLoadAggregateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pg-dsn: postgres://localhost/amm\nwindow: 1h\nrecompute-from: \"1700000000\"\n"), 0o644))

	cfg, err := LoadAggregate(path, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Window)
	assert.Equal(t, uint64(1_700_000_000), cfg.RecomputeFrom)
	assert.Equal(t, "aggregate", cfg.StateName)
	assert.Equal(t, 1000, cfg.BatchSize)

	_, err = LoadAggregate(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoadIngestLists(t *testing.T) {
	t.Setenv("AMM_RPC", "http://localhost:8545")
	t.Setenv("AMM_EXCHANGE", "0x01, 0x02,,")
	cfg, err := LoadIngest("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01", "0x02"}, cfg.Exchanges)
	assert.True(t, cfg.CheckpointEnabled)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
}

func TestLoadDecodeTopicMap(t *testing.T) {
	t.Setenv("AMM_TOPIC0_MAP", "0xabc=TokenPurchase, bad ,0xdef=")
	cfg, err := LoadDecode("", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0xabc": "TokenPurchase"}, cfg.Topic0Map)
	assert.Equal(t, "none", cfg.State.Backend)

	t.Setenv("AMM_INCLUDE_LIVE_META", "true")
	_, err = LoadDecode("", nil)
	require.Error(t, err)
}

func TestLoadQuote(t *testing.T) {
	t.Setenv("AMM_AMOUNT", "1.5")
	_, err := LoadQuote("", nil)
	require.Error(t, err)

	t.Setenv("AMM_RESERVE_IN", "100")
	t.Setenv("AMM_RESERVE_OUT", "200")
	cfg, err := LoadQuote("", nil)
	require.NoError(t, err)
	assert.False(t, cfg.Live())
	assert.Equal(t, "base", cfg.Side)

	t.Setenv("AMM_RPC", "http://localhost:8545")
	t.Setenv("AMM_EXCHANGE", "0x01")
	t.Setenv("AMM_SIDE", "sideways")
	_, err = LoadQuote("", nil)
	require.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("")
	require.NoError(t, err)
	assert.Zero(t, ts)

	ts, err = ParseTimestamp("1970-01-01T00:01:00Z")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), ts)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}

func TestLoadSimulateSinks(t *testing.T) {
	t.Setenv("AMM_SINK", "jsonl, SQLite")
	t.Setenv("AMM_SQLITE", "/tmp/amm.db")
	cfg, err := LoadSimulate("", simulateFlags(t, "--ops", "ops.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, []string{"jsonl", "sqlite"}, cfg.Sink.Kinds)
	assert.Equal(t, "./data/logs.jsonl", cfg.Sink.Out)
	assert.Equal(t, "/tmp/amm.db", cfg.Sink.SQLitePath)

	t.Setenv("AMM_SINK", "postgres")
	_, err = LoadSimulate("", simulateFlags(t, "--ops", "ops.jsonl"))
	require.Error(t, err)

	t.Setenv("AMM_PG_DSN", "postgres://localhost/amm")
	cfg, err = LoadSimulate("", simulateFlags(t, "--ops", "ops.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/amm", cfg.Sink.PGDSN)
}

func TestLoadDecimalsRange(t *testing.T) {
	t.Setenv("AMM_DECIMALS", "256")
	_, err := LoadSimulate("", simulateFlags(t, "--ops", "ops.jsonl"))
	require.ErrorContains(t, err, "decimals 256 out of range")
	_, err = LoadServe("", nil)
	require.Error(t, err)
	_, err = LoadDecode("", nil)
	require.Error(t, err)
	t.Setenv("AMM_AMOUNT", "1")
	t.Setenv("AMM_RESERVE_IN", "100")
	t.Setenv("AMM_RESERVE_OUT", "200")
	_, err = LoadQuote("", nil)
	require.Error(t, err)

	t.Setenv("AMM_DECIMALS", "77")
	cfg, err := LoadQuote("", nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(77), cfg.Decimals)
}

func TestLoadOptionalSources(t *testing.T) {
	t.Setenv("AMM_METRICS_LISTEN", "127.0.0.1:9100")
	cfg, err := LoadSimulate("", simulateFlags(t, "--ops", "ops.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsListen)

	t.Setenv("AMM_IN_SQLITE", "./data/amm.db")
	decode, err := LoadDecode("", nil)
	require.NoError(t, err)
	assert.Equal(t, "./data/amm.db", decode.InSQLite)
}
