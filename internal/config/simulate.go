package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Ops          string
	Sink         SinkConfig
	State        StateConfig
	ChainID      uint64
	Registry     string
	Decimals     uint8
	BatchSize    uint64
	HaltOnError  bool
	MaxRetries   int
	RetryBackoff time.Duration
	GenesisTime  uint64
	BlockTime    uint64
	LogLevel     string
	// MetricsListen serves /metrics and the pool API while the run lasts.
	MetricsListen string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		sinkDefaults(v)
		v.SetDefault("chain-id", uint64(31337))
		v.SetDefault("decimals", 18)
		v.SetDefault("batch-size", uint64(100))
		v.SetDefault("max-retries", 3)
		v.SetDefault("retry-backoff", 200*time.Millisecond)
		v.SetDefault("block-time", uint64(12))
		stateDefaults(v)
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	state, err := loadState(v)
	if err != nil {
		return SimulateConfig{}, err
	}
	sink, err := loadSink(v)
	if err != nil {
		return SimulateConfig{}, err
	}
	genesis, err := ParseTimestamp(v.GetString("genesis-time"))
	if err != nil {
		return SimulateConfig{}, fmt.Errorf("parse genesis-time: %w", err)
	}

	decimals, err := loadDecimals(v)
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Ops:           v.GetString("ops"),
		Sink:          sink,
		State:         state,
		ChainID:       v.GetUint64("chain-id"),
		Registry:      v.GetString("registry"),
		Decimals:      decimals,
		BatchSize:     v.GetUint64("batch-size"),
		HaltOnError:   v.GetBool("halt-on-error"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		GenesisTime:   genesis,
		BlockTime:     v.GetUint64("block-time"),
		MetricsListen: v.GetString("metrics-listen"),
		LogLevel:      v.GetString("log-level"),
	}
	if cfg.Ops == "" {
		return SimulateConfig{}, fmt.Errorf("ops is required")
	}
	return cfg, nil
}
