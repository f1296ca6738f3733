package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"liquidityEngine/internal/units"
)

// EnvPrefix prefixes every environment override, e.g. AMM_BATCH_SIZE.
const EnvPrefix = "AMM"

// StateConfig selects where a world snapshot lives.
type StateConfig struct {
	Backend string
	Path    string
	Name    string
	PGDSN   string
}

// SinkConfig selects where log records are written. Several kinds may be
// combined; each batch goes to every sink in order.
type SinkConfig struct {
	Kinds      []string
	Out        string
	SQLitePath string
	PGDSN      string
}

// IngestConfig holds configuration for the ingest command.
type IngestConfig struct {
	RPCURL            string
	FromBlock         uint64
	ToBlock           uint64
	Exchanges         []string
	Topic0            []string
	BatchSize         uint64
	Sink              SinkConfig
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// LoadIngest merges config file, environment variables, and flags into IngestConfig.
func LoadIngest(cfgFile string, flags *pflag.FlagSet) (IngestConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("batch-size", uint64(2000))
		sinkDefaults(v)
		v.SetDefault("checkpoint", "./data/checkpoint.json")
		v.SetDefault("checkpoint-enabled", true)
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
	})
	if err != nil {
		return IngestConfig{}, err
	}

	sink, err := loadSink(v)
	if err != nil {
		return IngestConfig{}, err
	}

	cfg := IngestConfig{
		RPCURL:            v.GetString("rpc"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Exchanges:         getStringSlice(v, "exchange"),
		Topic0:            getStringSlice(v, "topic0"),
		BatchSize:         v.GetUint64("batch-size"),
		Sink:              sink,
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return IngestConfig{}, fmt.Errorf("rpc is required")
	}
	return cfg, nil
}

// load builds a viper instance with the shared precedence: flags, then
// AMM_* environment (a .env file in the working directory is read first),
// then the config file, then defaults.
func load(cfgFile string, flags *pflag.FlagSet, defaults func(v *viper.Viper)) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func stateDefaults(v *viper.Viper) {
	v.SetDefault("state-backend", "file")
	v.SetDefault("state", "./data/world.json")
	v.SetDefault("state-name", "default")
}

func loadState(v *viper.Viper) (StateConfig, error) {
	cfg := StateConfig{
		Backend: strings.ToLower(v.GetString("state-backend")),
		Path:    v.GetString("state"),
		Name:    v.GetString("state-name"),
		PGDSN:   v.GetString("pg-dsn"),
	}
	switch cfg.Backend {
	case "none":
	case "file", "sqlite":
		if cfg.Path == "" {
			return StateConfig{}, fmt.Errorf("state path is required for %s backend", cfg.Backend)
		}
	case "postgres":
		if cfg.PGDSN == "" {
			return StateConfig{}, fmt.Errorf("pg-dsn is required for postgres backend")
		}
	default:
		return StateConfig{}, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
	return cfg, nil
}

func sinkDefaults(v *viper.Viper) {
	v.SetDefault("sink", "jsonl")
	v.SetDefault("out", "./data/logs.jsonl")
	v.SetDefault("sqlite", "./data/amm.db")
}

func loadSink(v *viper.Viper) (SinkConfig, error) {
	cfg := SinkConfig{
		Kinds:      getStringSlice(v, "sink"),
		Out:        v.GetString("out"),
		SQLitePath: v.GetString("sqlite"),
		PGDSN:      v.GetString("pg-dsn"),
	}
	for i, kind := range cfg.Kinds {
		kind = strings.ToLower(kind)
		cfg.Kinds[i] = kind
		switch kind {
		case "none":
		case "jsonl":
			if cfg.Out == "" {
				return SinkConfig{}, fmt.Errorf("out is required for jsonl sink")
			}
		case "sqlite":
			if cfg.SQLitePath == "" {
				return SinkConfig{}, fmt.Errorf("sqlite path is required for sqlite sink")
			}
		case "postgres":
			if cfg.PGDSN == "" {
				return SinkConfig{}, fmt.Errorf("pg-dsn is required for postgres sink")
			}
		default:
			return SinkConfig{}, fmt.Errorf("unknown sink %q", kind)
		}
	}
	return cfg, nil
}

// loadDecimals reads the decimals key, rejecting values whose scale
// factor does not fit 256 bits.
func loadDecimals(v *viper.Viper) (uint8, error) {
	d := v.GetUint("decimals")
	if d > units.MaxDecimals {
		return 0, fmt.Errorf("decimals %d out of range, max %d", d, units.MaxDecimals)
	}
	return uint8(d), nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
