package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// QuoteConfig holds configuration for the quote command. It quotes either
// against explicit reserves or against a deployed exchange read over RPC.
type QuoteConfig struct {
	RPCURL     string
	Exchange   string
	Block      uint64
	Side       string
	Amount     string
	ReserveIn  string
	ReserveOut string
	Decimals   uint8
	LogLevel   string
}

// Live reports whether the quote reads reserves from a chain.
func (c QuoteConfig) Live() bool {
	return c.RPCURL != ""
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("side", "base")
		v.SetDefault("decimals", 18)
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	decimals, err := loadDecimals(v)
	if err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		RPCURL:     v.GetString("rpc"),
		Exchange:   v.GetString("exchange"),
		Block:      v.GetUint64("block"),
		Side:       strings.ToLower(v.GetString("side")),
		Amount:     v.GetString("amount"),
		ReserveIn:  v.GetString("reserve-in"),
		ReserveOut: v.GetString("reserve-out"),
		Decimals:   decimals,
		LogLevel:   v.GetString("log-level"),
	}

	if cfg.Amount == "" {
		return QuoteConfig{}, fmt.Errorf("amount is required")
	}
	if cfg.Live() {
		if cfg.Exchange == "" {
			return QuoteConfig{}, fmt.Errorf("exchange is required with rpc")
		}
		if cfg.Side != "base" && cfg.Side != "token" {
			return QuoteConfig{}, fmt.Errorf("side must be base or token, got %q", cfg.Side)
		}
		return cfg, nil
	}
	if cfg.ReserveIn == "" || cfg.ReserveOut == "" {
		return QuoteConfig{}, fmt.Errorf("reserve-in and reserve-out are required without rpc")
	}
	return cfg, nil
}
