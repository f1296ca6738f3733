package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen   string
	State    StateConfig
	Registry string
	Decimals uint8
	LogLevel string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := load(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("listen", ":8080")
		v.SetDefault("decimals", 18)
		stateDefaults(v)
	})
	if err != nil {
		return ServeConfig{}, err
	}

	state, err := loadState(v)
	if err != nil {
		return ServeConfig{}, err
	}
	decimals, err := loadDecimals(v)
	if err != nil {
		return ServeConfig{}, err
	}

	return ServeConfig{
		Listen:   v.GetString("listen"),
		State:    state,
		Registry: v.GetString("registry"),
		Decimals: decimals,
		LogLevel: v.GetString("log-level"),
	}, nil
}
