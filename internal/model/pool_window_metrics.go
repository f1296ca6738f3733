package model

import "time"

// PoolWindowMetrics stores aggregated metrics for one pool over one window.
// Volumes and fees are raw integer strings; rates are decimal strings.
type PoolWindowMetrics struct {
	ChainID         uint64
	PoolAddress     string
	WindowSizeSecs  int64
	WindowStart     time.Time
	WindowEnd       time.Time
	SwapCount       uint64
	LiquidityEvents uint64
	BaseVolume      string
	TokenVolume     string
	BaseFee         string
	TokenFee        string
	FeeRateBase     *string
	FeeRateToken    *string
	TVLBase         *string
	TVLToken        *string
	APR             *string
	TVLMethod       string
}
