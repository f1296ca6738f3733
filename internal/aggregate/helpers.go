package aggregate

import (
	"math/big"
	"sort"
	"strings"
	"time"
)

const ratioScale = 18

func computeFeeRates(baseFee, tokenFee, tvlBase, tvlToken *big.Int) (*string, *string) {
	var feeRateBase *string
	var feeRateToken *string

	if rate := computeRateFromInt(baseFee, tvlBase); rate != "" {
		feeRateBase = &rate
	}
	if rate := computeRateFromInt(tokenFee, tvlToken); rate != "" {
		feeRateToken = &rate
	}
	return feeRateBase, feeRateToken
}

func computeRateFromInt(fee *big.Int, tvl *big.Int) string {
	if fee == nil || fee.Sign() == 0 || tvl == nil || tvl.Sign() == 0 {
		return ""
	}
	rat := new(big.Rat).SetFrac(fee, tvl)
	return rat.FloatString(ratioScale)
}

// computeAPR annualizes the window's fees over the pool value. Both are
// priced in the base asset at the closing reserves, so the pool is worth
// 2*tvlBase and token fees convert at tvlBase/tvlToken.
func computeAPR(baseFee, tokenFee, tvlBase, tvlToken *big.Int, windowSeconds uint64) *string {
	if windowSeconds == 0 || tvlBase == nil || tvlToken == nil || tvlBase.Sign() == 0 || tvlToken.Sign() == 0 {
		return nil
	}

	fees := new(big.Rat)
	if baseFee != nil {
		fees.SetInt(baseFee)
	}
	if tokenFee != nil {
		fees.Add(fees, new(big.Rat).SetFrac(new(big.Int).Mul(tokenFee, tvlBase), tvlToken))
	}
	value := new(big.Rat).SetInt(new(big.Int).Lsh(tvlBase, 1))

	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds), 1)
	apr := new(big.Rat).Quo(fees, value)
	apr.Mul(apr, yearSeconds)
	apr.Quo(apr, window)
	val := apr.FloatString(ratioScale)
	return &val
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}

func sortedKeys(acc map[string]*Accumulator) []string {
	keys := make([]string, 0, len(acc))
	for key := range acc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
