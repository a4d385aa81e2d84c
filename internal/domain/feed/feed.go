// Package feed holds the UnifiedPriceFeed record every protocol adapter
// normalizes its reads into.
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// UnifiedPriceFeed is the normalized record every protocol adapter produces.
// priceRaw is the source of truth; Price is a floating-point convenience
// derived from it.
type UnifiedPriceFeed struct {
	ID               string
	InstanceID       string
	Protocol         string
	Chain            string
	Symbol           string
	BaseAsset        string
	QuoteAsset       string
	Price            float64
	PriceRaw         *big.Int
	Decimals         int
	TimestampMs      int64
	Confidence       *float64
	Sources          []string
	IsStale          bool
	StalenessSeconds int64
}

// FormatPrice converts an arbitrary-precision raw integer to its
// floating-point representation: raw / 10^decimals.
func FormatPrice(raw *big.Int, decimals int) float64 {
	if raw == nil {
		return 0
	}
	if decimals <= 0 {
		f := new(big.Float).SetInt(raw)
		v, _ := f.Float64()
		return v
	}
	divisor := new(big.Float).SetInt(pow10(decimals))
	value := new(big.Float).Quo(new(big.Float).SetInt(raw), divisor)
	v, _ := value.Float64()
	return v
}

func pow10(decimals int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// DeterministicID derives a feed record's identity from (protocol, chain,
// symbol, timestamp-or-round) so repeat fetches of the same round collapse
// to one logical record.
func DeterministicID(protocol, chain, symbol string, timestampOrRound int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", protocol, chain, symbol, timestampOrRound)))
	return hex.EncodeToString(h[:16])
}
