// Package protocol defines the uniform contract every oracle-protocol
// adapter implements (C5), plus the shared BaseClient helpers adapter
// families embed: symbol normalization, price formatting, staleness
// calculation, and the resolve->fetch->parse orchestration. Replaces the
// class-inheritance BaseOracleClient pattern with composition, per the
// re-architecture guidance.
package protocol

import (
	"context"
	"strings"
	"time"

	"github.com/r3e-network/oracle-observatory/internal/domain/feed"
)

// HealthStatus classifies an adapter's checkHealth result.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the result of Client.CheckHealth.
type Health struct {
	Status    HealthStatus
	LatencyMs *float64
	Issues    []string
}

// Capabilities is the static per-adapter capability declaration.
type Capabilities struct {
	PriceFeeds    bool
	Assertions    bool
	Disputes      bool
	VRF           bool
	CustomData    bool
	BatchQueries  bool
	Websocket     bool
}

// Client is the uniform contract every protocol adapter implements.
type Client interface {
	// FetchPrice returns the symbol's current feed, or (nil, nil) if the
	// symbol is unsupported. Transport/decode failures return a
	// PriceFetchError.
	FetchPrice(ctx context.Context, symbol string) (*feed.UnifiedPriceFeed, error)
	// FetchAllFeeds never fails wholesale; per-symbol failures are logged
	// and silently dropped from the result.
	FetchAllFeeds(ctx context.Context) []feed.UnifiedPriceFeed
	// CheckHealth probes a canary symbol.
	CheckHealth(ctx context.Context) Health
	// Capabilities is static per adapter.
	Capabilities() Capabilities
	// Protocol names which protocol family this client implements.
	Protocol() string
	// Chain names which chain this client instance targets.
	Chain() string
}

// BaseClient factors out the concerns shared by every adapter family:
// symbol normalization, decimal formatting, staleness calculation, and a
// canary symbol used by CheckHealth.
type BaseClient struct {
	ProtocolName string
	ChainName    string
	CanarySymbol string
}

func (b BaseClient) Protocol() string { return b.ProtocolName }
func (b BaseClient) Chain() string    { return b.ChainName }

// NormalizeSymbol upper-cases and trims a symbol, e.g. " eth/usd " ->
// "ETH/USD".
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// FormatPrice converts a raw integer reading to its floating-point
// representation: raw / 10^decimals.
func FormatPrice(raw int64, decimals int) float64 {
	return feed.FormatPrice(bigFromInt64(raw), decimals)
}

// CalculateStalenessSeconds returns now - timestampSec, in seconds.
func CalculateStalenessSeconds(now time.Time, timestampSec int64) int64 {
	s := now.Unix() - timestampSec
	if s < 0 {
		return 0
	}
	return s
}

// BaseAndQuote splits a "BASE/QUOTE" symbol into its two legs. If the
// symbol carries no separator, quote is returned empty.
func BaseAndQuote(symbol string) (base, quote string) {
	parts := strings.SplitN(NormalizeSymbol(symbol), "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
