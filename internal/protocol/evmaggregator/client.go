// Package evmaggregator implements the EVM-aggregator protocol-client
// family (C6): Chainlink, Flux v3, on-chain RedStone, and API3's proxy
// read, all of which expose a latestRoundData()-shaped view function.
package evmaggregator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/r3e-network/oracle-observatory/infrastructure/errors"
	"github.com/r3e-network/oracle-observatory/infrastructure/logging"
	"github.com/r3e-network/oracle-observatory/internal/batch"
	"github.com/r3e-network/oracle-observatory/internal/chainrpc"
	"github.com/r3e-network/oracle-observatory/internal/domain/feed"
	"github.com/r3e-network/oracle-observatory/internal/freshness"
	"github.com/r3e-network/oracle-observatory/internal/protocol"
	"github.com/r3e-network/oracle-observatory/internal/registry"
)

// latestRoundData() function selector: keccak256("latestRoundData()")[:4].
const latestRoundDataSelector = "0xfeaf968c"

// decimals() function selector: keccak256("decimals()")[:4].
const decimalsSelector = "0x313ce567"

const batchLimit = 10

// Client implements protocol.Client for the EVM-aggregator family.
type Client struct {
	protocol.BaseClient
	rpc              *chainrpc.Client
	registry         *registry.Registry
	logger           *logging.Logger
	thresholdSeconds int64
	decimalsCache    map[string]int
}

// New constructs an EVM-aggregator client for one (protocol, chain) pair.
func New(protocolName, chainName string, rpc *chainrpc.Client, reg *registry.Registry, logger *logging.Logger, thresholdSeconds int64) *Client {
	return &Client{
		BaseClient: protocol.BaseClient{
			ProtocolName: protocolName,
			ChainName:    chainName,
			CanarySymbol: "ETH/USD",
		},
		rpc:              rpc,
		registry:         reg,
		logger:           logger,
		thresholdSeconds: thresholdSeconds,
		decimalsCache:    make(map[string]int),
	}
}

func (c *Client) Capabilities() protocol.Capabilities {
	return protocol.Capabilities{PriceFeeds: true, BatchQueries: true}
}

// FetchPrice resolves symbol's per-feed contract address, calls
// latestRoundData() and decimals(), and returns the normalized reading.
// Returns (nil, nil) if the symbol has no registered contract address.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (*feed.UnifiedPriceFeed, error) {
	address, ok := c.registry.GetContractAddress(c.ProtocolName, c.ChainName, symbol)
	if !ok {
		return nil, nil
	}
	if !isValidAddress(address) {
		return nil, nil
	}

	roundID, answer, startedAt, updatedAt, answeredInRound, err := c.latestRoundData(ctx, address)
	if err != nil {
		return nil, errors.PriceFetchError(c.ProtocolName, c.ChainName, symbol, err)
	}

	decimals, err := c.decimals(ctx, address)
	if err != nil {
		return nil, errors.PriceFetchError(c.ProtocolName, c.ChainName, symbol, err)
	}

	base, quote := protocol.BaseAndQuote(symbol)
	timestamp := time.Unix(updatedAt.Int64(), 0)
	f := freshness.Calculate(time.Now(), timestamp, c.thresholdSeconds)

	result := feed.UnifiedPriceFeed{
		ID:               feed.DeterministicID(c.ProtocolName, c.ChainName, symbol, roundID.Int64()),
		Protocol:         c.ProtocolName,
		Chain:            c.ChainName,
		Symbol:           protocol.NormalizeSymbol(symbol),
		BaseAsset:        base,
		QuoteAsset:       quote,
		Price:            feed.FormatPrice(answer, decimals),
		PriceRaw:         answer,
		Decimals:         decimals,
		TimestampMs:      timestamp.UnixMilli(),
		IsStale:          f.IsStale,
		StalenessSeconds: f.StalenessSeconds,
		Sources:          []string{address},
	}

	_ = startedAt
	_ = answeredInRound
	return &result, nil
}

// FetchAllFeeds fetches every registered symbol on this (protocol, chain)
// concurrently with at most batchLimit inflight calls; per-symbol failures
// are logged and dropped.
func (c *Client) FetchAllFeeds(ctx context.Context) []feed.UnifiedPriceFeed {
	symbols := c.registry.GetAvailableSymbols(c.ProtocolName, c.ChainName)
	outcomes := batch.RunBounded(ctx, symbols, batchLimit, func(ctx context.Context, symbol string) (*feed.UnifiedPriceFeed, error) {
		return c.FetchPrice(ctx, symbol)
	})

	results := make([]feed.UnifiedPriceFeed, 0, len(outcomes))
	for i, o := range outcomes {
		if o.Status == batch.Rejected {
			if c.logger != nil {
				c.logger.LogPriceFetch(ctx, c.ProtocolName, c.ChainName, symbols[i], o.Reason)
			}
			continue
		}
		if o.Value != nil {
			results = append(results, *o.Value)
		}
	}
	return results
}

// CheckHealth probes the canary symbol: a fetch failure is unhealthy, a
// returning-but-stale reading is degraded.
func (c *Client) CheckHealth(ctx context.Context) protocol.Health {
	start := time.Now()
	f, err := c.FetchPrice(ctx, c.CanarySymbol)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		return protocol.Health{Status: protocol.HealthUnhealthy, Issues: []string{err.Error()}}
	}
	if f == nil {
		return protocol.Health{Status: protocol.HealthUnhealthy, Issues: []string{"canary symbol not registered"}}
	}
	if f.IsStale {
		return protocol.Health{Status: protocol.HealthDegraded, LatencyMs: &latency, Issues: []string{"canary feed is stale"}}
	}
	if f.PriceRaw != nil && f.PriceRaw.Sign() == 0 {
		return protocol.Health{Status: protocol.HealthDegraded, LatencyMs: &latency, Issues: []string{"canary answer is zero"}}
	}
	return protocol.Health{Status: protocol.HealthHealthy, LatencyMs: &latency}
}

func (c *Client) latestRoundData(ctx context.Context, address string) (roundID, answer, startedAt, updatedAt, answeredInRound *big.Int, err error) {
	hex, err := c.rpc.EthCall(ctx, address, latestRoundDataSelector)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("latestRoundData: %w", err)
	}

	data := strings.TrimPrefix(hex, "0x")
	if len(data) < 320 {
		return nil, nil, nil, nil, nil, fmt.Errorf("latestRoundData: short response (%d hex chars)", len(data))
	}

	roundID = hexWord(data, 0)
	answer = hexWordSigned(data, 1)
	startedAt = hexWord(data, 2)
	updatedAt = hexWord(data, 3)
	answeredInRound = hexWord(data, 4)
	return roundID, answer, startedAt, updatedAt, answeredInRound, nil
}

func (c *Client) decimals(ctx context.Context, address string) (int, error) {
	if d, ok := c.decimalsCache[address]; ok {
		return d, nil
	}

	hex, err := c.rpc.EthCall(ctx, address, decimalsSelector)
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	word := hexWord(strings.TrimPrefix(hex, "0x"), 0)
	d := int(word.Int64())
	c.decimalsCache[address] = d
	return d, nil
}

// hexWord decodes the n-th 32-byte (64 hex char) word as an unsigned
// big.Int.
func hexWord(data string, n int) *big.Int {
	start := n * 64
	end := start + 64
	if end > len(data) {
		return big.NewInt(0)
	}
	v := new(big.Int)
	v.SetString(data[start:end], 16)
	return v
}

// hexWordSigned decodes the n-th word as a two's-complement int256.
func hexWordSigned(data string, n int) *big.Int {
	v := hexWord(data, n)
	// int256 top bit set => negative; subtract 2^256.
	topBit := new(big.Int).Lsh(big.NewInt(1), 255)
	if v.Cmp(topBit) >= 0 {
		modulus := new(big.Int).Lsh(big.NewInt(1), 256)
		v = new(big.Int).Sub(v, modulus)
	}
	return v
}

// isValidAddress rejects placeholder/invalid hex strings per the open
// question in the design notes: any non-validating address is treated as
// unsupported rather than called.
func isValidAddress(address string) bool {
	a := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if len(a) != 40 {
		return false
	}
	for _, ch := range a {
		isHex := (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}
