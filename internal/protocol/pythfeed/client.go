// Package pythfeed implements the single-contract + feed-id protocol-
// client family (C6): Pyth's on-chain getPrice(bytes32), and any other
// protocol shaped the same way (one contract, a 32-byte feed id per
// symbol). Grounded on the EVM-aggregator adapter's eth_call/word-decode
// pattern, generalized to a single shared contract address.
package pythfeed

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

// getPrice(bytes32) function selector: keccak256("getPrice(bytes32)")[:4].
const getPriceSelector = "0x31d98b3f"

const batchLimit = 10

// Client implements protocol.Client for the single-contract + feed-id
// family.
type Client struct {
	protocol.BaseClient
	contractAddress string
	rpc             *chainrpc.Client
	registry        *registry.Registry
	logger          *logging.Logger
	thresholdSeconds int64
}

// New constructs a pythfeed client for one (protocol, chain) pair, whose
// shared contract address is resolved once at construction time.
func New(protocolName, chainName string, rpc *chainrpc.Client, reg *registry.Registry, logger *logging.Logger, thresholdSeconds int64) *Client {
	address, _ := reg.GetSingleContractAddress(protocolName, chainName)
	return &Client{
		BaseClient: protocol.BaseClient{
			ProtocolName: protocolName,
			ChainName:    chainName,
			CanarySymbol: "ETH/USD",
		},
		contractAddress:  address,
		rpc:              rpc,
		registry:         reg,
		logger:           logger,
		thresholdSeconds: thresholdSeconds,
	}
}

func (c *Client) Capabilities() protocol.Capabilities {
	return protocol.Capabilities{PriceFeeds: true, BatchQueries: true}
}

// FetchPrice resolves symbol's feed id and reads getPrice(id) from the
// shared contract. Returns (nil, nil) if either the contract address or
// the symbol's feed id is unregistered.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (*feed.UnifiedPriceFeed, error) {
	if c.contractAddress == "" {
		return nil, nil
	}
	feedID, ok := c.registry.GetFeedID(c.ProtocolName, c.ChainName, symbol)
	if !ok || !isValidFeedID(feedID) {
		return nil, nil
	}

	price, conf, expo, publishTime, err := c.getPrice(ctx, feedID)
	if err != nil {
		return nil, errors.PriceFetchError(c.ProtocolName, c.ChainName, symbol, err)
	}

	decimals := absInt(expo)
	base, quote := protocol.BaseAndQuote(symbol)
	timestamp := time.Unix(publishTime.Int64(), 0)
	f := freshness.Calculate(time.Now(), timestamp, c.thresholdSeconds)

	result := feed.UnifiedPriceFeed{
		ID:               feed.DeterministicID(c.ProtocolName, c.ChainName, symbol, publishTime.Int64()),
		Protocol:         c.ProtocolName,
		Chain:            c.ChainName,
		Symbol:           protocol.NormalizeSymbol(symbol),
		BaseAsset:        base,
		QuoteAsset:       quote,
		Price:            feed.FormatPrice(price, decimals),
		PriceRaw:         price,
		Decimals:         decimals,
		Confidence:       confidencePercent(price, conf),
		TimestampMs:      timestamp.UnixMilli(),
		IsStale:          f.IsStale,
		StalenessSeconds: f.StalenessSeconds,
		Sources:          []string{c.contractAddress},
	}
	return &result, nil
}

// FetchAllFeeds fetches every registered symbol concurrently with at most
// batchLimit inflight calls; per-symbol failures are logged and dropped.
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

// CheckHealth probes the canary symbol.
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
	return protocol.Health{Status: protocol.HealthHealthy, LatencyMs: &latency}
}

// getPrice calls getPrice(feedID) and decodes the 4-word
// (price int64, conf uint64, expo int32, publishTime uint) tuple.
func (c *Client) getPrice(ctx context.Context, feedID string) (price, conf, expo, publishTime *big.Int, err error) {
	calldata := getPriceSelector + strings.TrimPrefix(padFeedID(feedID), "0x")
	hex, err := c.rpc.EthCall(ctx, c.contractAddress, calldata)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("getPrice: %w", err)
	}

	data := strings.TrimPrefix(hex, "0x")
	if len(data) < 256 {
		return nil, nil, nil, nil, fmt.Errorf("getPrice: short response (%d hex chars)", len(data))
	}

	price = hexWordSigned(data, 0)
	conf = hexWord(data, 1)
	expo = hexWordSigned(data, 2)
	publishTime = hexWord(data, 3)
	return price, conf, expo, publishTime, nil
}

func padFeedID(feedID string) string {
	id := strings.TrimPrefix(feedID, "0x")
	for len(id) < 64 {
		id = "0" + id
	}
	return "0x" + id
}

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

func hexWordSigned(data string, n int) *big.Int {
	v := hexWord(data, n)
	topBit := new(big.Int).Lsh(big.NewInt(1), 255)
	if v.Cmp(topBit) >= 0 {
		modulus := new(big.Int).Lsh(big.NewInt(1), 256)
		v = new(big.Int).Sub(v, modulus)
	}
	return v
}

func absInt(v *big.Int) int {
	if v.Sign() < 0 {
		return int(-v.Int64())
	}
	return int(v.Int64())
}

// confidencePercent expresses conf as a percentage of |price|, guarding
// against division by zero.
func confidencePercent(price, conf *big.Int) *float64 {
	if price.Sign() == 0 {
		return nil
	}
	absPrice := new(big.Int).Abs(price)
	pct := new(big.Float).Quo(new(big.Float).SetInt(conf), new(big.Float).SetInt(absPrice))
	pct.Mul(pct, big.NewFloat(100))
	result, _ := pct.Float64()
	return &result
}

// isValidFeedID rejects placeholder/invalid feed ids: any non-validating
// id is treated as unsupported rather than called.
func isValidFeedID(feedID string) bool {
	id := strings.TrimPrefix(strings.TrimPrefix(feedID, "0x"), "0X")
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, ch := range id {
		isHex := (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}
