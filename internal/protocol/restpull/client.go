// Package restpull implements the REST-pull protocol-client family (C6):
// DIA, Band, and Flux v1, each of which exposes a per-asset JSON endpoint
// shaped {price|value, timestamp, decimals?, source?, roundId?}. Parsed
// with gjson rather than a struct-tagged decode, since field names and
// presence vary by provider.
package restpull

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/oracle-observatory/infrastructure/errors"
	"github.com/r3e-network/oracle-observatory/infrastructure/logging"
	"github.com/r3e-network/oracle-observatory/internal/batch"
	"github.com/r3e-network/oracle-observatory/internal/domain/feed"
	"github.com/r3e-network/oracle-observatory/internal/freshness"
	"github.com/r3e-network/oracle-observatory/internal/protocol"
	"github.com/r3e-network/oracle-observatory/internal/registry"
)

const batchLimit = 10

// defaultDecimals is used when a provider's response omits the decimals
// field; most REST-pull providers report already-scaled decimal prices.
const defaultDecimals = 0

// Client implements protocol.Client for the REST-pull family.
type Client struct {
	protocol.BaseClient
	baseURL          string
	bearerToken      string
	httpClient       *http.Client
	registry         *registry.Registry
	logger           *logging.Logger
	thresholdSeconds int64
	// batchParam, if non-empty, names the query parameter used to request
	// several symbols in one call (comma-joined). Empty means the provider
	// has no native batch endpoint and FetchAllFeeds issues N parallel GETs.
	batchParam string
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithBearerToken attaches an optional bearer token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// WithBatchParam declares the query parameter a provider uses for a
// native, comma-joined multi-symbol request.
func WithBatchParam(param string) Option {
	return func(c *Client) { c.batchParam = param }
}

// WithHTTPClient overrides the default HTTP client (tests use this to
// point at an httptest.Server with a short timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New constructs a REST-pull client for one (protocol, chain) pair.
func New(protocolName, chainName, baseURL string, reg *registry.Registry, logger *logging.Logger, thresholdSeconds int64, opts ...Option) *Client {
	c := &Client{
		BaseClient: protocol.BaseClient{
			ProtocolName: protocolName,
			ChainName:    chainName,
			CanarySymbol: "ETH/USD",
		},
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		registry:         reg,
		logger:           logger,
		thresholdSeconds: thresholdSeconds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Capabilities() protocol.Capabilities {
	return protocol.Capabilities{PriceFeeds: true, BatchQueries: c.batchParam != ""}
}

// FetchPrice GETs the per-asset endpoint for symbol and parses its
// response. Returns (nil, nil) if symbol is not in the registered asset
// list for this (protocol, chain).
func (c *Client) FetchPrice(ctx context.Context, symbol string) (*feed.UnifiedPriceFeed, error) {
	if !c.isRegistered(symbol) {
		return nil, nil
	}

	body, err := c.get(ctx, c.assetURL(symbol))
	if err != nil {
		return nil, errors.PriceFetchError(c.ProtocolName, c.ChainName, symbol, err)
	}

	result, err := c.parse(symbol, body)
	if err != nil {
		return nil, errors.PriceFetchError(c.ProtocolName, c.ChainName, symbol, err)
	}
	return result, nil
}

// FetchAllFeeds issues one native batch request if the provider supports
// it, otherwise N parallel per-symbol GETs (at most batchLimit inflight).
// Per-symbol failures are logged and dropped; the call never fails
// wholesale.
func (c *Client) FetchAllFeeds(ctx context.Context) []feed.UnifiedPriceFeed {
	symbols := c.registry.GetAvailableSymbols(c.ProtocolName, c.ChainName)

	if c.batchParam != "" {
		return c.fetchBatch(ctx, symbols)
	}

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

// fetchBatch issues a single comma-joined request and parses a JSON array
// response, one object per symbol, best-effort keyed by a "symbol" field.
func (c *Client) fetchBatch(ctx context.Context, symbols []string) []feed.UnifiedPriceFeed {
	if len(symbols) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s?%s=%s", c.baseURL, c.batchParam, strings.Join(symbols, ","))
	body, err := c.get(ctx, url)
	if err != nil {
		if c.logger != nil {
			c.logger.LogPriceFetch(ctx, c.ProtocolName, c.ChainName, strings.Join(symbols, ","), err)
		}
		return nil
	}

	results := make([]feed.UnifiedPriceFeed, 0, len(symbols))
	entries := gjson.ParseBytes(body).Array()
	for _, entry := range entries {
		symbol := entry.Get("symbol").String()
		if symbol == "" {
			continue
		}
		parsed, err := c.parseEntry(symbol, entry)
		if err != nil {
			if c.logger != nil {
				c.logger.LogPriceFetch(ctx, c.ProtocolName, c.ChainName, symbol, err)
			}
			continue
		}
		results = append(results, *parsed)
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

func (c *Client) isRegistered(symbol string) bool {
	for _, s := range c.registry.GetAvailableSymbols(c.ProtocolName, c.ChainName) {
		if s == protocol.NormalizeSymbol(symbol) {
			return true
		}
	}
	return false
}

func (c *Client) assetURL(symbol string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.ReplaceAll(protocol.NormalizeSymbol(symbol), "/", "-"))
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// parse converts a single-asset JSON body into a UnifiedPriceFeed, reading
// either "price" or "value" for the reading and defaulting decimals/source
// when the provider omits them.
func (c *Client) parse(symbol string, body []byte) (*feed.UnifiedPriceFeed, error) {
	return c.parseEntry(symbol, gjson.ParseBytes(body))
}

func (c *Client) parseEntry(symbol string, entry gjson.Result) (*feed.UnifiedPriceFeed, error) {
	priceField := entry.Get("price")
	if !priceField.Exists() {
		priceField = entry.Get("value")
	}
	if !priceField.Exists() {
		return nil, fmt.Errorf("response has neither price nor value field")
	}

	timestampField := entry.Get("timestamp")
	if !timestampField.Exists() {
		return nil, fmt.Errorf("response missing timestamp field")
	}

	decimals := defaultDecimals
	if d := entry.Get("decimals"); d.Exists() {
		decimals = int(d.Int())
	}

	source := entry.Get("source").String()
	if source == "" {
		source = c.baseURL
	}

	roundID := entry.Get("roundId").Int()

	priceRaw := floatToRaw(priceField.Float(), decimals)
	base, quote := protocol.BaseAndQuote(symbol)
	timestamp := parseTimestamp(timestampField)
	f := freshness.Calculate(time.Now(), timestamp, c.thresholdSeconds)

	result := feed.UnifiedPriceFeed{
		ID:               feed.DeterministicID(c.ProtocolName, c.ChainName, symbol, timestamp.UnixMilli()+roundID),
		Protocol:         c.ProtocolName,
		Chain:            c.ChainName,
		Symbol:           protocol.NormalizeSymbol(symbol),
		BaseAsset:        base,
		QuoteAsset:       quote,
		Price:            priceField.Float(),
		PriceRaw:         priceRaw,
		Decimals:         decimals,
		TimestampMs:      timestamp.UnixMilli(),
		IsStale:          f.IsStale,
		StalenessSeconds: f.StalenessSeconds,
		Sources:          []string{source},
	}
	return &result, nil
}

// parseTimestamp accepts either unix seconds or unix milliseconds,
// disambiguated by magnitude (values beyond year ~5138 in seconds are
// treated as milliseconds).
func parseTimestamp(field gjson.Result) time.Time {
	v := field.Int()
	const secondsCutoff = 100_000_000_000
	if v > secondsCutoff {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

func floatToRaw(price float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(price), new(big.Float).SetInt(pow10(decimals)))
	raw, _ := scaled.Int(nil)
	return raw
}

func pow10(decimals int) *big.Int {
	if decimals <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
