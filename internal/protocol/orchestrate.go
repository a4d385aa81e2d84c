package protocol

import (
	"context"

	"github.com/r3e-network/oracle-observatory/infrastructure/errors"
	"github.com/r3e-network/oracle-observatory/internal/domain/feed"
)

// RawFetch resolves a feed identifier for symbol, fetches the raw on-chain
// or off-chain reading, and parses it into a UnifiedPriceFeed. It
// implements the shared "resolveContractAddress -> getFeedId ->
// fetchRawPriceData -> parsePriceFromContract" orchestration named in the
// component design, generalized so any adapter family can supply its own
// resolve/fetch/parse steps.
func RawFetch[T any](
	ctx context.Context,
	protocolName, chainName, symbol string,
	resolve func(symbol string) (string, bool),
	fetchRaw func(ctx context.Context, feedID string) (T, error),
	parse func(raw T) (feed.UnifiedPriceFeed, error),
) (*feed.UnifiedPriceFeed, error) {
	feedID, ok := resolve(symbol)
	if !ok {
		return nil, nil
	}

	raw, err := fetchRaw(ctx, feedID)
	if err != nil {
		return nil, errors.PriceFetchError(protocolName, chainName, symbol, err)
	}

	parsed, err := parse(raw)
	if err != nil {
		return nil, errors.PriceFetchError(protocolName, chainName, symbol, err)
	}

	return &parsed, nil
}
