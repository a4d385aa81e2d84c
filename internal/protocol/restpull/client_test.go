package restpull

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/oracle-observatory/infrastructure/testutil"
	"github.com/r3e-network/oracle-observatory/internal/registry"
)

func fakeDIAServer(price float64, timestamp int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"price": %f, "timestamp": %d, "source": "diadata.org"}`, price, timestamp)
	}
}

func TestFetchPriceDIAHappyPath(t *testing.T) {
	server := testutil.NewHTTPTestServer(t, fakeDIAServer(3000.50, time.Now().Unix()))
	defer server.Close()

	reg := registry.New()
	reg.RegisterRESTAssets("dia", "ethereum", []string{"ETH/USD"})

	client := New("dia", "ethereum", server.URL, reg, nil, 300)

	result, err := client.FetchPrice(context.Background(), "ETH/USD")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "ETH/USD", result.Symbol)
	require.InDelta(t, 3000.50, result.Price, 0.001)
	require.Equal(t, []string{"diadata.org"}, result.Sources)
	require.False(t, result.IsStale)
}

func TestFetchPriceUnregisteredAssetReturnsNil(t *testing.T) {
	reg := registry.New()
	client := New("dia", "ethereum", "http://unused.invalid", reg, nil, 300)

	result, err := client.FetchPrice(context.Background(), "BTC/USD")
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestFetchPriceValueFieldFallback(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"value": 5.25, "timestamp": %d}`, time.Now().Unix())
	}
	server := testutil.NewHTTPTestServer(t, handler)
	defer server.Close()

	reg := registry.New()
	reg.RegisterRESTAssets("band", "ethereum", []string{"BAND/USD"})

	client := New("band", "ethereum", server.URL, reg, nil, 300)

	result, err := client.FetchPrice(context.Background(), "BAND/USD")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.InDelta(t, 5.25, result.Price, 0.001)
}

func TestFetchPriceStaleBeyondThreshold(t *testing.T) {
	stale := time.Now().Add(-10 * time.Minute).Unix()
	server := testutil.NewHTTPTestServer(t, fakeDIAServer(3000.0, stale))
	defer server.Close()

	reg := registry.New()
	reg.RegisterRESTAssets("dia", "ethereum", []string{"ETH/USD"})

	client := New("dia", "ethereum", server.URL, reg, nil, 300)

	result, err := client.FetchPrice(context.Background(), "ETH/USD")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.IsStale)
}

func TestFetchAllFeedsParallelWithoutBatchEndpoint(t *testing.T) {
	server := testutil.NewHTTPTestServer(t, fakeDIAServer(100.0, time.Now().Unix()))
	defer server.Close()

	reg := registry.New()
	reg.RegisterRESTAssets("dia", "ethereum", []string{"ETH/USD", "BTC/USD"})

	client := New("dia", "ethereum", server.URL, reg, nil, 300)

	feeds := client.FetchAllFeeds(context.Background())
	require.Len(t, feeds, 2)
}

func TestFetchAllFeedsUsesBatchEndpointWhenConfigured(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"symbol":"ETH/USD","price":3000,"timestamp":%d},{"symbol":"BTC/USD","price":60000,"timestamp":%d}]`,
			time.Now().Unix(), time.Now().Unix())
	}
	server := testutil.NewHTTPTestServer(t, handler)
	defer server.Close()

	reg := registry.New()
	reg.RegisterRESTAssets("flux", "ethereum", []string{"ETH/USD", "BTC/USD"})

	client := New("flux", "ethereum", server.URL, reg, nil, 300, WithBatchParam("symbols"))

	feeds := client.FetchAllFeeds(context.Background())
	require.Len(t, feeds, 2)
}
