package pythfeed

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/oracle-observatory/infrastructure/testutil"
	"github.com/r3e-network/oracle-observatory/internal/chainrpc"
	"github.com/r3e-network/oracle-observatory/internal/registry"
)

const testContractAddress = "0xff1a021fbb2dfeede5eb3cf1d3a0f0b8c5c5e8aa"
const testFeedID = "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

// word renders v as a 32-byte (64 hex char) two's-complement ABI word.
func word(v int64) string {
	n := big.NewInt(v)
	if n.Sign() < 0 {
		modulus := new(big.Int).Lsh(big.NewInt(1), 256)
		n = new(big.Int).Add(modulus, n)
	}
	s := n.Text(16)
	for len(s) < 64 {
		s = "0" + s
	}
	return s
}

// fakeGetPriceServer answers eth_call for getPrice(bytes32) with a fixed
// reading: price=300000000000, conf=50000000, expo=-8, publishTime=<supplied>.
func fakeGetPriceServer(publishTime int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params []interface{} `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		callArgs, _ := req.Params[0].(map[string]interface{})
		data, _ := callArgs["data"].(string)

		if len(data) < len(getPriceSelector) || data[:len(getPriceSelector)] != getPriceSelector {
			http.Error(w, "unexpected selector", http.StatusBadRequest)
			return
		}

		result := "0x" +
			word(300000000000) +
			word(50000000) +
			word(-8) +
			word(publishTime)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": result}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestFetchPricePythHappyPath(t *testing.T) {
	server := testutil.NewHTTPTestServer(t, fakeGetPriceServer(time.Now().Unix()))
	defer server.Close()

	rpc := chainrpc.NewClient(server.URL, "1")
	reg := registry.New()
	reg.RegisterSingleContract("pyth", "ethereum", testContractAddress)
	reg.RegisterFeedID("pyth", "ethereum", "ETH/USD", testFeedID)

	client := New("pyth", "ethereum", rpc, reg, nil, 60)

	result, err := client.FetchPrice(context.Background(), "ETH/USD")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 8, result.Decimals)
	require.InDelta(t, 3000.0, result.Price, 0.01)
	require.NotNil(t, result.Confidence)
	require.InDelta(t, 0.0166, *result.Confidence, 0.001)
	require.False(t, result.IsStale)
}

func TestFetchPriceNoContractAddressReturnsNil(t *testing.T) {
	rpc := chainrpc.NewClient("http://unused.invalid", "1")
	reg := registry.New()
	client := New("pyth", "ethereum", rpc, reg, nil, 60)

	result, err := client.FetchPrice(context.Background(), "ETH/USD")
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestFetchPriceUnregisteredFeedIDReturnsNil(t *testing.T) {
	rpc := chainrpc.NewClient("http://unused.invalid", "1")
	reg := registry.New()
	reg.RegisterSingleContract("pyth", "ethereum", testContractAddress)
	client := New("pyth", "ethereum", rpc, reg, nil, 60)

	result, err := client.FetchPrice(context.Background(), "SOL/USD")
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestFetchPriceStaleBeyondThreshold(t *testing.T) {
	stale := time.Now().Add(-5 * time.Minute).Unix()
	server := testutil.NewHTTPTestServer(t, fakeGetPriceServer(stale))
	defer server.Close()

	rpc := chainrpc.NewClient(server.URL, "1")
	reg := registry.New()
	reg.RegisterSingleContract("pyth", "ethereum", testContractAddress)
	reg.RegisterFeedID("pyth", "ethereum", "ETH/USD", testFeedID)

	client := New("pyth", "ethereum", rpc, reg, nil, 60)

	result, err := client.FetchPrice(context.Background(), "ETH/USD")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.IsStale)
}
