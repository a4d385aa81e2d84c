package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/oracle-observatory/infrastructure/logging"
	"github.com/r3e-network/oracle-observatory/infrastructure/testutil"
	"github.com/r3e-network/oracle-observatory/internal/chainrpc"
	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
	"github.com/r3e-network/oracle-observatory/internal/storage"
)

const testV3Address = "0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419"

func testLogger() *logging.Logger {
	return logging.New("oracle-observatory-test", "error", "json")
}

func word(v int64) string { return fmt.Sprintf("%064x", v) }

func addressTopic(address string) string {
	return "0x" + fmt.Sprintf("%024x", 0) + address[2:]
}

// fakeSyncServer answers eth_blockNumber with a fixed height and
// eth_getLogs with a single AssertionMade log every time it's called.
func fakeSyncServer(latestBlock uint64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		var result interface{}
		switch req.Method {
		case "eth_blockNumber":
			result = fmt.Sprintf("0x%x", latestBlock)
		case "eth_getLogs":
			result = []map[string]interface{}{
				{
					"address": testV3Address,
					"topics": []string{
						TopicAssertionMade,
						"0x" + word(1), // assertionId
						"0x" + word(2), // claim
						addressTopic("0x000000000000000000000000000000000000aa"),
					},
					"data":            "0x" + word(500) + word(99),
					"blockNumber":     fmt.Sprintf("0x%x", latestBlock),
					"transactionHash": "0xabc123",
					"logIndex":        "0x0",
				},
			}
		default:
			http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": result}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func testInstance(rpcURL string) oracle.ProtocolInstance {
	cfg := oracle.DefaultInstanceConfig()
	cfg.RPCURLs = []string{rpcURL}
	cfg.StartBlock = 100
	cfg.ConfirmationBlocks = 0
	cfg.MaxBlockRange = 1000

	return oracle.ProtocolInstance{
		ID:       "uma-ethereum",
		Protocol: oracle.ProtocolUMA,
		Chain:    "ethereum",
		Enabled:  true,
		Config:   cfg,
		ProtocolConfig: oracle.UMAConfig{
			OptimisticOracleV3Address: testV3Address,
			VotingPeriodSeconds:       172800,
		},
	}
}

func TestEnsureSyncedIngestsAssertionMadeEvent(t *testing.T) {
	server := testutil.NewHTTPTestServer(t, fakeSyncServer(1000))
	defer server.Close()

	pool := chainrpc.NewPool()
	defer pool.Stop()
	store := storage.NewMemoryStore()
	engine := NewEngine(pool, store, testLogger(), nil)

	instance := testInstance(server.URL)
	require.NoError(t, engine.EnsureSynced(context.Background(), instance))

	rows, total, err := store.ListAssertions(context.Background(), instance.ID, storage.AssertionFilter{}, storage.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, oracle.AssertionProposed, rows[0].Status)
	require.Equal(t, "500", *rows[0].Bond)

	state, ok, err := store.GetSyncState(context.Background(), instance.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1000), state.LastProcessedBlock)
}

// TestEnsureSyncedReplayIsIdempotent covers property 3: running the sync
// engine twice over overlapping ranges must not duplicate rows.
func TestEnsureSyncedReplayIsIdempotent(t *testing.T) {
	server := testutil.NewHTTPTestServer(t, fakeSyncServer(1000))
	defer server.Close()

	pool := chainrpc.NewPool()
	defer pool.Stop()
	store := storage.NewMemoryStore()
	engine := NewEngine(pool, store, testLogger(), nil)

	instance := testInstance(server.URL)
	require.NoError(t, engine.EnsureSynced(context.Background(), instance))
	require.NoError(t, engine.EnsureSynced(context.Background(), instance))

	_, total, err := store.ListAssertions(context.Background(), instance.ID, storage.AssertionFilter{}, storage.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

// TestEnsureSyncedStopsAtSafeBlock covers property 4: the cursor never
// advances past safeBlock = latest - confirmationBlocks.
func TestEnsureSyncedStopsAtSafeBlock(t *testing.T) {
	server := testutil.NewHTTPTestServer(t, fakeSyncServer(1000))
	defer server.Close()

	pool := chainrpc.NewPool()
	defer pool.Stop()
	store := storage.NewMemoryStore()
	engine := NewEngine(pool, store, testLogger(), nil)

	instance := testInstance(server.URL)
	instance.Config.ConfirmationBlocks = 12
	require.NoError(t, engine.EnsureSynced(context.Background(), instance))

	state, ok, err := store.GetSyncState(context.Background(), instance.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.LessOrEqual(t, state.LastProcessedBlock, uint64(988))
	require.GreaterOrEqual(t, state.LastProcessedBlock, instance.Config.StartBlock)
}

func TestEnsureSyncedSkipsWhenAlreadyInFlight(t *testing.T) {
	pool := chainrpc.NewPool()
	defer pool.Stop()
	store := storage.NewMemoryStore()
	engine := NewEngine(pool, store, testLogger(), nil)

	instance := testInstance("http://unused.invalid")
	require.True(t, engine.tryStart(instance.ID))
	require.NoError(t, engine.EnsureSynced(context.Background(), instance))
	engine.finish(instance.ID)
}

func TestDeriveRangeFirstSyncUsesStartBlock(t *testing.T) {
	from, to, hasWork := deriveRange(0, 100, 1000, 10_000)
	require.True(t, hasWork)
	require.Equal(t, uint64(100), from)
	require.Equal(t, uint64(1000), to)
}

func TestDeriveRangeRescanBacktracksTenBlocks(t *testing.T) {
	from, to, hasWork := deriveRange(500, 0, 1000, 10_000)
	require.True(t, hasWork)
	require.Equal(t, uint64(490), from)
	require.Equal(t, uint64(1000), to)
}

func TestDeriveRangeNoWorkWhenFromExceedsSafeBlock(t *testing.T) {
	_, _, hasWork := deriveRange(1000, 0, 980, 10_000)
	require.False(t, hasWork)
}

func TestDeriveRangeFirstSyncWithoutStartBlockBacksOffMaxRange(t *testing.T) {
	from, to, hasWork := deriveRange(0, 0, 50_000, 10_000)
	require.True(t, hasWork)
	require.Equal(t, uint64(40_000), from)
	require.Equal(t, uint64(50_000), to)
}

func TestSameEndpointAttemptsWithinBounds(t *testing.T) {
	o := newRPCOrchestrator(nil, chainrpc.NewRotator([]string{"a"}, nil), "ethereum", 1*time.Second)
	require.Equal(t, 2, o.sameEndpointAttempts())

	o2 := newRPCOrchestrator(nil, chainrpc.NewRotator([]string{"a"}, nil), "ethereum", 30*time.Second)
	require.Equal(t, 3, o2.sameEndpointAttempts())
}
