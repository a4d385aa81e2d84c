package sync

import (
	"context"
	"strings"
	"time"

	"github.com/r3e-network/oracle-observatory/internal/chainrpc"
	svcerrors "github.com/r3e-network/oracle-observatory/infrastructure/errors"
	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
)

// rpcOrchestrator is the withRpc policy from §4.8: retry the current
// endpoint a bounded number of times, then rotate to the next configured
// endpoint, raising once every endpoint has been exhausted.
type rpcOrchestrator struct {
	pool        *chainrpc.Pool
	rotator     *chainrpc.Rotator
	chain       string
	rpcTimeout  time.Duration
}

func newRPCOrchestrator(pool *chainrpc.Pool, rotator *chainrpc.Rotator, chain string, rpcTimeout time.Duration) *rpcOrchestrator {
	return &rpcOrchestrator{pool: pool, rotator: rotator, chain: chain, rpcTimeout: rpcTimeout}
}

// sameEndpointAttempts is min(3, max(2, floor(rpcTimeout/5000ms))), per §4.8.
func (o *rpcOrchestrator) sameEndpointAttempts() int {
	n := int(o.rpcTimeout / (5 * time.Second))
	if n < 2 {
		n = 2
	}
	if n > 3 {
		n = 3
	}
	return n
}

// withRpc runs op against the rotator's current endpoint, retrying on that
// endpoint, then rotating and repeating until every endpoint has been
// tried once per round or op succeeds. stats is the instance's persisted
// RPC bookkeeping, updated alongside the rotator's own in-memory stats.
func (o *rpcOrchestrator) withRpc(ctx context.Context, stats map[string]*oracle.EndpointStats, op func(ctx context.Context, client *chainrpc.Client) error) error {
	endpoints := o.rotator.Endpoints()
	if len(endpoints) == 0 {
		return svcerrors.RPCUnreachable("", errNoEndpoints)
	}

	var lastErr error
	visited := make(map[string]bool, len(endpoints))
	endpoint := o.rotator.Current()

	for len(visited) < len(endpoints) {
		visited[endpoint] = true
		client := o.pool.Get(endpoint, o.chain)

		err := o.runAgainstEndpoint(ctx, client, endpoint, stats, op)
		if err == nil {
			return nil
		}
		lastErr = err

		if svcerrors.Code(err) == svcerrors.ErrCodeContractNotFound {
			return err
		}

		endpoint = o.rotator.Next(endpoint)
	}

	return svcerrors.RPCUnreachable(endpoint, lastErr)
}

// runAgainstEndpoint retries op against one endpoint up to
// sameEndpointAttempts times, classifying failures and recording
// latency/outcome into both the rotator and the instance's persisted stats.
func (o *rpcOrchestrator) runAgainstEndpoint(ctx context.Context, client *chainrpc.Client, endpoint string, stats map[string]*oracle.EndpointStats, op func(ctx context.Context, client *chainrpc.Client) error) error {
	attempts := o.sameEndpointAttempts()
	seed := o.rotator.BackoffSeed(endpoint)

	var lastErr error
	for k := 1; k <= attempts; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := op(ctx, client)
		latencyMs := float64(time.Since(start).Milliseconds())

		if err == nil {
			o.rotator.RecordOk(endpoint, latencyMs)
			recordStatsOk(stats, endpoint, latencyMs)
			return nil
		}

		classified := classify(endpoint, err)
		o.rotator.RecordFail(endpoint)
		recordStatsFail(stats, endpoint)

		if svcerrors.Code(classified) == svcerrors.ErrCodeContractNotFound {
			return classified
		}

		lastErr = classified
		if k == attempts {
			break
		}

		pct := 0.2
		if svcerrors.Code(classified) == svcerrors.ErrCodeRPCUnreachable {
			pct = 0.3
		}
		delay := chainrpc.Jitter(seed, pct)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func recordStatsOk(stats map[string]*oracle.EndpointStats, endpoint string, latencyMs float64) {
	if stats == nil {
		return
	}
	s, ok := stats[endpoint]
	if !ok {
		s = &oracle.EndpointStats{}
		stats[endpoint] = s
	}
	s.RecordOk(latencyMs, time.Now())
}

func recordStatsFail(stats map[string]*oracle.EndpointStats, endpoint string) {
	if stats == nil {
		return
	}
	s, ok := stats[endpoint]
	if !ok {
		s = &oracle.EndpointStats{}
		stats[endpoint] = s
	}
	s.RecordFail(time.Now())
}

// classify maps a raw transport/contract error into the taxonomy withRpc
// dispatches on. "no contract code"/"contract not found" style messages
// are contract_not_found and bypass retry; everything else is treated as
// rpc_unreachable, which is the conservative default for a transient
// transport failure.
func classify(endpoint string, err error) error {
	if svcerrors.IsServiceError(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no contract code") || strings.Contains(msg, "contract not found") {
		return svcerrors.ContractNotFound("", endpoint)
	}
	return svcerrors.RPCUnreachable(endpoint, err)
}

var errNoEndpoints = rpcNoEndpointsError{}

type rpcNoEndpointsError struct{}

func (rpcNoEndpointsError) Error() string { return "no RPC endpoints configured" }
