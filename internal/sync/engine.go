// Package sync implements the Event Sync Engine (C9): the adaptive
// block-range scanner that keeps Assertion/Dispute/Vote rows current for
// one Optimistic Oracle instance, plus its RPC retry/rotation policy
// (C8, withRpc) and ABI log decoding.
package sync

import (
	"context"
	"sync"
	"time"

	svcerrors "github.com/r3e-network/oracle-observatory/infrastructure/errors"
	"github.com/r3e-network/oracle-observatory/infrastructure/logging"
	"github.com/r3e-network/oracle-observatory/infrastructure/metrics"
	"github.com/r3e-network/oracle-observatory/infrastructure/resilience"
	"github.com/r3e-network/oracle-observatory/internal/chainrpc"
	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
	"github.com/r3e-network/oracle-observatory/internal/storage"
)

// rescanBacktrack is how far behind lastProcessedBlock a re-scan starts,
// per §4.8's from/to derivation.
const rescanBacktrack = 10

// maxRangeAttempts bounds how many times one [from,to] range is retried
// before the engine gives up on this tick and shrinks the window.
const maxRangeAttempts = 3

const (
	rangeRetryBaseDelay = 500 * time.Millisecond
	rangeRetryMaxDelay  = 5 * time.Second
)

// Engine runs the per-instance Idle -> Preparing -> Scanning -> Persisting
// -> Finalizing -> Idle state machine described in §4.8. One Engine serves
// every configured instance; in-flight syncs are deduplicated by instance
// ID so a slow sync is never started twice concurrently.
type Engine struct {
	pool    *chainrpc.Pool
	store   storage.Store
	logger  *logging.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	inFlight  map[string]bool
	rotators  map[string]*chainrpc.Rotator
	windows   map[string]*AdaptiveWindow
	breakers  map[string]*resilience.CircuitBreaker
}

// NewEngine wires a sync Engine over an RPC pool and a Store.
func NewEngine(pool *chainrpc.Pool, store storage.Store, logger *logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		pool:     pool,
		store:    store,
		logger:   logger,
		metrics:  m,
		inFlight: make(map[string]bool),
		rotators: make(map[string]*chainrpc.Rotator),
		windows:  make(map[string]*AdaptiveWindow),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// tryStart marks instanceID in-flight, returning false if it already was.
func (e *Engine) tryStart(instanceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[instanceID] {
		return false
	}
	e.inFlight[instanceID] = true
	return true
}

func (e *Engine) finish(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, instanceID)
}

func (e *Engine) rotatorFor(instanceID string, endpoints []string) *chainrpc.Rotator {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rotators[instanceID]
	if !ok {
		r = chainrpc.NewRotator(endpoints, e.logger)
		e.rotators[instanceID] = r
	}
	return r
}

// breakerFor returns the per-instance circuit breaker that fast-fails
// EnsureSynced once an instance has accumulated 5 consecutive range
// failures, reopening for retry after its 30s timeout elapses. This sits
// above the endpoint-level retry/rotation in withRpc and below the
// scheduler's own all-instance circuit breaker.
func (e *Engine) breakerFor(instanceID string) *resilience.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.breakers[instanceID]
	if !ok {
		cb = resilience.New(resilience.DefaultConfig())
		e.breakers[instanceID] = cb
	}
	return cb
}

func (e *Engine) windowFor(instanceID string, initial uint64) *AdaptiveWindow {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.windows[instanceID]
	if !ok {
		w = NewAdaptiveWindow(initial)
		e.windows[instanceID] = w
	}
	return w
}

// EnsureSynced drives one instance through the full state machine once. A
// call that finds the instance already in-flight returns immediately
// without error: the concurrent caller's sync will cover this request too.
func (e *Engine) EnsureSynced(ctx context.Context, instance oracle.ProtocolInstance) error {
	if !e.tryStart(instance.ID) {
		return nil
	}
	defer e.finish(instance.ID)

	umaCfg, ok := instance.ProtocolConfig.(oracle.UMAConfig)
	if !ok {
		return svcerrors.ValidationError("protocolConfig", "instance is not a UMA event-sync instance")
	}

	start := time.Now()
	// Preparing: load persisted cursor, resolve endpoints.
	state, _, err := e.store.GetSyncState(ctx, instance.ID)
	if err != nil {
		return svcerrors.SyncFailed(instance.ID, err)
	}
	if state.RPCStats == nil {
		state = oracle.NewSyncState()
	}

	rotator := e.rotatorFor(instance.ID, instance.Config.RPCURLs)
	orchestrator := newRPCOrchestrator(e.pool, rotator, instance.Chain, chainrpc.DefaultClientTimeout)

	latest, err := e.fetchLatestBlock(ctx, orchestrator, state.RPCStats)
	if err != nil {
		e.recordOutcome(instance.ID, time.Since(start), err)
		return err
	}
	safe := oracle.SafeBlockFor(latest, instance.Config.ConfirmationBlocks)

	from, to, hasWork := deriveRange(state.LastProcessedBlock, instance.Config.StartBlock, safe, instance.Config.MaxBlockRange)
	if !hasWork {
		e.recordOutcome(instance.ID, time.Since(start), nil)
		return nil
	}

	window := e.windowFor(instance.ID, InitialWindowSize(state.LastProcessedBlock, instance.Config.MaxBlockRange))
	breaker := e.breakerFor(instance.ID)

	cursor := from
	for cursor <= to {
		rangeEnd := cursor + window.Size() - 1
		if rangeEnd > to {
			rangeEnd = to
		}

		var logCount int
		err := breaker.Execute(ctx, func() error {
			n, err := e.scanAndPersistRange(ctx, instance, umaCfg, orchestrator, state.RPCStats, cursor, rangeEnd)
			logCount = n
			return err
		})
		if err != nil {
			window.RecordFailure()
			state.ConsecutiveFailures++
			errStr := err.Error()
			state.Sync = oracle.SyncStatus{LastAttemptAt: timePtr(time.Now()), LastError: &errStr}
			_ = e.store.PutSyncState(ctx, instance.ID, state)
			e.recordOutcome(instance.ID, time.Since(start), err)
			return svcerrors.SyncFailed(instance.ID, err)
		}

		elapsed := time.Since(start).Seconds()
		logsPerSecond := 0.0
		if elapsed > 0 {
			logsPerSecond = float64(logCount) / elapsed
		}
		window.RecordSuccess(logCount, logsPerSecond)

		// Persisting: the range succeeded, advance the cursor atomically.
		state.LastProcessedBlock = rangeEnd
		state.LastSuccessProcessedBlock = rangeEnd
		state.LatestBlock = latest
		state.SafeBlock = safe
		state.ConsecutiveFailures = 0
		state.RPCActiveURL = rotator.Current()
		state.WindowSize = window.Size()
		now := time.Now()
		state.Sync = oracle.SyncStatus{LastAttemptAt: &now, LastSuccessAt: &now, LastDurationMs: time.Since(start).Milliseconds()}
		if err := e.store.PutSyncState(ctx, instance.ID, state); err != nil {
			return svcerrors.SyncFailed(instance.ID, err)
		}

		cursor = rangeEnd + 1
	}

	// Finalizing: nothing further to persist, state is already current.
	e.recordOutcome(instance.ID, time.Since(start), nil)
	return nil
}

func (e *Engine) recordOutcome(instanceID string, d time.Duration, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordSyncRange(instanceID, status, d)
}

func (e *Engine) fetchLatestBlock(ctx context.Context, orchestrator *rpcOrchestrator, stats map[string]*oracle.EndpointStats) (uint64, error) {
	var latest uint64
	err := orchestrator.withRpc(ctx, stats, func(ctx context.Context, client *chainrpc.Client) error {
		block, err := client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		latest = block
		return nil
	})
	return latest, err
}

// scanAndPersistRange fetches both topic groups over [from,to], decodes
// every log, and persists the resulting entities. It retries the whole
// range up to maxRangeAttempts times (contract_not_found bypasses retry
// entirely) before surfacing failure to the caller, which shrinks the
// window and stops advancing the cursor.
func (e *Engine) scanAndPersistRange(ctx context.Context, instance oracle.ProtocolInstance, cfg oracle.UMAConfig, orchestrator *rpcOrchestrator, stats map[string]*oracle.EndpointStats, from, to uint64) (int, error) {
	var logCount int
	err := resilience.WithRetry(ctx, maxRangeAttempts, rangeRetryBaseDelay, rangeRetryMaxDelay, func(ctx context.Context) error {
		n, err := e.scanRangeOnce(ctx, instance, cfg, orchestrator, stats, from, to)
		if err != nil {
			if svcerrors.Code(err) == svcerrors.ErrCodeContractNotFound {
				return resilience.MarkNonRetryable(err)
			}
			return err
		}
		logCount = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return logCount, nil
}

func (e *Engine) scanRangeOnce(ctx context.Context, instance oracle.ProtocolInstance, cfg oracle.UMAConfig, orchestrator *rpcOrchestrator, stats map[string]*oracle.EndpointStats, from, to uint64) (int, error) {
	var logs []chainrpc.Log

	if cfg.OptimisticOracleV2Address != "" {
		v2Logs, err := e.fetchLogs(ctx, orchestrator, stats, cfg.OptimisticOracleV2Address, oracleV2Topics, from, to)
		if err != nil {
			return 0, err
		}
		logs = append(logs, v2Logs...)
	}
	if cfg.OptimisticOracleV3Address != "" {
		v3Logs, err := e.fetchLogs(ctx, orchestrator, stats, cfg.OptimisticOracleV3Address, oracleV3Topics, from, to)
		if err != nil {
			return 0, err
		}
		logs = append(logs, v3Logs...)
	}

	votingPeriod := time.Duration(cfg.VotingPeriodSeconds) * time.Second
	for _, log := range logs {
		decoded, err := DecodeLog(instance.Chain, log, votingPeriod)
		if err != nil {
			e.logger.LogSyncAttempt(ctx, instance.ID, from, to, len(logs), err)
			continue
		}
		if decoded == nil {
			continue
		}
		if err := e.persist(ctx, instance.ID, decoded); err != nil {
			return 0, svcerrors.SyncFailed(instance.ID, err)
		}
	}

	e.logger.LogSyncAttempt(ctx, instance.ID, from, to, len(logs), nil)
	return len(logs), nil
}

func (e *Engine) fetchLogs(ctx context.Context, orchestrator *rpcOrchestrator, stats map[string]*oracle.EndpointStats, address string, topics []string, from, to uint64) ([]chainrpc.Log, error) {
	var result []chainrpc.Log
	err := orchestrator.withRpc(ctx, stats, func(ctx context.Context, client *chainrpc.Client) error {
		logs, err := client.GetLogs(ctx, chainrpc.LogFilter{
			Address:   address,
			Topics:    topics,
			FromBlock: from,
			ToBlock:   to,
		})
		if err != nil {
			return err
		}
		result = logs
		return nil
	})
	return result, err
}

func (e *Engine) persist(ctx context.Context, instanceID string, decoded *DecodedEvent) error {
	if decoded.Assertion != nil {
		if err := e.store.UpsertAssertion(ctx, instanceID, *decoded.Assertion); err != nil {
			return err
		}
	}
	if decoded.Dispute != nil {
		if err := e.store.UpsertDispute(ctx, instanceID, *decoded.Dispute); err != nil {
			return err
		}
	}
	if decoded.Vote != nil {
		if err := e.store.UpsertVote(ctx, instanceID, *decoded.Vote); err != nil {
			return err
		}
	}
	return nil
}

// deriveRange computes the [from,to] scan range for one tick, per §4.8:
// a re-scan backs up rescanBacktrack blocks from the last cursor; a first
// sync starts at startBlock (or maxBlockRange blocks behind safe); the
// range is empty (hasWork=false) when there is nothing new to cover.
func deriveRange(lastProcessedBlock, startBlock, safe, maxBlockRange uint64) (from, to uint64, hasWork bool) {
	if lastProcessedBlock > 0 {
		if lastProcessedBlock > rescanBacktrack {
			from = lastProcessedBlock - rescanBacktrack
		} else {
			from = 0
		}
	} else if startBlock > 0 {
		from = startBlock
	} else if safe > maxBlockRange {
		from = safe - maxBlockRange
	} else {
		from = 0
	}

	to = safe
	if from > to {
		return 0, 0, false
	}
	return from, to, true
}

func timePtr(t time.Time) *time.Time { return &t }
