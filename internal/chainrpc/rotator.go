package chainrpc

import (
	"math/rand"
	"sync"
	"time"

	"github.com/r3e-network/oracle-observatory/infrastructure/logging"
	"github.com/r3e-network/oracle-observatory/infrastructure/redaction"
)

// EndpointStats mirrors the EWMA bookkeeping in internal/domain/oracle's
// SyncState.RPCStats, kept local here so the rotator has no dependency on
// the sync engine's persistence shape.
type EndpointStats struct {
	Ok           int64
	Fail         int64
	LastOkAt     time.Time
	LastFailAt   time.Time
	AvgLatencyMs float64
}

// Rotator picks the next endpoint on failure from a bounded ordered list,
// and records ok/fail outcomes with EWMA latency tracking (alpha=0.2).
type Rotator struct {
	mu        sync.Mutex
	endpoints []string
	current   int
	stats     map[string]*EndpointStats
	logger    *logging.Logger
	sampleN   int
	calls     int64
}

// NewRotator builds a Rotator over a fixed, ordered endpoint list. An empty
// list is permitted; Next then returns "".
func NewRotator(endpoints []string, logger *logging.Logger) *Rotator {
	stats := make(map[string]*EndpointStats, len(endpoints))
	for _, e := range endpoints {
		stats[e] = &EndpointStats{}
	}
	return &Rotator{
		endpoints: append([]string(nil), endpoints...),
		current:   0,
		stats:     stats,
		logger:    logger,
		sampleN:   100,
	}
}

// Current returns the presently active endpoint, or "" if none configured.
func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.endpoints) == 0 {
		return ""
	}
	return r.endpoints[r.current]
}

// Next picks the successor of currentEndpoint modulo the list length. If
// currentEndpoint is unknown, index 0 is picked.
func (r *Rotator) Next(currentEndpoint string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.endpoints) == 0 {
		return ""
	}

	idx := -1
	for i, e := range r.endpoints {
		if e == currentEndpoint {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.current = 0
		return r.endpoints[0]
	}
	r.current = (idx + 1) % len(r.endpoints)
	return r.endpoints[r.current]
}

// RecordOk folds a success into the EWMA latency average and ok counter,
// sampling one in sampleN outcomes to the log with a redacted endpoint URL.
func (r *Rotator) RecordOk(endpoint string, latencyMs float64) {
	now := time.Now()
	r.mu.Lock()
	s, ok := r.stats[endpoint]
	if !ok {
		s = &EndpointStats{}
		r.stats[endpoint] = s
	}
	s.Ok++
	s.LastOkAt = now
	if s.Ok == 1 && s.Fail == 0 {
		s.AvgLatencyMs = latencyMs
	} else {
		s.AvgLatencyMs = s.AvgLatencyMs*0.8 + latencyMs*0.2
	}
	r.calls++
	shouldLog := r.calls%int64(r.sampleN) == 0
	r.mu.Unlock()

	if shouldLog && r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"endpoint":   redaction.RedactEndpoint(endpoint),
			"latency_ms": latencyMs,
		}).Debug("rpc endpoint sampled outcome: ok")
	}
}

// RecordFail bumps the failure counter for endpoint.
func (r *Rotator) RecordFail(endpoint string) {
	now := time.Now()
	r.mu.Lock()
	s, ok := r.stats[endpoint]
	if !ok {
		s = &EndpointStats{}
		r.stats[endpoint] = s
	}
	s.Fail++
	s.LastFailAt = now
	r.calls++
	shouldLog := r.calls%int64(r.sampleN) == 0
	r.mu.Unlock()

	if shouldLog && r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"endpoint": redaction.RedactEndpoint(endpoint),
		}).Debug("rpc endpoint sampled outcome: fail")
	}
}

// Stats returns a snapshot copy of the stats for one endpoint.
func (r *Rotator) Stats(endpoint string) EndpointStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stats[endpoint]; ok {
		return *s
	}
	return EndpointStats{}
}

// Endpoints returns a copy of the configured endpoint list.
func (r *Rotator) Endpoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.endpoints...)
}

// BackoffSeed derives the RPC-orchestration backoff seed for an endpoint:
// min(avgLatencyMs*2, 10_000)ms, per §4.8's withRpc description.
func (r *Rotator) BackoffSeed(endpoint string) time.Duration {
	s := r.Stats(endpoint)
	ms := s.AvgLatencyMs * 2
	if ms > 10_000 {
		ms = 10_000
	}
	if ms <= 0 {
		ms = 250
	}
	return time.Duration(ms) * time.Millisecond
}

// Jitter returns d plus up to +/- pct*d of uniform jitter, used by the sync
// engine's withRpc orchestration (+/-30% on rpc_unreachable, +/-20% on
// other retryable errors).
func Jitter(d time.Duration, pct float64) time.Duration {
	delta := float64(d) * pct
	return d + time.Duration((rand.Float64()*2-1)*delta)
}
