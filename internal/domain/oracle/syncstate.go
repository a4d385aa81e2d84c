package oracle

import "time"

// EndpointStats tracks per-endpoint outcome counters for the rotator's
// ok/fail bookkeeping. AvgLatencyMs is an EWMA with alpha=0.2.
type EndpointStats struct {
	Ok           int64
	Fail         int64
	LastOkAt     *time.Time
	LastFailAt   *time.Time
	AvgLatencyMs float64
}

// RecordOk folds a successful call's latency into the EWMA and bumps Ok.
func (s *EndpointStats) RecordOk(latencyMs float64, now time.Time) {
	s.Ok++
	t := now
	s.LastOkAt = &t
	if s.Ok == 1 && s.Fail == 0 {
		s.AvgLatencyMs = latencyMs
		return
	}
	s.AvgLatencyMs = s.AvgLatencyMs*0.8 + latencyMs*0.2
}

// RecordFail bumps the failure counter.
func (s *EndpointStats) RecordFail(now time.Time) {
	s.Fail++
	t := now
	s.LastFailAt = &t
}

// SyncStatus carries the most recent sync attempt's outcome.
type SyncStatus struct {
	LastAttemptAt  *time.Time
	LastSuccessAt  *time.Time
	LastDurationMs int64
	LastError      *string
}

// SyncState is the per-instance persisted cursor and health record driving
// the adaptive block-range scanner.
type SyncState struct {
	LastProcessedBlock       uint64
	LatestBlock              uint64
	SafeBlock                uint64
	LastSuccessProcessedBlock uint64
	ConsecutiveFailures      int
	RPCActiveURL             string
	RPCStats                 map[string]*EndpointStats
	Sync                     SyncStatus
	WindowSize               uint64
}

// NewSyncState returns a zero-value SyncState with an initialized stats map.
func NewSyncState() SyncState {
	return SyncState{RPCStats: make(map[string]*EndpointStats)}
}

// SafeBlockFor computes safeBlock = max(0, latest - confirmationBlocks).
func SafeBlockFor(latest, confirmationBlocks uint64) uint64 {
	if latest < confirmationBlocks {
		return 0
	}
	return latest - confirmationBlocks
}
