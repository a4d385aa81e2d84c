package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
)

type instanceKey struct {
	instanceID string
	id         string
}

// MemoryStore is a mutex-guarded, in-process Store implementation. It
// gives the same idempotent upsert-on-conflict semantics the relational
// backend is expected to provide, so the core can be exercised without a
// database.
type MemoryStore struct {
	mu sync.Mutex

	assertions map[instanceKey]oracle.Assertion
	disputes   map[instanceKey]oracle.Dispute
	votes      map[instanceKey]oracle.Vote
	syncStates map[string]oracle.SyncState
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assertions: make(map[instanceKey]oracle.Assertion),
		disputes:   make(map[instanceKey]oracle.Dispute),
		votes:      make(map[instanceKey]oracle.Vote),
		syncStates: make(map[string]oracle.SyncState),
	}
}

// UpsertAssertion merges incoming into the existing row (if any) using
// oracle.Assertion's Apply* state machine, keyed by incoming.Status.
func (m *MemoryStore) UpsertAssertion(ctx context.Context, instanceID string, incoming oracle.Assertion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := instanceKey{instanceID, incoming.ID}
	existing := m.assertions[key]
	if existing.ID == "" {
		existing = oracle.Assertion{ID: incoming.ID}
	}

	switch incoming.Status {
	case oracle.AssertionProposed:
		existing.ApplyMade(incoming)
	case oracle.AssertionDisputed:
		if incoming.DisputedAt != nil {
			existing.ApplyDisputed(*incoming.DisputedAt, incoming.DisputeBond)
		}
	case oracle.AssertionSettled:
		if incoming.SettledAt != nil && incoming.SettlementValue != nil {
			existing.ApplySettled(*incoming.SettledAt, *incoming.SettlementValue)
		}
	}

	m.assertions[key] = existing
	return nil
}

// UpsertDispute stores dispute, overwriting any existing row with the same
// ID. Exactly one Dispute per Assertion is a soft invariant enforced by
// callers, not this store.
func (m *MemoryStore) UpsertDispute(ctx context.Context, instanceID string, dispute oracle.Dispute) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disputes[instanceKey{instanceID, dispute.ID}] = dispute
	return nil
}

// UpsertVote inserts vote if (txHash, logIndex) hasn't been seen before;
// votes are immutable once cast, so a duplicate delivery is a no-op.
func (m *MemoryStore) UpsertVote(ctx context.Context, instanceID string, vote oracle.Vote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := instanceKey{instanceID, oracle.VoteKey(vote.TxHash, vote.LogIndex)}
	if _, exists := m.votes[key]; exists {
		return nil
	}
	m.votes[key] = vote
	return nil
}

// GetSyncState returns the persisted cursor for instanceID, or
// (zero-value, false, nil) if none has been written yet.
func (m *MemoryStore) GetSyncState(ctx context.Context, instanceID string) (oracle.SyncState, bool, error) {
	if err := ctx.Err(); err != nil {
		return oracle.SyncState{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.syncStates[instanceID]
	return state, ok, nil
}

// PutSyncState overwrites the persisted cursor for instanceID.
func (m *MemoryStore) PutSyncState(ctx context.Context, instanceID string, state oracle.SyncState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncStates[instanceID] = state
	return nil
}

// ListAssertions returns a filtered, paginated, deterministically-ordered
// (by ID) view of the assertions for instanceID.
func (m *MemoryStore) ListAssertions(ctx context.Context, instanceID string, filter AssertionFilter, page Page) ([]oracle.Assertion, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]oracle.Assertion, 0)
	for key, a := range m.assertions {
		if key.instanceID != instanceID {
			continue
		}
		if filter.Chain != "" && a.Chain != filter.Chain {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginateAssertions(matched, page), len(matched), nil
}

// ListDisputes mirrors ListAssertions for disputes.
func (m *MemoryStore) ListDisputes(ctx context.Context, instanceID string, filter DisputeFilter, page Page) ([]oracle.Dispute, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]oracle.Dispute, 0)
	for key, d := range m.disputes {
		if key.instanceID != instanceID {
			continue
		}
		if filter.Chain != "" && d.Chain != filter.Chain {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginateDisputes(matched, page), len(matched), nil
}

// ListVotes mirrors ListAssertions for votes.
func (m *MemoryStore) ListVotes(ctx context.Context, instanceID string, filter VoteFilter, page Page) ([]oracle.Vote, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]oracle.Vote, 0)
	for key, v := range m.votes {
		if key.instanceID != instanceID {
			continue
		}
		if filter.Chain != "" && v.Chain != filter.Chain {
			continue
		}
		if filter.AssertionID != "" && v.AssertionID != filter.AssertionID {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].TxHash < matched[j].TxHash })
	return paginateVotes(matched, page), len(matched), nil
}

func paginateAssertions(rows []oracle.Assertion, page Page) []oracle.Assertion {
	start, end := pageBounds(len(rows), page)
	return rows[start:end]
}

func paginateDisputes(rows []oracle.Dispute, page Page) []oracle.Dispute {
	start, end := pageBounds(len(rows), page)
	return rows[start:end]
}

func paginateVotes(rows []oracle.Vote, page Page) []oracle.Vote {
	start, end := pageBounds(len(rows), page)
	return rows[start:end]
}

func pageBounds(total int, page Page) (start, end int) {
	if page.Limit <= 0 {
		return 0, total
	}
	start = page.Offset
	if start > total {
		start = total
	}
	end = start + page.Limit
	if end > total {
		end = total
	}
	return start, end
}
