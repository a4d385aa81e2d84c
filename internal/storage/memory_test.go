package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
)

func TestUpsertAssertionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	bond := "500"
	made := oracle.Assertion{
		ID:         "0xABC",
		Chain:      "ethereum",
		Proposer:   "0xP",
		Bond:       &bond,
		ProposedAt: time.Now(),
		Status:     oracle.AssertionProposed,
		TxHash:     "0x1",
		Version:    oracle.OracleV3,
	}
	require.NoError(t, store.UpsertAssertion(ctx, "inst1", made))

	disputedAt := time.Now()
	disputed := oracle.Assertion{ID: "0xABC", Status: oracle.AssertionDisputed, DisputedAt: &disputedAt}
	require.NoError(t, store.UpsertAssertion(ctx, "inst1", disputed))

	settledAt := time.Now()
	settlementValue := int64(1)
	settled := oracle.Assertion{ID: "0xABC", Status: oracle.AssertionSettled, SettledAt: &settledAt, SettlementValue: &settlementValue}
	require.NoError(t, store.UpsertAssertion(ctx, "inst1", settled))

	rows, total, err := store.ListAssertions(ctx, "inst1", AssertionFilter{}, Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, oracle.AssertionSettled, rows[0].Status)
	require.Equal(t, int64(1), *rows[0].SettlementValue)
	require.Equal(t, "0xP", rows[0].Proposer)
}

func TestUpsertAssertionReplayIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	made := oracle.Assertion{ID: "0xABC", Status: oracle.AssertionProposed, ProposedAt: time.Now()}
	require.NoError(t, store.UpsertAssertion(ctx, "inst1", made))
	require.NoError(t, store.UpsertAssertion(ctx, "inst1", made))

	_, total, err := store.ListAssertions(ctx, "inst1", AssertionFilter{}, Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestUpsertAssertionNeverResurrectsSettled(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	settledAt := time.Now()
	value := int64(1)
	require.NoError(t, store.UpsertAssertion(ctx, "inst1", oracle.Assertion{
		ID: "0xABC", Status: oracle.AssertionProposed, ProposedAt: settledAt,
	}))
	require.NoError(t, store.UpsertAssertion(ctx, "inst1", oracle.Assertion{
		ID: "0xABC", Status: oracle.AssertionSettled, SettledAt: &settledAt, SettlementValue: &value,
	}))
	// A stale re-delivery of the original AssertionMade event must not
	// revert the row to Proposed.
	require.NoError(t, store.UpsertAssertion(ctx, "inst1", oracle.Assertion{
		ID: "0xABC", Status: oracle.AssertionProposed, ProposedAt: settledAt,
	}))

	rows, _, err := store.ListAssertions(ctx, "inst1", AssertionFilter{}, Page{})
	require.NoError(t, err)
	require.Equal(t, oracle.AssertionSettled, rows[0].Status)
}

func TestUpsertVoteDedupesByTxHashAndLogIndex(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	v := oracle.Vote{Chain: "ethereum", AssertionID: "0xABC", Voter: "0xV", Support: true, TxHash: "0x1", LogIndex: 0}
	require.NoError(t, store.UpsertVote(ctx, "inst1", v))
	require.NoError(t, store.UpsertVote(ctx, "inst1", v))

	rows, total, err := store.ListVotes(ctx, "inst1", VoteFilter{}, Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, rows, 1)
}

func TestSyncStateRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.GetSyncState(ctx, "inst1")
	require.NoError(t, err)
	require.False(t, ok)

	state := oracle.NewSyncState()
	state.LastProcessedBlock = 100
	require.NoError(t, store.PutSyncState(ctx, "inst1", state))

	got, ok, err := store.GetSyncState(ctx, "inst1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), got.LastProcessedBlock)
}

func TestListAssertionsPagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"0xA", "0xB", "0xC"} {
		require.NoError(t, store.UpsertAssertion(ctx, "inst1", oracle.Assertion{
			ID: id, Status: oracle.AssertionProposed, ProposedAt: time.Now(),
		}))
	}

	page1, total, err := store.ListAssertions(ctx, "inst1", AssertionFilter{}, Page{Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, page1, 2)
	require.Equal(t, "0xA", page1[0].ID)

	page2, _, err := store.ListAssertions(ctx, "inst1", AssertionFilter{}, Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	require.Equal(t, "0xC", page2[0].ID)
}

func TestListAssertionsFiltersByInstance(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertAssertion(ctx, "inst1", oracle.Assertion{ID: "0xA", Status: oracle.AssertionProposed, ProposedAt: time.Now()}))
	require.NoError(t, store.UpsertAssertion(ctx, "inst2", oracle.Assertion{ID: "0xB", Status: oracle.AssertionProposed, ProposedAt: time.Now()}))

	rows, total, err := store.ListAssertions(ctx, "inst1", AssertionFilter{}, Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "0xA", rows[0].ID)
}
