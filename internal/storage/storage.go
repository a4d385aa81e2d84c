// Package storage defines the persistence boundary the core consumes: an
// upsert-on-conflict row store for assertions/disputes/votes, plus
// per-instance sync-state get/put. All operations are idempotent by
// primary key and accept a cancellable context. The core treats storage
// as an opaque sink; this package also ships an in-memory implementation
// for tests and single-process deployments.
package storage

import (
	"context"

	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
)

// Page bounds a list query's window.
type Page struct {
	Limit  int
	Offset int
}

// AssertionFilter narrows ListAssertions; zero-value fields are not
// applied.
type AssertionFilter struct {
	Chain  string
	Status oracle.AssertionStatus
}

// DisputeFilter narrows ListDisputes.
type DisputeFilter struct {
	Chain  string
	Status oracle.DisputeStatus
}

// VoteFilter narrows ListVotes.
type VoteFilter struct {
	Chain       string
	AssertionID string
}

// Store is the persistence boundary the Sync Engine and API layer
// consume. UpsertAssertion's incoming Status communicates which lifecycle
// event occurred (Proposed = AssertionMade/PriceProposed, Disputed =
// AssertionDisputed/PriceDisputed, Settled = AssertionSettled/PriceSettled);
// implementations apply it with oracle.Assertion's Apply* methods so a
// Settled row is never resurrected and replays are no-ops.
type Store interface {
	UpsertAssertion(ctx context.Context, instanceID string, assertion oracle.Assertion) error
	UpsertDispute(ctx context.Context, instanceID string, dispute oracle.Dispute) error
	UpsertVote(ctx context.Context, instanceID string, vote oracle.Vote) error

	GetSyncState(ctx context.Context, instanceID string) (oracle.SyncState, bool, error)
	PutSyncState(ctx context.Context, instanceID string, state oracle.SyncState) error

	ListAssertions(ctx context.Context, instanceID string, filter AssertionFilter, page Page) ([]oracle.Assertion, int, error)
	ListDisputes(ctx context.Context, instanceID string, filter DisputeFilter, page Page) ([]oracle.Dispute, int, error)
	ListVotes(ctx context.Context, instanceID string, filter VoteFilter, page Page) ([]oracle.Vote, int, error)
}
