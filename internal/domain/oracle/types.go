// Package oracle holds the entities tracked by the event sync engine:
// protocol instances, optimistic-oracle assertions/disputes/votes, and the
// per-instance sync state that drives the adaptive block-range scanner.
package oracle

import (
	"strconv"
	"time"
)

// Protocol identifies an oracle protocol family.
type Protocol string

const (
	ProtocolChainlink   Protocol = "chainlink"
	ProtocolPyth        Protocol = "pyth"
	ProtocolUMA         Protocol = "uma"
	ProtocolBand        Protocol = "band"
	ProtocolAPI3        Protocol = "api3"
	ProtocolRedStone    Protocol = "redstone"
	ProtocolFlux        Protocol = "flux"
	ProtocolDIA         Protocol = "dia"
	ProtocolSwitchboard Protocol = "switchboard"
	ProtocolInsight     Protocol = "insight"
)

// ProtocolConfig is a tagged variant: exactly one concrete struct per
// protocol family, replacing a heavy dynamic union with a total, switchable
// interface.
type ProtocolConfig interface {
	Protocol() string
}

// ChainlinkConfig configures an EVM-aggregator instance.
type ChainlinkConfig struct {
	HeartbeatSeconds int // expected latestRoundData update cadence, used for health classification
}

func (ChainlinkConfig) Protocol() string { return string(ProtocolChainlink) }

// PythConfig configures a single-contract + feed-id instance.
type PythConfig struct {
	ContractAddress string
}

func (PythConfig) Protocol() string { return string(ProtocolPyth) }

// UMAConfig configures an optimistic-oracle event-sync instance.
type UMAConfig struct {
	OptimisticOracleV2Address string
	OptimisticOracleV3Address string
	VotingPeriodSeconds       int64
}

func (UMAConfig) Protocol() string { return string(ProtocolUMA) }

// BandConfig configures a REST-pull instance.
type BandConfig struct {
	BaseURL string
}

func (BandConfig) Protocol() string { return string(ProtocolBand) }

// API3Config configures a dAPI/proxy-read instance.
type API3Config struct {
	ProxyAddress string
}

func (API3Config) Protocol() string { return string(ProtocolAPI3) }

// RedStoneConfig configures an on-chain RedStone adapter instance.
type RedStoneConfig struct {
	ContractAddress string
}

func (RedStoneConfig) Protocol() string { return string(ProtocolRedStone) }

// FluxConfig configures a Flux instance; Version selects the v3
// EVM-aggregator shape or the legacy v1 REST-pull shape.
type FluxConfig struct {
	Version         string // "v1" or "v3"
	ContractAddress string
	BaseURL         string
}

func (FluxConfig) Protocol() string { return string(ProtocolFlux) }

// DIAConfig configures a REST-pull instance.
type DIAConfig struct {
	BaseURL string
}

func (DIAConfig) Protocol() string { return string(ProtocolDIA) }

// SwitchboardConfig configures an EVM-aggregator-shaped instance.
type SwitchboardConfig struct {
	ContractAddress string
}

func (SwitchboardConfig) Protocol() string { return string(ProtocolSwitchboard) }

// InsightConfig configures a REST-pull instance with its own RPC timeout
// override (INSIGHT_RPC_TIMEOUT_MS).
type InsightConfig struct {
	BaseURL        string
	RPCTimeoutMs   int
}

func (InsightConfig) Protocol() string { return string(ProtocolInsight) }

// ProtocolInstance is one configured (protocol, chain) pair the sync engine
// or a protocol client operates against.
type ProtocolInstance struct {
	ID             string
	Name           string
	Protocol       Protocol
	Chain          string
	Enabled        bool
	Config         InstanceConfig
	ProtocolConfig ProtocolConfig
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InstanceConfig carries the per-instance operational settings named in the
// external interfaces: RPC endpoints, block-range/confirmation tuning, and
// sync cadence.
type InstanceConfig struct {
	RPCURLs           []string
	StartBlock        uint64
	MaxBlockRange      uint64
	ConfirmationBlocks uint64
	SyncIntervalMs     int64
}

// DefaultInstanceConfig returns the documented defaults: maxBlockRange
// 10_000, confirmationBlocks 12.
func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		MaxBlockRange:      10_000,
		ConfirmationBlocks: 12,
		SyncIntervalMs:     30_000,
	}
}

// AssertionStatus is the lifecycle state of an Assertion.
type AssertionStatus string

const (
	AssertionProposed AssertionStatus = "Proposed"
	AssertionDisputed AssertionStatus = "Disputed"
	AssertionSettled  AssertionStatus = "Settled"
	AssertionExpired  AssertionStatus = "Expired"
)

// OracleVersion distinguishes Optimistic Oracle v2 (PriceProposed/...) event
// shapes from v3 (AssertionMade/...) event shapes.
type OracleVersion string

const (
	OracleV2 OracleVersion = "v2"
	OracleV3 OracleVersion = "v3"
)

// Assertion is an optimistic-oracle claim, identified by assertionId (v3) or
// "identifier-timestamp" (v2). Upserts are idempotent on ID; later events
// enrich fields but never resurrect a Settled row.
type Assertion struct {
	ID              string
	Chain           string
	Identifier      string
	AncillaryData   []byte
	Proposer        string
	ProposedValue   *string
	Reward          *string
	ProposedAt      time.Time
	DisputedAt      *time.Time
	SettledAt       *time.Time
	SettlementValue *int64
	Status          AssertionStatus
	Bond            *string
	DisputeBond     *string
	TxHash          string
	BlockNumber     uint64
	LogIndex        uint32
	Version         OracleVersion
}

// ApplyMade applies an AssertionMade/PriceProposed event. It is a no-op on
// fields that should not be overwritten once the assertion is Settled.
func (a *Assertion) ApplyMade(update Assertion) {
	if a.Status == AssertionSettled {
		return
	}
	*a = update
	a.Status = AssertionProposed
}

// ApplyDisputed applies an AssertionDisputed/PriceDisputed event.
// disputeBond is nil when the event carries no bond amount.
func (a *Assertion) ApplyDisputed(disputedAt time.Time, disputeBond *string) {
	if a.Status == AssertionSettled {
		return
	}
	a.Status = AssertionDisputed
	t := disputedAt
	a.DisputedAt = &t
	if disputeBond != nil {
		a.DisputeBond = disputeBond
	}
}

// ApplySettled applies an AssertionSettled/PriceSettled event. Settled is
// terminal: once applied, further calls are no-ops.
func (a *Assertion) ApplySettled(settledAt time.Time, settlementValue int64) {
	if a.Status == AssertionSettled {
		return
	}
	a.Status = AssertionSettled
	t := settledAt
	a.SettledAt = &t
	v := settlementValue
	a.SettlementValue = &v
}

// DisputeStatus is the lifecycle state of a Dispute.
type DisputeStatus string

const (
	DisputeVoting    DisputeStatus = "Voting"
	DisputeResolved  DisputeStatus = "Resolved"
	DisputeExecuted  DisputeStatus = "Executed"
)

// Dispute is a bonded counterclaim against an Assertion, resolved by voting.
// Exactly one Dispute exists per Assertion (soft invariant).
type Dispute struct {
	ID                  string
	Chain               string
	AssertionID         string
	Disputer            string
	DisputeBond         string
	DisputedAt          time.Time
	VotingEndsAt         time.Time
	Status              DisputeStatus
	CurrentVotesFor     int64
	CurrentVotesAgainst int64
	TotalVotes          int64
	TxHash              string
	BlockNumber          uint64
	LogIndex             uint32
	Version              OracleVersion
}

// DisputeID derives the "D:" + assertionId identity from §3.
func DisputeID(assertionID string) string {
	return "D:" + assertionID
}

// NewDispute constructs a Dispute in the Voting state, deriving
// votingEndsAt = disputedAt + votingPeriod.
func NewDispute(chain, assertionID, disputer, disputeBond string, disputedAt time.Time, votingPeriod time.Duration, txHash string, blockNumber uint64, logIndex uint32, version OracleVersion) Dispute {
	return Dispute{
		ID:           DisputeID(assertionID),
		Chain:        chain,
		AssertionID:  assertionID,
		Disputer:     disputer,
		DisputeBond:  disputeBond,
		DisputedAt:   disputedAt,
		VotingEndsAt: disputedAt.Add(votingPeriod),
		Status:       DisputeVoting,
		TxHash:       txHash,
		BlockNumber:  blockNumber,
		LogIndex:     logIndex,
		Version:      version,
	}
}

// Vote records a single VoteEmitted log, deduplicated by (txHash, logIndex).
type Vote struct {
	Chain       string
	AssertionID string
	Voter       string
	Support     bool
	Weight      *string
	TxHash      string
	BlockNumber uint64
	LogIndex    uint32
}

// VoteKey returns the deduplication key for a Vote.
func VoteKey(txHash string, logIndex uint32) string {
	return txHash + ":" + strconv.FormatUint(uint64(logIndex), 10)
}
