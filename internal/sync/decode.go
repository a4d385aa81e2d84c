package sync

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/r3e-network/oracle-observatory/internal/chainrpc"
	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
)

// DecodedEvent is one log decoded into the entity mutation it produces.
// Exactly one of Assertion/Dispute/Vote is populated.
type DecodedEvent struct {
	Assertion *oracle.Assertion
	Dispute   *oracle.Dispute
	Vote      *oracle.Vote
}

// DecodeLog dispatches on the log's topic0 and decodes it into the entity
// mutation it represents. An unrecognized topic0 is not an error: the
// scan requested exactly these topics, so this should not occur, but a
// defensive nil/nil keeps a malformed response from aborting the range.
func DecodeLog(chain string, log chainrpc.Log, votingPeriod time.Duration) (*DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}
	topic0 := log.Topics[0]
	data := stripHexPrefix(log.Data)

	blockNumber, err := parseBlockNumber(log.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", topic0, err)
	}
	logIndex, err := parseLogIndex(log.LogIndex)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", topic0, err)
	}

	switch topic0 {
	case TopicPriceProposed:
		return decodePriceProposed(chain, log, data, blockNumber, logIndex)
	case TopicPriceDisputed:
		return decodePriceDisputed(chain, log, data, blockNumber, logIndex)
	case TopicPriceSettled:
		return decodePriceSettled(chain, log, data, blockNumber, logIndex)
	case TopicAssertionMade:
		return decodeAssertionMade(chain, log, data, blockNumber, logIndex)
	case TopicAssertionDisputed:
		return decodeAssertionDisputed(chain, log, data, blockNumber, logIndex, votingPeriod)
	case TopicAssertionSettled:
		return decodeAssertionSettled(chain, log, data, blockNumber, logIndex)
	case TopicVoteEmitted:
		return decodeVoteEmitted(chain, log, data, blockNumber, logIndex)
	default:
		return nil, nil
	}
}

// v2AssertionID mirrors §3: "identifier-timestamp" is the id for
// Optimistic Oracle v2 entities.
func v2AssertionID(identifier string, timestamp int64) string {
	return fmt.Sprintf("%s-%d", identifier, timestamp)
}

func decodePriceProposed(chain string, log chainrpc.Log, data string, blockNumber uint64, logIndex uint32) (*DecodedEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("PriceProposed: missing identifier topic")
	}
	identifier := log.Topics[1]

	timestamp := wordAt(data, 0).Int64()
	ancillaryData := bytesAt(data, 32)
	price := wordAtSigned(data, 64)
	proposer := addressAt(data, 96)
	reward := wordAt(data, 128).String()

	assertion := oracle.Assertion{
		ID:            v2AssertionID(identifier, timestamp),
		Chain:         chain,
		Identifier:    identifier,
		AncillaryData: ancillaryData,
		Proposer:      proposer,
		ProposedValue: strPtr(price.String()),
		Reward:        strPtr(reward),
		ProposedAt:    time.Unix(timestamp, 0),
		Status:        oracle.AssertionProposed,
		TxHash:        log.TransactionHash,
		BlockNumber:   blockNumber,
		LogIndex:      logIndex,
		Version:       oracle.OracleV2,
	}
	return &DecodedEvent{Assertion: &assertion}, nil
}

func decodePriceDisputed(chain string, log chainrpc.Log, data string, blockNumber uint64, logIndex uint32) (*DecodedEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("PriceDisputed: missing identifier topic")
	}
	identifier := log.Topics[1]
	timestamp := wordAt(data, 0).Int64()
	disputedAt := time.Now()

	assertion := oracle.Assertion{
		ID:         v2AssertionID(identifier, timestamp),
		Status:     oracle.AssertionDisputed,
		DisputedAt: &disputedAt,
	}
	return &DecodedEvent{Assertion: &assertion}, nil
}

func decodePriceSettled(chain string, log chainrpc.Log, data string, blockNumber uint64, logIndex uint32) (*DecodedEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("PriceSettled: missing identifier topic")
	}
	identifier := log.Topics[1]
	timestamp := wordAt(data, 0).Int64()
	price := wordAtSigned(data, 64)
	settledAt := time.Now()
	value := price.Int64()

	assertion := oracle.Assertion{
		ID:              v2AssertionID(identifier, timestamp),
		Status:          oracle.AssertionSettled,
		SettledAt:       &settledAt,
		SettlementValue: &value,
	}
	return &DecodedEvent{Assertion: &assertion}, nil
}

func decodeAssertionMade(chain string, log chainrpc.Log, data string, blockNumber uint64, logIndex uint32) (*DecodedEvent, error) {
	if len(log.Topics) < 4 {
		return nil, fmt.Errorf("AssertionMade: expected 3 indexed topics, got %d", len(log.Topics)-1)
	}
	assertionID := log.Topics[1]
	asserter := addressAt(stripHexPrefix(log.Topics[3]), 0)
	bond := wordAt(data, 0).String()
	identifier := fmt.Sprintf("0x%064x", wordAt(data, 32))

	assertion := oracle.Assertion{
		ID:            assertionID,
		Chain:         chain,
		Identifier:    identifier,
		Proposer:      asserter,
		Bond:          strPtr(bond),
		ProposedAt:    time.Now(),
		Status:        oracle.AssertionProposed,
		TxHash:        log.TransactionHash,
		BlockNumber:   blockNumber,
		LogIndex:      logIndex,
		Version:       oracle.OracleV3,
	}
	return &DecodedEvent{Assertion: &assertion}, nil
}

func decodeAssertionDisputed(chain string, log chainrpc.Log, data string, blockNumber uint64, logIndex uint32, votingPeriod time.Duration) (*DecodedEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("AssertionDisputed: expected 2 indexed topics, got %d", len(log.Topics)-1)
	}
	assertionID := log.Topics[1]
	disputer := addressAt(stripHexPrefix(log.Topics[2]), 0)
	disputedAt := time.Now()

	assertion := oracle.Assertion{
		ID:         assertionID,
		Status:     oracle.AssertionDisputed,
		DisputedAt: &disputedAt,
	}
	dispute := oracle.NewDispute(chain, assertionID, disputer, "", disputedAt, votingPeriod, log.TransactionHash, blockNumber, logIndex, oracle.OracleV3)
	return &DecodedEvent{Assertion: &assertion, Dispute: &dispute}, nil
}

func decodeAssertionSettled(chain string, log chainrpc.Log, data string, blockNumber uint64, logIndex uint32) (*DecodedEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("AssertionSettled: missing assertionId topic")
	}
	assertionID := log.Topics[1]
	settledTruthfully := boolAt(data, 0)
	payout := wordAt(data, 32).String()
	settledAt := time.Now()
	value := int64(0)
	if settledTruthfully {
		value = 1
	}

	assertion := oracle.Assertion{
		ID:              assertionID,
		Status:          oracle.AssertionSettled,
		SettledAt:       &settledAt,
		SettlementValue: &value,
		DisputeBond:     strPtr(payout),
	}
	return &DecodedEvent{Assertion: &assertion}, nil
}

func decodeVoteEmitted(chain string, log chainrpc.Log, data string, blockNumber uint64, logIndex uint32) (*DecodedEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("VoteEmitted: expected 2 indexed topics, got %d", len(log.Topics)-1)
	}
	assertionID := log.Topics[1]
	voter := addressAt(stripHexPrefix(log.Topics[2]), 0)
	support := boolAt(data, 0)
	weight := wordAt(data, 32).String()

	vote := oracle.Vote{
		Chain:       chain,
		AssertionID: assertionID,
		Voter:       voter,
		Support:     support,
		Weight:      strPtr(weight),
		TxHash:      log.TransactionHash,
		BlockNumber: blockNumber,
		LogIndex:    logIndex,
	}
	return &DecodedEvent{Vote: &vote}, nil
}

func wordAtSigned(data string, byteOffset int) *big.Int {
	v := wordAt(data, byteOffset)
	topBit := new(big.Int).Lsh(big.NewInt(1), 255)
	if v.Cmp(topBit) >= 0 {
		modulus := new(big.Int).Lsh(big.NewInt(1), 256)
		return new(big.Int).Sub(v, modulus)
	}
	return v
}

func strPtr(s string) *string { return &s }

func parseBlockNumber(hex string) (uint64, error) {
	return strconv.ParseUint(stripHexPrefix(hex), 16, 64)
}

func parseLogIndex(hex string) (uint32, error) {
	v, err := strconv.ParseUint(stripHexPrefix(hex), 16, 32)
	return uint32(v), err
}
