package sync

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Event signatures for the seven log types the Event Sync Engine ingests:
// Optimistic Oracle v2's PriceProposed/PriceDisputed/PriceSettled, and v3's
// AssertionMade/AssertionDisputed/AssertionSettled/VoteEmitted.
const (
	sigPriceProposed     = "PriceProposed(bytes32,uint256,bytes,int256,address,uint256)"
	sigPriceDisputed     = "PriceDisputed(bytes32,uint256,bytes,address)"
	sigPriceSettled      = "PriceSettled(bytes32,uint256,bytes,int256)"
	sigAssertionMade     = "AssertionMade(bytes32,bytes32,address,uint64,bytes32)"
	sigAssertionDisputed = "AssertionDisputed(bytes32,address)"
	sigAssertionSettled  = "AssertionSettled(bytes32,address,bool,uint256)"
	sigVoteEmitted       = "VoteEmitted(bytes32,address,bool,uint256)"
)

// topic0 is the keccak256 hash of an event signature, the value every EVM
// log carries as Topics[0].
func topic0(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Topic0 hashes for the seven log types, derived from their signatures
// rather than hand-copied so a signature typo fails loudly instead of
// silently decoding the wrong event.
var (
	TopicPriceProposed     = topic0(sigPriceProposed)
	TopicPriceDisputed     = topic0(sigPriceDisputed)
	TopicPriceSettled      = topic0(sigPriceSettled)
	TopicAssertionMade     = topic0(sigAssertionMade)
	TopicAssertionDisputed = topic0(sigAssertionDisputed)
	TopicAssertionSettled  = topic0(sigAssertionSettled)
	TopicVoteEmitted       = topic0(sigVoteEmitted)
)

// oracleV2Topics and oracleV3Topics group the topic filters per-scan,
// matching the two optimistic-oracle ABI generations named in the
// external interfaces.
var oracleV2Topics = []string{TopicPriceProposed, TopicPriceDisputed, TopicPriceSettled}
var oracleV3Topics = []string{TopicAssertionMade, TopicAssertionDisputed, TopicAssertionSettled, TopicVoteEmitted}
