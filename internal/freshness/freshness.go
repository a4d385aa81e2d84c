// Package freshness derives staleness from a reading's timestamp and a
// protocol-specific threshold.
package freshness

import "time"

// Freshness is the result of calculateFreshness.
type Freshness struct {
	IsStale          bool
	StalenessSeconds int64
}

// Calculate derives {isStale, stalenessSeconds} from a reading timestamp and
// a threshold. stalenessSeconds = max(0, floor((now-timestamp)/1000));
// isStale is strict (at-threshold is fresh).
func Calculate(now, timestamp time.Time, thresholdSeconds int64) Freshness {
	deltaMs := now.Sub(timestamp).Milliseconds()
	staleness := deltaMs / 1000
	if staleness < 0 {
		staleness = 0
	}
	return Freshness{
		IsStale:          staleness > thresholdSeconds,
		StalenessSeconds: staleness,
	}
}

// Default staleness thresholds, in seconds, per protocol family.
const (
	DefaultChainlinkThresholdSeconds  = 3600
	DefaultPythThresholdSeconds       = 60
	DefaultRedStoneThresholdSeconds   = 60
	DefaultFluxThresholdSeconds       = 300
	DefaultAPI3ThresholdSeconds       = 300
	DefaultDIAThresholdSeconds        = 300
	DefaultBandThresholdSeconds       = 300
)

// DefaultThresholdSeconds returns the documented default staleness
// threshold for a protocol, or the Chainlink default if the protocol is
// unrecognized.
func DefaultThresholdSeconds(protocol string) int64 {
	switch protocol {
	case "chainlink":
		return DefaultChainlinkThresholdSeconds
	case "pyth":
		return DefaultPythThresholdSeconds
	case "redstone":
		return DefaultRedStoneThresholdSeconds
	case "flux":
		return DefaultFluxThresholdSeconds
	case "api3":
		return DefaultAPI3ThresholdSeconds
	case "dia":
		return DefaultDIAThresholdSeconds
	case "band":
		return DefaultBandThresholdSeconds
	default:
		return DefaultChainlinkThresholdSeconds
	}
}
