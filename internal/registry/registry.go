// Package registry provides the static, read-only feed lookup tables every
// protocol adapter consults to turn (protocol, chain, symbol) into a
// contract address or feed id. All accessors return an explicit absent
// sentinel instead of erroring.
package registry

import "strings"

// contractKey identifies a contract-per-(chain,symbol) or
// single-contract-per-chain entry.
type contractKey struct {
	protocol string
	chain    string
}

type symbolKey struct {
	protocol string
	chain    string
	symbol   string
}

// Registry holds the three feed-registry table shapes named in the
// external interfaces: contract-per-(chain,symbol), single-contract +
// feed-id-per-symbol, and REST asset lists.
type Registry struct {
	// contractPerSymbol: Chainlink-style per-symbol aggregator addresses.
	contractPerSymbol map[symbolKey]string
	// singleContract: one contract address per (protocol, chain), used by
	// the single-contract + feed-id family (Pyth, RedStone, Flux v2).
	singleContract map[contractKey]string
	// feedIDs: per-symbol feed id within a single-contract protocol.
	feedIDs map[symbolKey]string
	// restAssets: REST-pull asset list per (protocol, chain).
	restAssets map[contractKey][]string
}

// New returns an empty registry ready for population via the Register*
// methods (normally called once at startup from loaded instance configs).
func New() *Registry {
	return &Registry{
		contractPerSymbol: make(map[symbolKey]string),
		singleContract:    make(map[contractKey]string),
		feedIDs:           make(map[symbolKey]string),
		restAssets:        make(map[contractKey][]string),
	}
}

func normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// RegisterContractPerSymbol adds a per-(chain,symbol) contract address
// entry (the Chainlink shape).
func (r *Registry) RegisterContractPerSymbol(protocol, chain, symbol, address string) {
	r.contractPerSymbol[symbolKey{protocol, chain, normalize(symbol)}] = address
}

// RegisterSingleContract adds the one contract address a protocol uses per
// chain (the Pyth/RedStone/Flux-v2 shape).
func (r *Registry) RegisterSingleContract(protocol, chain, address string) {
	r.singleContract[contractKey{protocol, chain}] = address
}

// RegisterFeedID adds a per-symbol feed id within a single-contract
// protocol.
func (r *Registry) RegisterFeedID(protocol, chain, symbol, feedID string) {
	r.feedIDs[symbolKey{protocol, chain, normalize(symbol)}] = feedID
}

// RegisterRESTAssets adds the list of supported symbols for a REST-pull
// protocol on a chain.
func (r *Registry) RegisterRESTAssets(protocol, chain string, symbols []string) {
	r.restAssets[contractKey{protocol, chain}] = append([]string(nil), symbols...)
}

// GetContractAddress returns the per-(chain,symbol) contract address, or
// ("", false) if absent.
func (r *Registry) GetContractAddress(protocol, chain, symbol string) (string, bool) {
	addr, ok := r.contractPerSymbol[symbolKey{protocol, chain, normalize(symbol)}]
	return addr, ok
}

// GetSingleContractAddress returns the one contract address a protocol
// uses on a chain, or ("", false) if absent.
func (r *Registry) GetSingleContractAddress(protocol, chain string) (string, bool) {
	addr, ok := r.singleContract[contractKey{protocol, chain}]
	return addr, ok
}

// GetFeedID returns the feed id for (protocol, chain, symbol), or
// ("", false) if absent.
func (r *Registry) GetFeedID(protocol, chain, symbol string) (string, bool) {
	id, ok := r.feedIDs[symbolKey{protocol, chain, normalize(symbol)}]
	return id, ok
}

// GetSupportedChains returns every chain with at least one registered entry
// for the given protocol, across all three table shapes.
func (r *Registry) GetSupportedChains(protocol string) []string {
	seen := make(map[string]bool)
	for k := range r.contractPerSymbol {
		if k.protocol == protocol {
			seen[k.chain] = true
		}
	}
	for k := range r.singleContract {
		if k.protocol == protocol {
			seen[k.chain] = true
		}
	}
	for k := range r.restAssets {
		if k.protocol == protocol {
			seen[k.chain] = true
		}
	}
	chains := make([]string, 0, len(seen))
	for chain := range seen {
		chains = append(chains, chain)
	}
	return chains
}

// GetAvailableSymbols returns every symbol registered for (protocol, chain),
// across the contract-per-symbol, feed-id, and REST-asset tables.
func (r *Registry) GetAvailableSymbols(protocol, chain string) []string {
	seen := make(map[string]bool)
	for k := range r.contractPerSymbol {
		if k.protocol == protocol && k.chain == chain {
			seen[k.symbol] = true
		}
	}
	for k := range r.feedIDs {
		if k.protocol == protocol && k.chain == chain {
			seen[k.symbol] = true
		}
	}
	for _, sym := range r.restAssets[contractKey{protocol, chain}] {
		seen[normalize(sym)] = true
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	return symbols
}

// IsSupported reports whether the registry has any entry for (protocol,
// chain).
func (r *Registry) IsSupported(protocol, chain string) bool {
	for _, c := range r.GetSupportedChains(protocol) {
		if c == chain {
			return true
		}
	}
	return false
}
