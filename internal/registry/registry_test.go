package registry

import "testing"

func TestContractPerSymbolRoundTrip(t *testing.T) {
	r := New()
	r.RegisterContractPerSymbol("chainlink", "ethereum", "eth/usd", "0xAAA")

	addr, ok := r.GetContractAddress("chainlink", "ethereum", "ETH/usd ")
	if !ok || addr != "0xAAA" {
		t.Fatalf("expected normalized symbol lookup to hit, got ok=%v addr=%q", ok, addr)
	}

	if _, ok := r.GetContractAddress("chainlink", "ethereum", "BTC/USD"); ok {
		t.Fatalf("expected absent sentinel for unregistered symbol")
	}
}

func TestSingleContractAndFeedID(t *testing.T) {
	r := New()
	r.RegisterSingleContract("pyth", "ethereum", "0xPYTH")
	r.RegisterFeedID("pyth", "ethereum", "ETH/USD", "0xfeed")

	addr, ok := r.GetSingleContractAddress("pyth", "ethereum")
	if !ok || addr != "0xPYTH" {
		t.Fatalf("expected single contract address, got ok=%v addr=%q", ok, addr)
	}

	id, ok := r.GetFeedID("pyth", "ethereum", "eth/usd")
	if !ok || id != "0xfeed" {
		t.Fatalf("expected feed id, got ok=%v id=%q", ok, id)
	}
}

func TestIsSupportedAndEnumeration(t *testing.T) {
	r := New()
	r.RegisterRESTAssets("dia", "polygon", []string{"BTC/USD", "ETH/USD"})

	if !r.IsSupported("dia", "polygon") {
		t.Fatalf("expected dia/polygon to be supported")
	}
	if r.IsSupported("dia", "ethereum") {
		t.Fatalf("expected dia/ethereum to be unsupported")
	}

	symbols := r.GetAvailableSymbols("dia", "polygon")
	if len(symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %v", symbols)
	}
}
