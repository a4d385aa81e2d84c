package chainrpc

import "testing"

func TestPoolGetIsIdempotentWithinTTL(t *testing.T) {
	p := NewPool()
	defer p.Stop()

	c1 := p.Get("https://rpc.example.com", "1")
	c2 := p.Get("https://rpc.example.com", "1")
	if c1 != c2 {
		t.Fatalf("expected the same cached client within TTL")
	}

	c3 := p.Get("https://rpc.example.com", "2")
	if c3 == c1 {
		t.Fatalf("expected a distinct client for a distinct chain id")
	}
}

func TestPoolEvict(t *testing.T) {
	p := NewPool()
	defer p.Stop()

	p.Get("https://rpc.example.com", "1")
	if p.Size() != 1 {
		t.Fatalf("expected 1 cached client, got %d", p.Size())
	}
	p.Evict("https://rpc.example.com", "1")
	if p.Size() != 0 {
		t.Fatalf("expected 0 cached clients after evict, got %d", p.Size())
	}
}
