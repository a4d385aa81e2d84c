// Package chainrpc provides the RPC client pool (C1) and endpoint rotator
// (C2): a TTL-evicted cache of JSON-RPC clients keyed by endpoint and
// chain, fronted by a per-endpoint token-bucket limiter, plus round-robin
// failover with EWMA latency tracking.
package chainrpc

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client is a thin JSON-RPC-over-HTTPS client for one endpoint. It carries
// a hard per-request timeout and performs zero built-in retries; retry is
// the caller's concern (C8).
type Client struct {
	Endpoint   string
	ChainID    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter

	createdAt time.Time
}

const (
	// DefaultClientTimeout is the hard per-request deadline every pooled
	// client carries.
	DefaultClientTimeout = 30 * time.Second
	// poolEntryTTL is how long a pooled client is considered fresh.
	poolEntryTTL = 60 * time.Second
	// sweepInterval is how often the background sweep runs.
	sweepInterval = 60 * time.Second
	// evictAfter is the age at which the sweep evicts an entry (2x TTL).
	evictAfter = 2 * poolEntryTTL
	// defaultRateLimit bounds requests/second issued to a single endpoint so
	// a misbehaving endpoint can't be hammered by retry/rotation loops.
	defaultRateLimit = rate.Limit(20)
	defaultBurst     = 40
)

type poolKey struct {
	endpoint string
	chainID  string
}

// Pool caches Clients keyed by endpoint||chainId. Construction is cheap and
// idempotent; a race that creates two clients for the same key is
// acceptable — last writer wins.
type Pool struct {
	mu      sync.RWMutex
	clients map[poolKey]*Client
	stopCh  chan struct{}
	stopOnce sync.Once
}

// NewPool creates an empty pool and starts its background sweep goroutine.
// Test builds should construct Clients directly (NewClient) to bypass the
// cache and avoid cross-test pollution, per the pool's design note.
func NewPool() *Pool {
	p := &Pool{
		clients: make(map[poolKey]*Client),
		stopCh:  make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

// NewClient constructs a standalone client outside the pool, for direct use
// in tests or one-off callers.
func NewClient(endpoint, chainID string) *Client {
	return &Client{
		Endpoint:   endpoint,
		ChainID:    chainID,
		HTTPClient: &http.Client{Timeout: DefaultClientTimeout},
		Limiter:    rate.NewLimiter(defaultRateLimit, defaultBurst),
		createdAt:  time.Now(),
	}
}

// Get returns the cached client for (endpoint, chainID), constructing one
// if absent or expired.
func (p *Pool) Get(endpoint, chainID string) *Client {
	key := poolKey{endpoint, chainID}

	p.mu.RLock()
	c, ok := p.clients[key]
	p.mu.RUnlock()
	if ok && time.Since(c.createdAt) < poolEntryTTL {
		return c
	}

	fresh := NewClient(endpoint, chainID)
	p.mu.Lock()
	p.clients[key] = fresh
	p.mu.Unlock()
	return fresh
}

// Evict removes the cached client for (endpoint, chainID).
func (p *Pool) Evict(endpoint, chainID string) {
	p.mu.Lock()
	delete(p.clients, poolKey{endpoint, chainID})
	p.mu.Unlock()
}

// SweepStale evicts entries older than 2x TTL. Exported so tests can drive
// it deterministically without waiting for the background ticker.
func (p *Pool) SweepStale() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, c := range p.clients {
		if now.Sub(c.createdAt) > evictAfter {
			delete(p.clients, key)
		}
	}
}

func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.SweepStale()
		}
	}
}

// Stop halts the background sweep goroutine.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Size reports the number of currently cached clients, for tests/metrics.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}
