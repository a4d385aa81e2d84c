package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSyncRangeIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("oracle-observatory-test", reg)

	m.RecordSyncRange("uma-ethereum", "success", 250*time.Millisecond)

	if got := testutil.ToFloat64(m.SyncRangesTotal.WithLabelValues("uma-ethereum", "success")); got != 1 {
		t.Fatalf("expected 1 range recorded, got %v", got)
	}
}

func TestRecordPriceFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("oracle-observatory-test", reg)

	m.RecordPriceFetch("chainlink", "ethereum", "ok", 10*time.Millisecond)
	m.RecordPriceFetch("chainlink", "ethereum", "error", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.PriceFetchTotal.WithLabelValues("chainlink", "ethereum", "ok")); got != 1 {
		t.Fatalf("expected 1 ok fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.PriceFetchTotal.WithLabelValues("chainlink", "ethereum", "error")); got != 1 {
		t.Fatalf("expected 1 error fetch, got %v", got)
	}
}

func TestEnabledDefaultsByEnvironment(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("ENVIRONMENT", "production")
	if Enabled() {
		t.Fatalf("expected metrics disabled by default in production")
	}

	t.Setenv("ENVIRONMENT", "development")
	if !Enabled() {
		t.Fatalf("expected metrics enabled by default outside production")
	}

	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("ENVIRONMENT", "production")
	if !Enabled() {
		t.Fatalf("expected explicit METRICS_ENABLED=true to win")
	}
}
