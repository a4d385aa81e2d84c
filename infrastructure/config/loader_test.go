package config

import (
	"testing"
	"time"
)

func TestSplitAndTrimCSV(t *testing.T) {
	got := SplitAndTrimCSV(" https://a.example.com , https://b.example.com ,,")
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestInstanceEnvKey(t *testing.T) {
	got := InstanceEnvKey("UMA", "ethereum", "RPC_URL")
	if got != "UMA_ETHEREUM_RPC_URL" {
		t.Fatalf("got %q", got)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	if got := ParseDurationOrDefault("30s", time.Second); got != 30*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := ParseDurationOrDefault("garbage", 5*time.Second); got != 5*time.Second {
		t.Fatalf("got %v", got)
	}
}
