package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	l := New("oracle-observatory", "debug", "json")
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	return l, buf
}

func TestWithContextAddsTraceID(t *testing.T) {
	l, buf := newTestLogger()
	ctx := WithTraceID(context.Background(), "trace-123")

	l.WithContext(ctx).Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if entry["trace_id"] != "trace-123" {
		t.Fatalf("expected trace_id field, got %v", entry["trace_id"])
	}
	if entry["service"] != "oracle-observatory" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
}

func TestLogSyncAttemptRecordsOutcome(t *testing.T) {
	l, buf := newTestLogger()
	ctx := context.Background()

	l.LogSyncAttempt(ctx, "uma-ethereum", 100, 200, 5, nil)
	if !strings.Contains(buf.String(), "sync range completed") {
		t.Fatalf("expected success message, got %s", buf.String())
	}

	buf.Reset()
	l.LogSyncAttempt(ctx, "uma-ethereum", 100, 200, 0, errors.New("boom"))
	if !strings.Contains(buf.String(), "sync range failed") {
		t.Fatalf("expected failure message, got %s", buf.String())
	}
}

func TestLogRPCFailoverRedactedEndpoint(t *testing.T) {
	l, buf := newTestLogger()
	l.LogRPCFailover(context.Background(), "https://rpc1.example.com/[REDACTED]", "https://rpc2.example.com/[REDACTED]", 3)

	if !strings.Contains(buf.String(), "rotated rpc endpoint") {
		t.Fatalf("expected rotation message, got %s", buf.String())
	}
	if strings.Contains(buf.String(), "apiKey=") {
		t.Fatalf("log output should never contain raw credentials")
	}
}

func TestNewTraceIDIsUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	if a == b {
		t.Fatalf("expected distinct trace ids, got %s twice", a)
	}
}
