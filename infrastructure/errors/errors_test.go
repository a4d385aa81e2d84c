package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestServiceErrorWrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: timeout")
	err := RPCUnreachable("https://rpc.example.com", cause)

	if err.Code != ErrCodeRPCUnreachable {
		t.Fatalf("expected code %s, got %s", ErrCodeRPCUnreachable, err.Code)
	}
	if !errors.Is(err, err) {
		t.Fatalf("expected error to equal itself")
	}
	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Fatalf("expected unwrap to return cause, got %v", unwrapped)
	}
	if err.Details["endpoint"] != "https://rpc.example.com" {
		t.Fatalf("expected endpoint detail to be set")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{RPCUnreachable("e", nil), true},
		{SyncFailed("inst-1", nil), true},
		{ContractNotFound("ethereum", "0xabc"), false},
		{ValidationError("rpcUrl", "empty"), false},
		{fmt.Errorf("plain error"), false},
	}

	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestGetServiceError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", PriceFetchError("chainlink", "ethereum", "ETH/USD", errors.New("boom")))
	svcErr := GetServiceError(wrapped)
	if svcErr == nil {
		t.Fatalf("expected to extract a ServiceError")
	}
	if svcErr.Code != ErrCodePriceFetchError {
		t.Fatalf("expected %s, got %s", ErrCodePriceFetchError, svcErr.Code)
	}
}
