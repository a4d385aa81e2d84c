// Package errors provides unified error handling for the oracle observatory.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	// ErrCodeRPCUnreachable covers timeouts, refused connections, aborted
	// sockets, and generic fetch failures talking to a chain RPC endpoint.
	// Retryable on the same endpoint, then triggers rotation.
	ErrCodeRPCUnreachable ErrorCode = "ORACLE_RPC_UNREACHABLE"

	// ErrCodeContractNotFound is raised when the queried address has no
	// code at the given block. Fatal for the invocation; not retried.
	ErrCodeContractNotFound ErrorCode = "ORACLE_CONTRACT_NOT_FOUND"

	// ErrCodeSyncFailed is the catch-all for decoding errors, storage
	// errors, and invariant violations inside the sync engine.
	ErrCodeSyncFailed ErrorCode = "ORACLE_SYNC_FAILED"

	// ErrCodePriceFetchError is a single-symbol failure inside a protocol
	// client. Never fails a batch call.
	ErrCodePriceFetchError ErrorCode = "ORACLE_PRICE_FETCH_ERROR"

	// ErrCodeValidationError marks a rejected configuration. Surfaces at
	// instance create/update time, never on a runtime path.
	ErrCodeValidationError ErrorCode = "ORACLE_VALIDATION_ERROR"

	// ErrCodeAnomalyDegenerate marks a division-by-zero guard tripping
	// inside the anomaly detector. The specific test is skipped, not
	// treated as a detection or an error surfaced to the caller.
	ErrCodeAnomalyDegenerate ErrorCode = "ORACLE_ANOMALY_DEGENERATE"
)

// ServiceError represents a structured error with a code, message, and HTTP
// status that would apply if this error were surfaced through an API layer.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional structured details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// RPCUnreachable builds an ErrCodeRPCUnreachable error for the given endpoint.
func RPCUnreachable(endpoint string, err error) *ServiceError {
	return Wrap(ErrCodeRPCUnreachable, "RPC endpoint unreachable", http.StatusServiceUnavailable, err).
		WithDetails("endpoint", endpoint)
}

// ContractNotFound builds an ErrCodeContractNotFound error.
func ContractNotFound(chain, address string) *ServiceError {
	return New(ErrCodeContractNotFound, "contract not found at address", http.StatusNotFound).
		WithDetails("chain", chain).
		WithDetails("address", address)
}

// SyncFailed builds an ErrCodeSyncFailed error for a sync-engine failure.
func SyncFailed(instanceID string, err error) *ServiceError {
	return Wrap(ErrCodeSyncFailed, "event sync failed", http.StatusInternalServerError, err).
		WithDetails("instanceId", instanceID)
}

// PriceFetchError builds an ErrCodePriceFetchError for a single symbol.
func PriceFetchError(protocol, chain, symbol string, cause error) *ServiceError {
	return Wrap(ErrCodePriceFetchError, "price fetch failed", http.StatusBadGateway, cause).
		WithDetails("protocol", protocol).
		WithDetails("chain", chain).
		WithDetails("symbol", symbol)
}

// ValidationError builds an ErrCodeValidationError for a rejected config field.
func ValidationError(field, reason string) *ServiceError {
	return New(ErrCodeValidationError, "configuration rejected", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// AnomalyDegenerate builds an ErrCodeAnomalyDegenerate error for a skipped test.
func AnomalyDegenerate(test string) *ServiceError {
	return New(ErrCodeAnomalyDegenerate, "anomaly test skipped: degenerate input", http.StatusOK).
		WithDetails("test", test)
}

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// Code extracts the ErrorCode from an error chain, the zero value if absent.
func Code(err error) ErrorCode {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code
	}
	return ""
}

// IsRetryable reports whether the error's code is conventionally retryable
// (rpc_unreachable and sync_failed; contract_not_found and validation_error
// are not).
func IsRetryable(err error) bool {
	switch Code(err) {
	case ErrCodeRPCUnreachable, ErrCodeSyncFailed:
		return true
	default:
		return false
	}
}

// GetHTTPStatus returns the HTTP status code an error would surface as.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
