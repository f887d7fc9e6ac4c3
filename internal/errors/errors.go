package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound            = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists       = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation          = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation    = new(ErrCodeInvalidOperation, "invalid operation")
	ErrInvalidState        = new(ErrCodeInvalidState, "state transition not permitted")
	ErrInsufficientBalance = new(ErrCodeInsufficientBalance, "insufficient balance")
	ErrPermissionDenied    = new(ErrCodePermissionDenied, "permission denied")
	ErrProcessorRejected   = new(ErrCodeProcessorRejected, "payment processor rejected the request")
	ErrProcessorTransient  = new(ErrCodeProcessorTransient, "payment processor temporarily unavailable")
	ErrWebhookTransient    = new(ErrCodeWebhookTransient, "webhook endpoint temporarily unavailable")
	ErrIntegrityViolation  = new(ErrCodeIntegrityViolation, "datastore integrity violation")
	ErrHTTPClient          = new(ErrCodeHTTPClient, "http client error")
	ErrDatabase            = new(ErrCodeDatabase, "database error")
	ErrSystem              = new(ErrCodeSystemError, "system error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrHTTPClient:          http.StatusInternalServerError,
		ErrDatabase:            http.StatusInternalServerError,
		ErrNotFound:            http.StatusNotFound,
		ErrAlreadyExists:       http.StatusConflict,
		ErrValidation:          http.StatusBadRequest,
		ErrInvalidOperation:    http.StatusBadRequest,
		ErrInvalidState:        http.StatusConflict,
		ErrInsufficientBalance: http.StatusPaymentRequired,
		ErrPermissionDenied:    http.StatusForbidden,
		ErrProcessorRejected:   http.StatusBadGateway,
		ErrProcessorTransient:  http.StatusBadGateway,
		ErrWebhookTransient:    http.StatusBadGateway,
		ErrIntegrityViolation:  http.StatusInternalServerError,
		ErrSystem:              http.StatusInternalServerError,
	}
)

const (
	ErrCodeHTTPClient          = "http_client_error"
	ErrCodeSystemError         = "system_error"
	ErrCodeNotFound            = "not_found"
	ErrCodeAlreadyExists       = "already_exists"
	ErrCodeValidation          = "validation_error"
	ErrCodeInvalidOperation    = "invalid_operation"
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeInsufficientBalance = "insufficient_balance"
	ErrCodePermissionDenied    = "permission_denied"
	ErrCodeProcessorRejected   = "processor_rejected"
	ErrCodeProcessorTransient  = "processor_transient"
	ErrCodeWebhookTransient    = "webhook_transient"
	ErrCodeIntegrityViolation  = "integrity_violation"
	ErrCodeDatabase            = "database_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func New(code string, message string) *InternalError {
	return new(code, message)
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsInvalidState checks if an error is an invalid state transition error
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsInsufficientBalance checks if an error is an insufficient balance error
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsProcessorTransient checks if an error is a retryable processor error
func IsProcessorTransient(err error) bool {
	return errors.Is(err, ErrProcessorTransient)
}

// IsWebhookTransient checks if an error is a retryable webhook delivery error
func IsWebhookTransient(err error) bool {
	return errors.Is(err, ErrWebhookTransient)
}

// IsHTTPClient checks if an error is an http client error
func IsHTTPClient(err error) bool {
	return errors.Is(err, ErrHTTPClient)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
