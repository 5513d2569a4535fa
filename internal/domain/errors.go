package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode extracts the domain error code from err or any error it wraps.
// Non-domain errors report ErrCodeInternalError.
func ErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ErrCodeInternalError
}

// Common domain error codes
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeTransient      = "TRANSIENT_NETWORK"
	ErrCodeCorruptArchive = "CORRUPT_ARCHIVE"
	ErrCodeEmptyCorpus    = "EMPTY_CORPUS"
	ErrCodeProvider       = "PROVIDER_ERROR"
	ErrCodePersistence    = "PERSISTENCE_ERROR"
)

// Bootstrap-fatal errors: any of these during startup must abort the
// process before it accepts requests.
var (
	ErrArtifactAuth     = NewDomainError(ErrCodeUnauthorized, "artifact source rejected credentials")
	ErrArtifactNotFound = NewDomainError(ErrCodeNotFound, "snapshot artifact not found at source")
	ErrCorruptArchive   = NewDomainError(ErrCodeCorruptArchive, "snapshot archive is corrupt or truncated")
	ErrEmptyCorpus      = NewDomainError(ErrCodeEmptyCorpus, "installed snapshot contains zero documents")
)

// Bootstrap-retryable errors
var (
	ErrTransientNetwork = NewDomainError(ErrCodeTransient, "transient network failure fetching snapshot artifact")
)

// Request-local errors: logged and surfaced per request, the process keeps serving.
var (
	ErrProvider            = NewDomainError(ErrCodeProvider, "completion provider request failed")
	ErrProviderRateLimited = NewDomainError(ErrCodeProvider, "completion provider rate limit reached")
	ErrPersistence         = NewDomainError(ErrCodePersistence, "durable conversation store unavailable")
)

// Validation errors
var (
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query text cannot be empty")
	ErrInvalidRefreshPolicy = NewDomainError(ErrCodeValidation, "invalid refresh policy")
	ErrMissingSourceURL     = NewDomainError(ErrCodeValidation, "snapshot source URL is required")
)

// Not found errors
var (
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrNoActiveSnapshot     = NewDomainError(ErrCodeInternalError, "no active snapshot installed")
)
