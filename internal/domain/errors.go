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

// Is matches domain errors by code and message so wrapped sentinels compare equal.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
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

// Wrap returns a copy of a sentinel DomainError carrying err as its cause.
func Wrap(sentinel *DomainError, err error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, err)
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeProvider         = "PROVIDER_ERROR"
	ErrCodeData             = "DATA_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidIndexingStatus    = NewDomainError(ErrCodeValidation, "invalid indexing status")
	ErrInvalidIndexingJobStatus = NewDomainError(ErrCodeValidation, "invalid indexing job status")
	ErrInvalidProviderKind      = NewDomainError(ErrCodeValidation, "invalid provider kind")
	ErrInvalidChunkParams       = NewDomainError(ErrCodeValidation, "chunk overlap must be positive and smaller than chunk size")
	ErrInvalidQuestion          = NewDomainError(ErrCodeValidation, "question must be between 3 and 500 characters")
	ErrInvalidAnswerMode        = NewDomainError(ErrCodeValidation, "invalid answer mode")
	ErrMissingRequiredField     = NewDomainError(ErrCodeValidation, "missing required field")
	ErrUnknownSetting           = NewDomainError(ErrCodeValidation, "unknown setting")
	ErrInvalidCursor            = NewDomainError(ErrCodeValidation, "invalid cursor")
)

// Not found errors
var (
	ErrEntryNotFound    = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrProviderNotFound = NewDomainError(ErrCodeNotFound, "provider configuration not found")
)

// Conflict errors
var (
	ErrIndexingInProgress = NewDomainError(ErrCodeConflict, "entry is already being indexed")
	ErrProviderNameExists = NewDomainError(ErrCodeAlreadyExists, "provider configuration name already exists")
)

// Configuration errors. None of these are retryable without operator action.
var (
	ErrNoActiveProvider     = NewDomainError(ErrCodeConfiguration, "no active provider configured")
	ErrEmbeddingUnsupported = NewDomainError(ErrCodeConfiguration, "active provider does not support embeddings")
	ErrDimensionMismatch    = NewDomainError(ErrCodeConfiguration, "embedding dimension does not match vector store dimension")
	ErrCredentialDecrypt    = NewDomainError(ErrCodeConfiguration, "provider credential could not be decrypted")
)

// Data errors, fatal for the current indexing run.
var (
	ErrNoValidChunks          = NewDomainError(ErrCodeData, "no valid chunks")
	ErrEmbeddingCountMismatch = NewDomainError(ErrCodeData, "embedding count does not match chunk count")
)

// Provider errors
var (
	ErrProviderUnavailable = NewDomainError(ErrCodeProvider, "provider request failed")
	ErrVectorStoreFailure  = NewDomainError(ErrCodeProvider, "vector store request failed")
)

// ErrAnswerUnavailable is the only error the answer path ever shows to end users.
var ErrAnswerUnavailable = NewDomainError(ErrCodeInternalError, "unable to answer right now, please try again later")

// ErrorCode returns the code of the first DomainError in err's chain, or "".
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether a failed operation may succeed on a later attempt.
// Configuration, validation and data errors need a change before retrying.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeConfiguration, ErrCodeData, ErrCodeValidation, ErrCodeNotFound:
		return false
	}
	return err != nil
}
