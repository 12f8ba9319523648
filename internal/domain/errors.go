package domain

import "fmt"

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

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeUnprocessable    = "UNPROCESSABLE_CONTENT"
)

// Validation errors
var (
	ErrInvalidDocumentStatus = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidMessageRole    = NewDomainError(ErrCodeValidation, "invalid message role")
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyQuery            = NewDomainError(ErrCodeValidation, "query text cannot be empty")
)

// Not found errors. Cross-tenant lookups resolve to these as well: a
// document or session owned by someone else is indistinguishable from
// one that does not exist.
var (
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrSessionNotFound      = NewDomainError(ErrCodeNotFound, "chat session not found")
	ErrUserNotFound         = NewDomainError(ErrCodeNotFound, "user not found")
	ErrTokenNotFound        = NewDomainError(ErrCodeNotFound, "api token not found")
	ErrBlobNotFound         = NewDomainError(ErrCodeNotFound, "document blob not found")
	ErrIngestionJobNotFound = NewDomainError(ErrCodeNotFound, "ingestion job not found")
)

// Already exists errors
var (
	ErrUserAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "user already exists")
)

// Authorization errors
var (
	ErrInvalidToken = NewDomainError(ErrCodeUnauthorized, "invalid api token")
	ErrTokenRevoked = NewDomainError(ErrCodeUnauthorized, "api token has been revoked")
)

// Operation errors
var (
	ErrInvalidTransition  = NewDomainError(ErrCodeInvalidOperation, "invalid document status transition")
	ErrLeaseHeld          = NewDomainError(ErrCodeInvalidOperation, "document is already being ingested")
	ErrDocumentNotFailed  = NewDomainError(ErrCodeInvalidOperation, "only failed documents can be re-ingested")
	ErrIngestionCancelled = NewDomainError(ErrCodeInvalidOperation, "ingestion cancelled: document was deleted or replaced")
)

// Pipeline outcome errors, seen by the job worker rather than HTTP.
// ErrIngestionFailed marks an attempt whose document is already flipped
// to failed: requeueing the job cannot succeed.
var (
	ErrIngestionFailed = NewDomainError(ErrCodeInternalError, "ingestion attempt failed")
)

// Content errors: permanent ingestion failures, never retried
var (
	ErrUnsupportedFileType = NewDomainError(ErrCodeUnprocessable, "unsupported file type")
	ErrEmptyDocument       = NewDomainError(ErrCodeUnprocessable, "no text could be extracted or file was empty")
	ErrDimensionMismatch   = NewDomainError(ErrCodeUnprocessable, "embedding has unexpected dimensions")
)
