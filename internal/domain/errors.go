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

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	ErrCodeEmbeddingFailed   = "EMBEDDING_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeInvalidOperation  = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidRole          = NewDomainError(ErrCodeValidation, "invalid permission role")
	ErrInvalidFilter        = NewDomainError(ErrCodeValidation, "invalid access filter expression")
)

// Configuration errors
var (
	ErrUnknownStrategy    = NewDomainError(ErrCodeConfiguration, "unknown chunking strategy")
	ErrInvalidChunkConfig = NewDomainError(ErrCodeConfiguration, "invalid chunking configuration")
)

// Not found errors
var (
	ErrDocumentNotFound      = NewDomainError(ErrCodeNotFound, "document not found")
	ErrKnowledgeBaseNotFound = NewDomainError(ErrCodeNotFound, "knowledge base not found")
	ErrAPIKeyNotFound        = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// NewSourceUnavailable wraps a storage read failure for a given location.
func NewSourceUnavailable(location string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeSourceUnavailable, fmt.Sprintf("source %q unavailable", location), err)
}

// EmbeddingError reports an embedding-provider failure along with how many
// chunks were already persisted for the document. Persisted chunks are kept;
// there is no rollback on embedding failure.
type EmbeddingError struct {
	ChunksPersisted int
	Err             error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("[%s] embedding failed after %d chunks persisted: %v", ErrCodeEmbeddingFailed, e.ChunksPersisted, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
