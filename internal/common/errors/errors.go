// Package errors provides the shared error taxonomy for the funnel engine and its
// conversion to BPMN errors for Zeebe job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Generation core
const (
	ErrCodeTransport         ErrorCode = "TRANSPORT_ERROR"
	ErrCodeParse             ErrorCode = "PARSE_ERROR"
	ErrCodeContractViolation ErrorCode = "CONTRACT_VIOLATION"
	ErrCodeDeliveryFailure   ErrorCode = "DELIVERY_FAILURE"
)

// Infrastructure and request handling
const (
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeDatabase         ErrorCode = "DATABASE_ERROR"
	ErrCodeSearch           ErrorCode = "SEARCH_ERROR"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the internal error representation.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// BPMNError is the shape thrown back to Zeebe.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 2. Constructors
// ==========================

// NewTransportError reports an unreachable backend or a malformed HTTP exchange.
func NewTransportError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransport,
		Message:   fmt.Sprintf("transport to '%s' failed", service),
		Details:   errText(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewParseError reports that no usable JSON object could be recovered.
func NewParseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeParse,
		Message:   "structured output could not be parsed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewContractViolationError reports well-formed output that breaks a downstream contract.
func NewContractViolationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeContractViolation,
		Message:   "output violates contract",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDeliveryFailureError(recipient string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryFailure,
		Message:   "email delivery failed",
		Details:   errText(err),
		Retryable: true,
		Metadata:  map[string]interface{}{"recipient": recipient},
		Timestamp: time.Now().UTC(),
	}
}

func NewNotFoundError(resource string, id interface{}) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %v", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   "resource is busy",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDatabaseError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabase,
		Message:   fmt.Sprintf("database operation '%s' failed", operation),
		Details:   errText(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewSearchError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearch,
		Message:   fmt.Sprintf("search operation '%s' failed", operation),
		Details:   errText(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "unexpected error",
		Details:   errText(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Inspection
// ==========================

// AsStandard unwraps err to a *StandardError if one is in the chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

// CodeOf returns the code of err, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// ==========================
// 4. BPMN conversion
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeTransport:         "GENERATION_BACKEND_UNAVAILABLE",
	ErrCodeParse:             "GENERATION_OUTPUT_UNPARSEABLE",
	ErrCodeContractViolation: "GENERATION_CONTRACT_VIOLATION",
	ErrCodeDeliveryFailure:   "EMAIL_DELIVERY_FAILED",
	ErrCodeNotFound:          "RESOURCE_NOT_FOUND",
	ErrCodeConflict:          "RESOURCE_BUSY",
	ErrCodeValidationFailed:  "INPUT_VALIDATION_FAILED",
	ErrCodeDatabase:          "DATABASE_ERROR",
	ErrCodeSearch:            "SEARCH_ERROR",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabase, ErrCodeSearch, ErrCodeDeliveryFailure:
		return 3
	case ErrCodeTransport, ErrCodeConflict:
		return 2
	case ErrCodeParse:
		return 1 // a second sample often parses
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case code == ErrCodeTransport || code == ErrCodeParse || code == ErrCodeContractViolation:
		return "GENERATION"
	case strings.Contains(codeStr, "DELIVERY"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
