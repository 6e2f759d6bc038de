// Package errors carries the service's typed error codes and how each one
// surfaces over HTTP.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHENTICATED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeTenantResolution  Code = "TENANT_RESOLUTION_FAILED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeSignatureInvalid  Code = "SIGNATURE_INVALID"
	CodeAccountNotReady   Code = "ACCOUNT_NOT_READY"
	CodeGatewayRetriable  Code = "GATEWAY_RETRIABLE"
	CodeGatewayTerminal   Code = "GATEWAY_TERMINAL"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata says how a code is rendered to clients. Public is the fallback
// message; ShowMessage lets the error's own message through instead.
type Metadata struct {
	Status      int
	Retryable   bool
	Public      string
	ShowMessage bool
	ShowDetails bool
}

// client errors echo their message; server errors never do
var metadataByCode = map[Code]Metadata{
	CodeValidation:        {Status: http.StatusBadRequest, Public: "validation failed", ShowMessage: true, ShowDetails: true},
	CodeUnauthorized:      {Status: http.StatusUnauthorized, Public: "authentication required", ShowMessage: true},
	CodeForbidden:         {Status: http.StatusForbidden, Public: "access denied", ShowMessage: true},
	CodeTenantResolution:  {Status: http.StatusForbidden, Public: "no company associated with principal", ShowMessage: true},
	CodeNotFound:          {Status: http.StatusNotFound, Public: "resource not found", ShowMessage: true},
	CodeConflict:          {Status: http.StatusConflict, Public: "conflict detected", ShowMessage: true},
	CodeInsufficientStock: {Status: http.StatusConflict, Public: "insufficient stock", ShowMessage: true, ShowDetails: true},
	CodeSignatureInvalid:  {Status: http.StatusBadRequest, Public: "signature verification failed"},
	CodeAccountNotReady:   {Status: http.StatusConflict, Public: "connected account not ready", ShowMessage: true},
	CodeGatewayRetriable:  {Status: http.StatusServiceUnavailable, Retryable: true, Public: "payment processor unavailable"},
	CodeGatewayTerminal:   {Status: http.StatusBadGateway, Public: "payment processor rejected the request", ShowDetails: true},
	CodeIdempotency:       {Status: http.StatusConflict, Public: "idempotency key reused", ShowMessage: true, ShowDetails: true},
	CodeInternal:          {Status: http.StatusInternalServerError, Retryable: true, Public: "internal server error"},
	CodeDependency:        {Status: http.StatusServiceUnavailable, Retryable: true, Public: "dependency unavailable", ShowDetails: true},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return string(e.code) + ": " + e.message
	}
	return string(e.code) + ": " + e.message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost typed error, or CodeInternal.
func CodeOf(err error) Code {
	return As(err).Code()
}

// Is reports whether any typed error in err's chain carries code.
func Is(err error, code Code) bool {
	for typed := As(err); typed != nil; typed = As(typed.Unwrap()) {
		if typed.code == code {
			return true
		}
	}
	return false
}

// HTTPStatus is the status err renders as.
func HTTPStatus(err error) int {
	return MetadataFor(CodeOf(err)).Status
}

// IsRetryable reports whether a caller, or a webhook sender, should try
// again later.
func IsRetryable(err error) bool {
	return err != nil && MetadataFor(CodeOf(err)).Retryable
}
