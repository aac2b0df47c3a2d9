// Package errors defines the typed error taxonomy used across the
// ingestion and analysis services: each kind carries enough structure for
// the ingress boundary to translate it to an RFC 7807 Problem Details body
// without string-sniffing. The shape is a struct with a Resource/Message
// pair plus an optional FieldErrors map.
package errors

import (
	"fmt"

	goerrors "github.com/go-faster/errors"
)

// Kind is one of the error taxonomy members.
type Kind string

const (
	KindValidation     Kind = "validation_failure"
	KindAuthorization  Kind = "authorization_failure"
	KindNotFound       Kind = "resource_not_found"
	KindIntegrity      Kind = "integrity_failure"
	KindDataValidation Kind = "data_validation_failure"
	KindInference      Kind = "inference_failure"
	KindStorage        Kind = "storage_failure"
	KindTimeout        Kind = "timeout"
)

// Retriable reports whether the server should retry the underlying
// operation automatically.
func (k Kind) Retriable() bool {
	switch k {
	case KindStorage, KindInference:
		return true
	default:
		return false
	}
}

// HTTPStatus is the conventional status code an ingress adapter maps a Kind
// to; core itself never constructs an HTTP response.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindDataValidation:
		return 400
	case KindAuthorization:
		return 403
	case KindNotFound:
		return 404
	case KindTimeout:
		return 504
	case KindStorage:
		return 503
	case KindIntegrity, KindInference:
		return 500
	default:
		return 500
	}
}

// TypedError is the concrete error value every core component returns for
// taxonomy-covered failures.
type TypedError struct {
	Kind        Kind
	Resource    string
	Message     string
	FieldErrors map[string]string
	cause       error
}

func (e *TypedError) Error() string {
	if len(e.FieldErrors) == 0 {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s (%d field errors)", e.Kind, e.Resource, e.Message, len(e.FieldErrors))
}

func (e *TypedError) Unwrap() error { return e.cause }

// AddFieldError attaches a per-field validation message, overwriting any
// prior message for the same field.
func (e *TypedError) AddFieldError(field, message string) *TypedError {
	if e.FieldErrors == nil {
		e.FieldErrors = make(map[string]string)
	}
	e.FieldErrors[field] = message
	return e
}

func newTyped(kind Kind, resource, message string, cause error) *TypedError {
	return &TypedError{Kind: kind, Resource: resource, Message: message, FieldErrors: map[string]string{}, cause: cause}
}

func NewValidation(resource, message string) *TypedError {
	return newTyped(KindValidation, resource, message, nil)
}

func NewAuthorization(resource, message string) *TypedError {
	return newTyped(KindAuthorization, resource, message, nil)
}

func NewNotFound(resource, message string) *TypedError {
	return newTyped(KindNotFound, resource, message, nil)
}

func NewIntegrity(resource, message string) *TypedError {
	return newTyped(KindIntegrity, resource, message, nil)
}

func NewDataValidation(resource, message string) *TypedError {
	return newTyped(KindDataValidation, resource, message, nil)
}

func NewInference(resource, message string, cause error) *TypedError {
	return newTyped(KindInference, resource, message, cause)
}

func NewStorage(resource, message string, cause error) *TypedError {
	return newTyped(KindStorage, resource, message, cause)
}

func NewTimeout(resource, message string) *TypedError {
	return newTyped(KindTimeout, resource, message, nil)
}

// Wrap attaches stack-trace context using go-faster/errors while preserving
// the typed Kind for callers that need to branch on it via errors.As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, msg)
}

// As is a thin re-export so callers don't need a second import for the
// common case of unwrapping a *TypedError.
func As(err error) (*TypedError, bool) {
	var te *TypedError
	if goerrors.As(err, &te) {
		return te, true
	}
	return nil, false
}
