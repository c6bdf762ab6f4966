// internal/apperrors/apperrors.go
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can branch on the outcome instead of
// matching message strings. Business kinds are recovered at the request
// boundary; infrastructure kinds are retryable and must never be swallowed.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindInvalidState     Kind = "invalid_state"
	KindNotTracked       Kind = "not_tracked"
	KindChainMismatch    Kind = "chain_mismatch"
	KindMalformedAccount Kind = "malformed_account"
	KindInfraTimeout     Kind = "infrastructure_timeout"
	KindInternal         Kind = "internal"
)

// FieldMismatch records one field-level disagreement between the database
// mirror and on-chain data.
type FieldMismatch struct {
	Field   string `json:"field"`
	Stored  string `json:"stored"`
	OnChain string `json:"on_chain"`
}

type Error struct {
	Kind       Kind
	Message    string
	Mismatches []FieldMismatch
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if len(e.Mismatches) > 0 {
		fields := make([]string, 0, len(e.Mismatches))
		for _, m := range e.Mismatches {
			fields = append(fields, m.Field)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func PermissionDenied(message string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: message}
}

func PermissionDeniedf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// InvalidState names both the current and the expected status so a caller can
// see which transition was refused.
func InvalidState(current string, expected ...string) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("invalid state %q, expected one of [%s]", current, strings.Join(expected, ", ")),
	}
}

func InvalidStatef(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func NotTracked(serial string) *Error {
	return &Error{Kind: KindNotTracked, Message: fmt.Sprintf("product %s is no longer tracked", serial)}
}

func ChainMismatch(message string, mismatches []FieldMismatch) *Error {
	return &Error{Kind: KindChainMismatch, Message: message, Mismatches: mismatches}
}

func MalformedAccount(format string, args ...interface{}) *Error {
	return &Error{Kind: KindMalformedAccount, Message: fmt.Sprintf(format, args...)}
}

func InfraTimeout(message string, err error) *Error {
	return &Error{Kind: KindInfraTimeout, Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Retryable reports whether the caller should retry with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindInfraTimeout, KindMalformedAccount:
		return true
	}
	return false
}
