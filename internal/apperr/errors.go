// Package apperr defines the failure kinds every client operation is
// converted to before it reaches the caller.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a failure by how the user has to be told about it.
type Kind string

const (
	KindUnknown            Kind = ""
	KindNetworkUnreachable Kind = "NETWORK_UNREACHABLE"
	KindServerRejected     Kind = "SERVER_REJECTED"
	KindAuthExpired        Kind = "AUTH_EXPIRED"
	KindUploadFailed       Kind = "UPLOAD_FAILED"
	KindValidationFailed   Kind = "VALIDATION_FAILED"
)

// Error is a classified failure. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status for ServerRejected and AuthExpired, if known.
	Status int
	// Fields holds per-field messages for ValidationFailed.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.AuthExpired)
// works against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Status == 0 && t.Err == nil
}

// Sentinels for errors.Is.
var (
	NetworkUnreachable = &Error{Kind: KindNetworkUnreachable}
	ServerRejected     = &Error{Kind: KindServerRejected}
	AuthExpired        = &Error{Kind: KindAuthExpired}
	UploadFailed       = &Error{Kind: KindUploadFailed}
	ValidationFailed   = &Error{Kind: KindValidationFailed}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Network wraps a transport failure (no response from the server).
func Network(err error) *Error {
	return &Error{Kind: KindNetworkUnreachable, Err: err}
}

// Rejected builds a ServerRejected error carrying the server's message.
func Rejected(status int, message string) *Error {
	return &Error{Kind: KindServerRejected, Status: status, Message: message}
}

// Expired builds an AuthExpired error.
func Expired(status int, err error) *Error {
	return &Error{Kind: KindAuthExpired, Status: status, Err: err}
}

// Upload wraps an attachment hosting failure.
func Upload(err error) *Error {
	return &Error{Kind: KindUploadFailed, Err: err}
}

// Validation builds a ValidationFailed error from per-field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidationFailed, Fields: fields}
}

// Invalid builds a ValidationFailed error for a single field.
func Invalid(field, message string) *Error {
	return Validation(map[string]string{field: message})
}

// FieldMessage returns the validation message for field, if err carries one.
func FieldMessage(err error, field string) string {
	var e *Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields[field]
	}
	return ""
}
