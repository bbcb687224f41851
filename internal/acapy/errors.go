package acapy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnsupportedMethod is returned for methods outside GET/POST/PUT/DELETE.
var ErrUnsupportedMethod = errors.New("acapy: unsupported HTTP method")

// Kind classifies a failure so callers can decide what to do with it.
type Kind int

const (
	// KindTransport covers connection, DNS, TLS and timeout failures (status 0).
	KindTransport Kind = iota + 1
	// KindApplication is a non-success status from the identity agent.
	KindApplication
	// KindValidation is a local precondition failure; no request was sent.
	KindValidation
	// KindAuth means a bearer token could not be obtained or was rejected.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindApplication:
		return "application"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is the gateway's error taxonomy. Status is 0 unless the identity
// agent answered.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Text renders the sentence returned across the tool boundary.
func (e *Error) Text() string {
	switch e.Kind {
	case KindValidation:
		return "Error: " + e.Message
	case KindApplication:
		return fmt.Sprintf("Error: identity agent returned status %d: %s", e.Status, strings.TrimSpace(e.Message))
	case KindTransport:
		return "Error: identity agent unreachable: " + e.Message
	case KindAuth:
		if e.Status != 0 {
			return fmt.Sprintf("Error: authentication failed (status %d): %s", e.Status, strings.TrimSpace(e.Message))
		}
		return "Error: authentication failed: " + e.Message
	default:
		return "Error: " + e.Message
	}
}

// Unauthorized reports whether the agent rejected the bearer token.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// NewTransportError wraps a network-level failure.
func NewTransportError(err error, msg string) *Error {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

// NewApplicationError records a non-success response and its raw body.
func NewApplicationError(status int, body string) *Error {
	return &Error{Kind: KindApplication, Status: status, Message: body}
}

// NewValidationError reports a caller-side precondition failure.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewAuthError reports a token that could not be obtained or was rejected.
func NewAuthError(msg string, cause error) *Error {
	e := &Error{Kind: KindAuth, Message: msg, Err: cause}
	var inner *Error
	if errors.As(cause, &inner) {
		e.Status = inner.Status
	}
	return e
}

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TextOf renders any error as a boundary sentence.
func TextOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Text()
	}
	return "Error: " + err.Error()
}
