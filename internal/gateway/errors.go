package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind is the failure class of a storage call.
type ErrorKind string

const (
	KindTransport    ErrorKind = "transport"
	KindAuth         ErrorKind = "auth"
	KindNotFound     ErrorKind = "not_found"
	KindPermission   ErrorKind = "permission"
	KindQuota        ErrorKind = "quota"
	KindPrecondition ErrorKind = "precondition"
	KindUnknown      ErrorKind = "unknown"
)

// Sentinels for errors.Is matching on kind only.
var (
	ErrTransport    = &Error{Kind: KindTransport}
	ErrAuth         = &Error{Kind: KindAuth}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrPermission   = &Error{Kind: KindPermission}
	ErrQuota        = &Error{Kind: KindQuota}
	ErrPrecondition = &Error{Kind: KindPrecondition}
)

// Error is a classified storage error.
type Error struct {
	Kind   ErrorKind
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	target := e.Bucket
	if e.Key != "" {
		target = strings.TrimPrefix(e.Bucket+"/"+e.Key, "/")
	}
	switch {
	case e.Op == "" && e.Err == nil:
		return "gateway: " + string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("gateway: %s %s: %s", e.Op, target, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("gateway: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("gateway: %s %s: %s: %v", e.Op, target, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels (no Op, no cause) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a classified error.
func NewError(kind ErrorKind, op, bucket, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Bucket: bucket, Key: key, Err: err}
}

// KindOf classifies any error. Errors that were not produced by a gateway
// are classified from their shape (timeouts and network errors are transport).
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	return KindUnknown
}

// Retryable reports whether the caller may retry the failed call.
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}

// Message returns the innermost human readable message of err.
func Message(err error) string {
	var gerr *Error
	if errors.As(err, &gerr) && gerr.Err != nil {
		return gerr.Err.Error()
	}
	return err.Error()
}
