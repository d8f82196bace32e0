// Package apperr holds the user-facing error taxonomy. Every error that
// leaves the realtime core is classified into exactly one Kind.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type Kind string

const (
	RateLimited  Kind = "RATE_LIMITED"
	Validation   Kind = "VALIDATION_ERROR"
	Network      Kind = "NETWORK_ERROR"
	Unauthorized Kind = "UNAUTHORIZED"
	Generic      Kind = "GENERIC"
)

var defaultMessages = map[Kind]string{
	RateLimited:  "Too many requests. Please try again later.",
	Validation:   "Some fields are invalid.",
	Network:      "Connection problem. Check your network and try again.",
	Unauthorized: "Your session has expired. Please sign in again.",
	Generic:      "Something went wrong.",
}

// ErrTransport marks errors produced by the transport layer so Classify can
// recognise them without importing it.
var ErrTransport = errors.New("transport failure")

type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Fields     []string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Fields, "; "))
		b.WriteString("]")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can write errors.Is(err, apperr.New(apperr.Network, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	if msg == "" {
		msg = defaultMessages[kind]
	}
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	e := New(kind, msg)
	e.Err = err
	return e
}

func NewRateLimited(retryAfter time.Duration) *Error {
	e := New(RateLimited, "")
	e.RetryAfter = retryAfter
	return e
}

func NewValidation(fields ...string) *Error {
	e := New(Validation, "")
	e.Fields = fields
	return e
}

// Classify maps any error onto the taxonomy. nil stays nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrTransport),
		errors.Is(err, websocket.ErrCloseSent),
		errors.Is(err, net.ErrClosed):
		return Wrap(Network, err, "")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(Network, err, "")
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.ClosePolicyViolation {
			return Wrap(Unauthorized, err, "")
		}
		return Wrap(Network, err, "")
	}

	return Wrap(Generic, err, "")
}

// KindOf is shorthand for Classify(err).Kind; it returns "" for nil.
func KindOf(err error) Kind {
	if e := Classify(err); e != nil {
		return e.Kind
	}
	return ""
}

// FromCode maps a server error code onto a Kind.
func FromCode(code string) Kind {
	switch strings.ToUpper(code) {
	case "RATE_LIMITED", "TOO_MANY_REQUESTS":
		return RateLimited
	case "VALIDATION_ERROR", "VALIDATION", "BAD_REQUEST":
		return Validation
	case "UNAUTHORIZED", "AUTH_FAILED", "TOKEN_EXPIRED", "FORBIDDEN":
		return Unauthorized
	case "NETWORK_ERROR", "TIMEOUT":
		return Network
	default:
		return Generic
	}
}

// UserMessage is what the UI shows for err.
func UserMessage(err error) string {
	e := Classify(err)
	if e == nil {
		return ""
	}
	if e.Kind == RateLimited && e.RetryAfter > 0 {
		return fmt.Sprintf("%s Retry in %s.", e.Message, e.RetryAfter.Round(time.Second))
	}
	return e.Message
}
