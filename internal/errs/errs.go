// Package errs defines the error kinds shared by the task, agent, and sprint
// packages and how they surface over HTTP.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure independently of where it happened.
type Kind string

const (
	KindUnknown            Kind = ""
	KindInvalidInput       Kind = "invalid_input"
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindIOFailure          Kind = "io_failure"
	KindConflict           Kind = "conflict"
)

// Error is a classified failure. Op names the operation ("set-status",
// "store.save"); Err is the optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so callers can write
// errors.Is(err, errs.NotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	InvalidInput       = &Error{Kind: KindInvalidInput}
	NotFound           = &Error{Kind: KindNotFound}
	PreconditionFailed = &Error{Kind: KindPreconditionFailed}
	IOFailure          = &Error{Kind: KindIOFailure}
	Conflict           = &Error{Kind: KindConflict}
)

// E builds a classified error with a formatted message.
func E(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a kind to the status code the API answers with.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPreconditionFailed, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Ops lists the operation names along err's chain, outermost first. The CLI
// prints it under --debug.
func Ops(err error) []string {
	var ops []string
	for err != nil {
		if e, ok := err.(*Error); ok && e.Op != "" {
			ops = append(ops, e.Op)
		}
		err = errors.Unwrap(err)
	}
	return ops
}
