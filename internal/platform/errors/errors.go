// Package errors provides the registry's structured error type, its HTTP
// status mapping and the wire form returned to clients. Import it as perr.
package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies failures across the registry
type ErrorCode uint16

const (
	ErrorCodeUnknown ErrorCode = iota
	// ErrorCodePanic marks panics recovered by middleware
	ErrorCodePanic
	// ErrorCodeUnavailable is a transient local failure; a retry may succeed
	ErrorCodeUnavailable
	// ErrorCodeConflict is a concurrent write that still lost after retries
	ErrorCodeConflict
	ErrorCodeUnauthorized
	ErrorCodeForbidden
	ErrorCodeValidation
	ErrorCodeJSON
	ErrorCodeNotFound
	// ErrorCodeIntegrity is content whose size or digest differs from what was declared
	ErrorCodeIntegrity
	ErrorCodeUpstreamNotFound
	ErrorCodeUpstreamUnavailable
	ErrorCodeDuplicateKey
	ErrorCodeDB
)

type codeInfo struct {
	name     string
	status   int
	internal bool
}

var unknownInfo = codeInfo{"internal", http.StatusInternalServerError, true}

var codes = map[ErrorCode]codeInfo{
	ErrorCodeUnknown:             unknownInfo,
	ErrorCodePanic:               unknownInfo,
	ErrorCodeDB:                  {"db", http.StatusInternalServerError, true},
	ErrorCodeUnavailable:         {"unavailable", http.StatusServiceUnavailable, false},
	ErrorCodeConflict:            {"conflict", http.StatusConflict, false},
	ErrorCodeDuplicateKey:        {"conflict", http.StatusConflict, false},
	ErrorCodeUnauthorized:        {"unauthorized", http.StatusUnauthorized, false},
	ErrorCodeForbidden:           {"forbidden", http.StatusForbidden, false},
	ErrorCodeValidation:          {"validation", http.StatusBadRequest, false},
	ErrorCodeJSON:                {"json", http.StatusBadRequest, false},
	ErrorCodeNotFound:            {"not_found", http.StatusNotFound, false},
	ErrorCodeIntegrity:           {"integrity", http.StatusUnprocessableEntity, false},
	ErrorCodeUpstreamNotFound:    {"upstream_not_found", http.StatusFailedDependency, false},
	ErrorCodeUpstreamUnavailable: {"upstream_unavailable", http.StatusBadGateway, false},
}

func info(c ErrorCode) codeInfo {
	if i, ok := codes[c]; ok {
		return i
	}
	return unknownInfo
}

// String returns the stable wire name of the code
func (c ErrorCode) String() string { return info(c).name }

// Internal reports whether clients see InternalMessage instead of the error's message
func (c ErrorCode) Internal() bool { return info(c).internal }

// HTTPStatusCode maps a code to its response status
func HTTPStatusCode(c ErrorCode) int { return info(c).status }

// InternalMessage is what clients see for internal and database failures
const InternalMessage = "internal server error"

var ErrNotFound = New(ErrorCodeNotFound, "not found")

// Error carries a code, a client-facing message and an optional wrapped cause
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
	op    string
}

// Wire is the JSON form of an error
type Wire struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.orig != nil:
		return e.msg + ": " + e.orig.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.orig }
func (e *Error) Code() ErrorCode { return e.code }
func (e *Error) Message() string { return e.msg }
func (e *Error) Field() string { return e.field }
func (e *Error) Op() string { return e.op }

// ToWire masks the message of internal codes
func (e *Error) ToWire() Wire {
	name := e.code.String()
	if e.code.Internal() {
		return Wire{Code: name, Message: InternalMessage}
	}
	return Wire{Code: name, Message: e.msg, Field: e.field}
}

// WireFrom converts any error; errors from outside this package are internal
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	if e, ok := As(err); ok {
		return e.ToWire()
	}
	return Wire{Code: ErrorCodeUnknown.String(), Message: InternalMessage}
}

// As finds the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrs.As(err, &e)
	return e, ok
}

// CodeOf returns err's code, or ErrorCodeUnknown for foreign errors
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// HTTPStatus returns the response status for any error
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }

// HTTP returns the status and wire body for err
func HTTP(err error) (int, Wire) {
	if err == nil {
		return http.StatusOK, Wire{}
	}
	return HTTPStatus(err), WireFrom(err)
}

func amend(err error, fn func(*Error)) error {
	e, ok := As(err)
	if !ok {
		return err
	}
	c := *e
	fn(&c)
	return &c
}

// WithField returns a copy of err naming the offending field; foreign errors pass through
func WithField(err error, field string) error {
	return amend(err, func(e *Error) { e.field = field })
}

// WithOp returns a copy of err labelled with an operation; foreign errors pass through
func WithOp(err error, op string) error {
	return amend(err, func(e *Error) { e.op = op })
}

func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

func Newf(code ErrorCode, format string, a ...any) error {
	return New(code, fmt.Sprintf(format, a...))
}

// Wrap keeps orig as the cause; orig's text never reaches clients
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return Wrap(orig, code, fmt.Sprintf(format, a...))
}

func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }
func Validationf(format string, a ...any) error { return Newf(ErrorCodeValidation, format, a...) }
func JSONErrf(format string, a ...any) error { return Newf(ErrorCodeJSON, format, a...) }
func PanicErrf(format string, a ...any) error { return Newf(ErrorCodePanic, format, a...) }
func Unauthorizedf(format string, a ...any) error { return Newf(ErrorCodeUnauthorized, format, a...) }
func Forbiddenf(format string, a ...any) error { return Newf(ErrorCodeForbidden, format, a...) }
func Integrityf(format string, a ...any) error { return Newf(ErrorCodeIntegrity, format, a...) }
func Unavailablef(format string, a ...any) error { return Newf(ErrorCodeUnavailable, format, a...) }

func UpstreamNotFoundf(format string, a ...any) error {
	return Newf(ErrorCodeUpstreamNotFound, format, a...)
}

func UpstreamUnavailablef(format string, a ...any) error {
	return Newf(ErrorCodeUpstreamUnavailable, format, a...)
}
