package bpipe

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Code is an error code that mirrors the http status codes. It can be used to create errors to pass around across
// guards, handlers and modifiers to handle errors structurally.
type Code int

const (
	CodeUnknown                      Code = 0
	CodeBadRequest                   Code = http.StatusBadRequest                   // RFC 9110, 15.5.1
	CodeUnauthorized                 Code = http.StatusUnauthorized                 // RFC 9110, 15.5.2
	CodePaymentRequired              Code = http.StatusPaymentRequired              // RFC 9110, 15.5.3
	CodeForbidden                    Code = http.StatusForbidden                    // RFC 9110, 15.5.4
	CodeNotFound                     Code = http.StatusNotFound                     // RFC 9110, 15.5.5
	CodeMethodNotAllowed             Code = http.StatusMethodNotAllowed             // RFC 9110, 15.5.6
	CodeNotAcceptable                Code = http.StatusNotAcceptable                // RFC 9110, 15.5.7
	CodeProxyAuthRequired            Code = http.StatusProxyAuthRequired            // RFC 9110, 15.5.8
	CodeRequestTimeout               Code = http.StatusRequestTimeout               // RFC 9110, 15.5.9
	CodeConflict                     Code = http.StatusConflict                     // RFC 9110, 15.5.10
	CodeGone                         Code = http.StatusGone                         // RFC 9110, 15.5.11
	CodeLengthRequired               Code = http.StatusLengthRequired               // RFC 9110, 15.5.12
	CodePreconditionFailed           Code = http.StatusPreconditionFailed           // RFC 9110, 15.5.13
	CodeRequestEntityTooLarge        Code = http.StatusRequestEntityTooLarge        // RFC 9110, 15.5.14
	CodeRequestURITooLong            Code = http.StatusRequestURITooLong            // RFC 9110, 15.5.15
	CodeUnsupportedMediaType         Code = http.StatusUnsupportedMediaType         // RFC 9110, 15.5.16
	CodeRequestedRangeNotSatisfiable Code = http.StatusRequestedRangeNotSatisfiable // RFC 9110, 15.5.17
	CodeExpectationFailed            Code = http.StatusExpectationFailed            // RFC 9110, 15.5.18
	CodeTeapot                       Code = http.StatusTeapot                       // RFC 9110, 15.5.19 (Unused)
	CodeMisdirectedRequest           Code = http.StatusMisdirectedRequest           // RFC 9110, 15.5.20
	CodeUnprocessableEntity          Code = http.StatusUnprocessableEntity          // RFC 9110, 15.5.21
	CodeLocked                       Code = http.StatusLocked                       // RFC 4918, 11.3
	CodeFailedDependency             Code = http.StatusFailedDependency             // RFC 4918, 11.4
	CodeTooEarly                     Code = http.StatusTooEarly                     // RFC 8470, 5.2.
	CodeUpgradeRequired              Code = http.StatusUpgradeRequired              // RFC 9110, 15.5.22
	CodePreconditionRequired         Code = http.StatusPreconditionRequired         // RFC 6585, 3
	CodeTooManyRequests              Code = http.StatusTooManyRequests              // RFC 6585, 4
	CodeRequestHeaderFieldsTooLarge  Code = http.StatusRequestHeaderFieldsTooLarge  // RFC 6585, 5
	CodeUnavailableForLegalReasons   Code = http.StatusUnavailableForLegalReasons   // RFC 7725, 3

	CodeInternalServerError           Code = http.StatusInternalServerError           // RFC 9110, 15.6.1
	CodeNotImplemented                Code = http.StatusNotImplemented                // RFC 9110, 15.6.2
	CodeBadGateway                    Code = http.StatusBadGateway                    // RFC 9110, 15.6.3
	CodeServiceUnavailable            Code = http.StatusServiceUnavailable            // RFC 9110, 15.6.4
	CodeGatewayTimeout                Code = http.StatusGatewayTimeout                // RFC 9110, 15.6.5
	CodeHTTPVersionNotSupported       Code = http.StatusHTTPVersionNotSupported       // RFC 9110, 15.6.6
	CodeVariantAlsoNegotiates         Code = http.StatusVariantAlsoNegotiates         // RFC 2295, 8.1
	CodeInsufficientStorage           Code = http.StatusInsufficientStorage           // RFC 4918, 11.5
	CodeLoopDetected                  Code = http.StatusLoopDetected                  // RFC 5842, 7.2
	CodeNotExtended                   Code = http.StatusNotExtended                   // RFC 2774, 7
	CodeNetworkAuthenticationRequired Code = http.StatusNetworkAuthenticationRequired // RFC 6585, 6
)

// Text returns the standard status text for the code, or "Unknown".
func (c Code) Text() string {
	if s := http.StatusText(int(c)); s != "" {
		return s
	}

	return "Unknown"
}

var (
	// ErrHeadersSent is returned when the response is mutated after the physical write started.
	ErrHeadersSent = errors.New("bpipe: headers already sent")
	// ErrAlreadyProcessed is returned when Process is called twice on the same context.
	ErrAlreadyProcessed = errors.New("bpipe: context already processed")
)

// Error describes an http error. It is the only error type the error translator renders as-is, every
// other error is wrapped as an internal server error first.
type Error struct {
	code    Code
	err     error
	payload any
	header  http.Header
	private bool
}

// NewError inits a new error given the error code. The underlying error may be nil, in which case the
// message defaults to the status text of the code.
func NewError(c Code, underlying error) *Error {
	return &Error{code: c, err: underlying}
}

// Errorf creates an error with a formatted underlying message.
func Errorf(c Code, format string, args ...any) *Error {
	return NewError(c, errors.Newf(format, args...))
}

// WithPayload returns a copy of the error that carries the payload, for example a [*ValidationResult].
func (e *Error) WithPayload(payload any) *Error {
	cp := *e
	cp.payload = payload

	return &cp
}

// WithHeader returns a copy of the error with a header that is set on the error response, for
// example a WWW-Authenticate challenge.
func (e *Error) WithHeader(key, value string) *Error {
	cp := *e
	cp.header = e.header.Clone()
	if cp.header == nil {
		cp.header = http.Header{}
	}

	cp.header.Add(key, value)

	return &cp
}

// Header returns the headers that are set on the error response.
func (e *Error) Header() http.Header { return e.header.Clone() }

func (e *Error) Code() Code   { return e.code }
func (e *Error) Payload() any { return e.payload }
func (e *Error) Unwrap() error {
	return e.err
}

// Message is the human readable message: the underlying error's message or the status text. Causes
// of errors created by [AsError] are never exposed.
func (e *Error) Message() string {
	if e.err == nil || e.private {
		return e.code.Text()
	}

	return e.err.Error()
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code.Text()
	}

	return fmt.Sprintf("%s: %s", e.code.Text(), e.err.Error())
}

// CodeOf returns the error's status code if it is or wraps an [*Error] and
// [CodeUnknown] otherwise.
func CodeOf(err error) Code {
	if httpErr, ok := asError(err); ok {
		return httpErr.Code()
	}
	return CodeUnknown
}

// AsError converts any error into an [*Error]. Errors that are not (or do not wrap) an [*Error] are
// wrapped as a 500 with the original attached as cause.
func AsError(err error) *Error {
	if httpErr, ok := asError(err); ok {
		return httpErr
	}

	return &Error{code: CodeInternalServerError, err: err, private: true}
}

// asError uses errors.As to unwrap any error and look for a *Error.
func asError(err error) (*Error, bool) {
	var httpErr *Error
	ok := errors.As(err, &httpErr)
	return httpErr, ok
}
