package dispatch

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
)

// Pipeline error taxonomy. Every error reaching the pipeline boundary wraps
// exactly one of these.
var (
	ErrDeserialization      = errors.New("deserialization")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrService              = errors.New("service")
	ErrWrite                = errors.New("write")
)

// ErrResponseClosed is returned by writes attempted after a response was
// finalized. Nothing reaches the client.
var ErrResponseClosed = errors.New("response already closed")

// Sentinel errors for request binding. Each is reported under
// ErrDeserialization.
var (
	ErrBindPath   = errors.New("bind path")
	ErrBindQuery  = errors.New("bind query")
	ErrBindHeader = errors.New("bind header")
	ErrBindCookie = errors.New("bind cookie")
	ErrBindBody   = errors.New("bind body")
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// ProblemDetail is an RFC 9457 problem details response.
//
//nolint:errname // RFC 9457 standard name
type ProblemDetail struct {
	XMLName  xml.Name          `json:"-" yaml:"-" xml:"problem"`
	Type     string            `json:"type,omitempty" yaml:"type,omitempty" xml:"type,omitempty"`
	Title    string            `json:"title,omitempty" yaml:"title,omitempty" xml:"title,omitempty"`
	Status   int               `json:"status" yaml:"status" xml:"status"`
	Detail   string            `json:"detail,omitempty" yaml:"detail,omitempty" xml:"detail,omitempty"`
	Instance string            `json:"instance,omitempty" yaml:"instance,omitempty" xml:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty" yaml:"errors,omitempty" xml:"errors>error,omitempty"`
}

// Error returns the detail message (or title if detail is empty).
func (p *ProblemDetail) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// StatusCode returns the HTTP status code.
func (p *ProblemDetail) StatusCode() int { return p.Status }

// ValidationError describes a single field validation failure.
type ValidationError struct {
	Field   string `json:"field" yaml:"field" xml:"field"`
	Message string `json:"message" yaml:"message" xml:"message"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty" xml:"value,omitempty"`
}

// HTTPError is an error with an HTTP status code and an optional cause.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

// Error returns the error message.
func (e *HTTPError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int { return e.Status }

// Unwrap returns the cause.
func (e *HTTPError) Unwrap() error { return e.Err }

// Error returns an error with the given HTTP status code and message.
func Error(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

// Errorf returns a formatted error with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

func deserializationError(err error) error {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Message: err.Error(),
		Err:     fmt.Errorf("%w: %w", ErrDeserialization, err),
	}
}

// unsupportedMediaType reports a content type with no codec. status is 415
// for request bodies and 406 for responses.
func unsupportedMediaType(status int, contentType string) error {
	return &HTTPError{
		Status:  status,
		Message: fmt.Sprintf("unsupported media type %q", contentType),
		Err:     ErrUnsupportedMediaType,
	}
}

// serviceError tags an error raised by a filter or service. A status and
// message carried by the original error are preserved.
func serviceError(err error) error {
	if errors.Is(err, ErrService) {
		return err
	}
	msg := err.Error()
	var he *HTTPError
	if errors.As(err, &he) {
		msg = he.Error()
	}
	return &HTTPError{
		Status:  ErrorStatus(err),
		Message: msg,
		Err:     fmt.Errorf("%w: %w", ErrService, err),
	}
}

// WriteError is a failure while serializing or writing a response.
// Committed reports whether any part of the response had already reached the
// client.
type WriteError struct {
	Committed bool
	Err       error
}

func (e *WriteError) Error() string { return "write response: " + e.Err.Error() }

func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }

// StatusCode reports the status of the error, 500 unless the cause carries one.
func (e *WriteError) StatusCode() int {
	var sc StatusCoder
	if errors.As(e.Err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// problemFor converts any error into a ProblemDetail.
func problemFor(err error) *ProblemDetail {
	var pd *ProblemDetail
	if errors.As(err, &pd) {
		return pd
	}

	status := ErrorStatus(err)
	msg := err.Error()
	var he *HTTPError
	if errors.As(err, &he) {
		msg = he.Error()
	}

	return &ProblemDetail{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: msg,
	}
}
