// Package failure holds the closed set of outcomes an upload can be rejected with.
// Every kind maps to exactly one HTTP status and one default message.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	InternalError Kind = iota
	UnsupportedContentType
	MissingBoundary
	NoFileFound
	MultipleFiles
	MalformedBody
	PayloadTooLarge
	InvalidImage
	UnsupportedFormat
	Timeout
)

var kindNames = map[Kind]string{
	InternalError:          "internal_error",
	UnsupportedContentType: "unsupported_content_type",
	MissingBoundary:        "missing_boundary",
	NoFileFound:            "no_file_found",
	MultipleFiles:          "multiple_files",
	MalformedBody:          "malformed_body",
	PayloadTooLarge:        "payload_too_large",
	InvalidImage:           "invalid_image",
	UnsupportedFormat:      "unsupported_format",
	Timeout:                "timeout",
}

var kindMessages = map[Kind]string{
	InternalError:          "internal server error",
	UnsupportedContentType: "unsupported Content-Type, must be multipart/form-data",
	MissingBoundary:        "multipart boundary missing from Content-Type",
	NoFileFound:            "no image file found in request",
	MultipleFiles:          "only one file may be uploaded per request",
	MalformedBody:          "request body could not be decoded",
	PayloadTooLarge:        "request body too large",
	InvalidImage:           "uploaded file is not a valid image",
	UnsupportedFormat:      "unsupported image format, only JPEG and PNG are allowed",
	Timeout:                "image processing timed out",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status returns the HTTP status code a handler responds with for k.
func (k Kind) Status() int {
	switch k {
	case UnsupportedContentType, MissingBoundary, NoFileFound, MultipleFiles,
		MalformedBody, InvalidImage, UnsupportedFormat:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is the only error type that crosses the pipeline boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, failure.New(NoFileFound))
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns an error of kind k carrying the default message.
func New(k Kind) *Error {
	return &Error{Kind: k, Message: kindMessages[k]}
}

func Newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Wrap(k Kind, err error) *Error {
	return &Error{Kind: k, Message: kindMessages[k], Err: err}
}

// UnsupportedFormatOf reports a decodable image in a format outside the allow-list.
func UnsupportedFormatOf(format string) *Error {
	return Newf(UnsupportedFormat,
		"invalid image format %q, only JPEG and PNG are allowed", format)
}

// FromContext converts a done context into a Timeout error. It returns nil while
// ctx is still live.
func FromContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Wrap(Timeout, err)
	}
	return nil
}

// As extracts the *Error from err. Anything that is not already typed becomes an
// InternalError so callers never have to handle a raw error.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(Timeout, err)
	}
	return Wrap(InternalError, err)
}

func KindOf(err error) Kind {
	if fe := As(err); fe != nil {
		return fe.Kind
	}
	return InternalError
}

func StatusOf(err error) int {
	return KindOf(err).Status()
}
