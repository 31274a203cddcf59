// Package failure classifies everything that can go wrong with a job into a small set of kinds, each with a
// user-facing message.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a class of failure. It implements error so that errors.Is(err, failure.NotFound) works through wrapping.
type Kind string

const (
	InvalidInput      Kind = "invalid_input"
	ToolUnavailable   Kind = "tool_unavailable"
	PrivateContent    Kind = "private_content"
	NotFound          Kind = "not_found"
	BotDetection      Kind = "bot_detection"
	RateLimited       Kind = "rate_limited"
	RegionBlocked     Kind = "region_blocked"
	FormatUnavailable Kind = "format_unavailable"
	AuthRequired      Kind = "auth_required"
	QuotaExceeded     Kind = "quota_exceeded"
	PermissionDenied  Kind = "permission_denied"
	Timeout           Kind = "timeout"
	GenericFailure    Kind = "generic_failure"
)

func (k Kind) Error() string {
	return string(k)
}

// Message is the user-facing text for the kind.
func (k Kind) Message() string {
	if m, ok := messages[k]; ok {
		return m
	}
	return messages[GenericFailure]
}

// Retryable is false only where retrying soon cannot help.
func (k Kind) Retryable() bool {
	switch k {
	case InvalidInput, QuotaExceeded, PrivateContent:
		return false
	}
	return true
}

// HTTPStatus is the status used when a failure of this kind is returned synchronously from a request.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidInput:
		return http.StatusBadRequest
	case AuthRequired:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied, QuotaExceeded:
		return http.StatusForbidden
	case RateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

var messages = map[Kind]string{
	InvalidInput:      "The URL is not valid or not supported.",
	ToolUnavailable:   "The downloader needed for this URL is not installed on the server.",
	PrivateContent:    "This video is private and cannot be downloaded.",
	NotFound:          "The video was not found or is no longer available.",
	BotDetection:      "The platform is blocking automated downloads right now. Please try again later.",
	RateLimited:       "Too many requests to the platform. Please wait a while and try again.",
	RegionBlocked:     "This video is not available in the server's region.",
	FormatUnavailable: "The requested quality is not available for this video.",
	AuthRequired:      "YouTube authentication required. Please connect your account again.",
	QuotaExceeded:     "The YouTube API quota for today has been exceeded. Please try again tomorrow.",
	PermissionDenied:  "The YouTube account does not have permission to do this.",
	Timeout:           "The download stopped responding and was cancelled.",
	GenericFailure:    "The operation failed.",
}

// Error is a classified failure. Message is user-facing; the wrapped Err and Detail keep the upstream diagnostics.
type Error struct {
	Kind     Kind
	Message  string
	Tool     string
	ExitCode int
	// Detail is raw upstream output, e.g. the tail of a tool's stderr.
	Detail string
	Err    error
}

// New classifies err. A GenericFailure keeps the upstream message as its user-facing text.
func New(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Message: kind.Message(), Err: err}
	if kind == GenericFailure && err != nil {
		e.Message = err.Error()
	}
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Message()
	}
	if e.Tool != "" {
		msg = fmt.Sprintf("%s: %s", e.Tool, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf finds the Kind of a failure through any wrapping, or GenericFailure if err is not classified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return GenericFailure
}

// MessageOf gives the user-facing text for err. A GenericFailure keeps the upstream message.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Message != "" {
			return fe.Message
		}
		if fe.Kind == GenericFailure && fe.Err != nil {
			return fe.Err.Error()
		}
		return fe.Kind.Message()
	}
	kind := KindOf(err)
	if kind == GenericFailure {
		return err.Error()
	}
	return kind.Message()
}
