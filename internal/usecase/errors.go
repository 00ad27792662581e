package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrorEmptyRequest        ErrorCode = "EMPTY_REQUEST"
	ErrorAttachmentDecode    ErrorCode = "ATTACHMENT_DECODE"
	ErrorMissingCredential   ErrorCode = "MISSING_CREDENTIAL"
	ErrorNoCandidates        ErrorCode = "NO_CANDIDATES"
	ErrorCandidatesExhausted ErrorCode = "CANDIDATES_EXHAUSTED"
	ErrorInternal            ErrorCode = "INTERNAL"
)

var (
	ErrEmptyRequest        = errors.New("usecase: request has no text and no attachments")
	ErrMissingCredential   = errors.New("usecase: no provider credential configured")
	ErrNoCandidates        = errors.New("usecase: candidate model list is empty")
	ErrCandidatesExhausted = errors.New("usecase: all candidate models failed")
)

// AttachmentKind names the attachment slot a payload arrived in.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentAudio AttachmentKind = "audio"
)

// AttachmentDecodeError reports an attachment whose base64 payload could not be decoded.
type AttachmentDecodeError struct {
	Kind AttachmentKind
	Err  error
}

func (e *AttachmentDecodeError) Error() string {
	return fmt.Sprintf("usecase: decode %s attachment: %v", e.Kind, e.Err)
}

func (e *AttachmentDecodeError) Unwrap() error {
	return e.Err
}

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code carried by err, ErrorInternal for foreign errors and
// the empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr.Code
	}
	return ErrorInternal
}
