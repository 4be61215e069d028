package upload

import (
	"errors"
	"fmt"
)

// Kind classifies an upload failure.
type Kind string

const (
	KindNoFile          Kind = "NO_FILE"
	KindFileTooLarge    Kind = "FILE_TOO_LARGE"
	KindUnsupportedType Kind = "UNSUPPORTED_TYPE"
	KindQuotaExceeded   Kind = "QUOTA_EXCEEDED"
	KindPathEscape      Kind = "PATH_ESCAPE"
	KindStorageFault    Kind = "STORAGE_FAULT"
)

// Error is the typed result of every rejected or failed upload operation.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can test against the
// sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ClientError reports whether the failure was caused by the request rather
// than by the server.
func (e *Error) ClientError() bool { return e.Kind != KindStorageFault }

var (
	ErrNoFile          = &Error{Kind: KindNoFile, Detail: "no file provided"}
	ErrFileTooLarge    = &Error{Kind: KindFileTooLarge, Detail: "file exceeds maximum allowed size"}
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType, Detail: "file type is not allowed"}
	ErrQuotaExceeded   = &Error{Kind: KindQuotaExceeded, Detail: "storage quota exceeded"}
	ErrPathEscape      = &Error{Kind: KindPathEscape, Detail: "path escapes the upload directory"}
	ErrStorageFault    = &Error{Kind: KindStorageFault, Detail: "storage failure"}
)

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func storageFault(detail string, err error) *Error {
	return newError(KindStorageFault, detail, err)
}

// KindOf returns the kind carried by err, or KindStorageFault for errors
// that did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageFault
}
