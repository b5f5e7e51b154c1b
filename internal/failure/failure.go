// Package failure defines the error kinds shared by detection, scheduling and
// the archive engine, and maps each kind to a process exit code.
package failure

import (
	"errors"
	"io/fs"
)

// Kind tags an error with the category the CLI reports it under.
type Kind int

const (
	KindGeneral Kind = iota
	KindFileNotFound
	KindPermissionDenied
	KindCorruptedArchive
	KindUnsupportedFormat
	KindInvalidPassword
	KindValidation
	KindAmbiguous
	KindScheduling
)

func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindCorruptedArchive:
		return "corrupted archive"
	case KindUnsupportedFormat:
		return "unsupported format"
	case KindInvalidPassword:
		return "invalid password"
	case KindValidation:
		return "validation"
	case KindAmbiguous:
		return "ambiguous input"
	case KindScheduling:
		return "scheduling"
	default:
		return "error"
	}
}

var exitCodes = map[Kind]int{
	KindGeneral:           1,
	KindFileNotFound:      2,
	KindPermissionDenied:  3,
	KindCorruptedArchive:  4,
	KindUnsupportedFormat: 5,
	KindInvalidPassword:   6,
	KindValidation:        1,
	KindAmbiguous:         1,
	KindScheduling:        1,
}

// ExitCode returns the process exit code for k.
func ExitCode(k Kind) int {
	if code, ok := exitCodes[k]; ok {
		return code
	}
	return 1
}

// Error is a tagged error carrying the offending path, if any.
type Error struct {
	Kind Kind
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error without an underlying cause.
func New(kind Kind, path, msg string) *Error {
	return &Error{Kind: kind, Path: path, Msg: msg}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Path: path, Err: err}
}

// FromOS tags filesystem errors by their cause, falling back to fallback.
func FromOS(path string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: kindFromOS(err, fallback), Path: path, Err: err}
}

// KindOf reports the kind of err. Untagged filesystem errors are classified by
// their cause; anything else is KindGeneral.
func KindOf(err error) Kind {
	if err == nil {
		return KindGeneral
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return kindFromOS(err, KindGeneral)
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func kindFromOS(err error, fallback Kind) Kind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	default:
		return fallback
	}
}
