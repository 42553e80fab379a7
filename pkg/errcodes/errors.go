package errcodes

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies one member of the closed set of user-facing failures.
type Code string

const (
	CodeFileNotFound     Code = "FILE_NOT_FOUND"
	CodeFileTooSmall     Code = "FILE_TOO_SMALL"
	CodeInvalidExtension Code = "INVALID_EXTENSION"
	CodeCorruptedArchive Code = "CORRUPTED_ARCHIVE"
	CodeMissingContainer Code = "MISSING_CONTAINER"
	CodeMissingContent   Code = "MISSING_CONTENT"
	CodeInvalidStructure Code = "INVALID_STRUCTURE"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUnknownError     Code = "UNKNOWN_ERROR"

	// CodeNotFound is used by the repository for missing rows. It is not part
	// of the import taxonomy and never reaches the import caller.
	CodeNotFound Code = "NOT_FOUND"
)

var messages = map[Code]string{
	CodeFileNotFound:     "The ePUB file could not be found. It may have been moved or deleted.",
	CodeFileTooSmall:     "This file is too small to be a valid ePUB. It may be corrupted or incomplete.",
	CodeInvalidExtension: "This file is not an ePUB. Please select a file with the .epub extension.",
	CodeCorruptedArchive: "This ePUB file appears to be corrupted. Try re-downloading or obtaining a new copy.",
	CodeMissingContainer: "This ePUB is missing required structure files. It may be an unsupported format.",
	CodeMissingContent:   "This ePUB is missing its content file. It may be an incomplete or damaged file.",
	CodeInvalidStructure: "This ePUB has an invalid structure. It may be an unsupported or non-standard format.",
	CodePermissionDenied: "Cannot access this file. Please check file permissions.",
	CodeUnknownError:     "An unexpected error occurred while reading this ePUB. Please try again.",
}

// Only these may succeed on retry; structural problems never will.
var recoverable = map[Code]bool{
	CodePermissionDenied: true,
	CodeUnknownError:     true,
}

// Error is a user-facing failure. Message is safe to show as-is; Detail and
// Err carry the technical cause for logs.
type Error struct {
	Code        Code
	Message     string
	Recoverable bool
	Detail      string
	Err         error
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) Unwrap() error {
	return err.Err
}

// Is matches on Code alone so callers can compare against a bare constructor,
// e.g. errors.Is(err, errcodes.New(errcodes.CodeFileTooSmall, "")).
func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == err.Code
}

// LogDetail returns the technical description used in log lines.
func (err *Error) LogDetail() string {
	switch {
	case err.Detail != "" && err.Err != nil:
		return fmt.Sprintf("%s: %s: %v", err.Code, err.Detail, err.Err)
	case err.Detail != "":
		return fmt.Sprintf("%s: %s", err.Code, err.Detail)
	case err.Err != nil:
		return fmt.Sprintf("%s: %v", err.Code, err.Err)
	}
	return string(err.Code)
}

// New builds an Error for code with its canned message.
func New(code Code, detail string) *Error {
	msg, ok := messages[code]
	if !ok {
		code = CodeUnknownError
		msg = messages[CodeUnknownError]
	}
	return &Error{
		Code:        code,
		Message:     msg,
		Recoverable: recoverable[code],
		Detail:      detail,
	}
}

// Wrap is New with an underlying cause attached.
func Wrap(code Code, err error, detail string) *Error {
	e := New(code, detail)
	e.Err = err
	return e
}

// Message returns the canned user-facing text for code.
func Message(code Code) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[CodeUnknownError]
}

// IsRecoverable reports whether a retry of the failed operation might succeed.
func IsRecoverable(code Code) bool {
	return recoverable[code]
}

// NotFound returns an error indicating the given resource does not exist.
func NotFound(resource string) error {
	return &Error{
		Code:    CodeNotFound,
		Message: resource + " not found.",
	}
}

// IsNotFound reports whether err is (or wraps) a NotFound error.
func IsNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == CodeNotFound
}
