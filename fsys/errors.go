package fsys

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"

	"github.com/blang/vfs"
	"github.com/blang/vfs/memfs"
)

// ErrorCode classifies a filesystem failure independently of the backend.
type ErrorCode uint8

const (
	ErrorIo ErrorCode = iota
	ErrorAccess
	ErrorBusy
	ErrorExist
	ErrorInvalid
	ErrorIsDirectory
	ErrorLoop
	ErrorTooManyLinks
	ErrorNameTooLong
	ErrorNoEntry
	ErrorInsufficientSpace
	ErrorNotDirectory
	ErrorNotEmpty
	ErrorNotPermitted
	ErrorReadOnly
	ErrorCrossDevice
	ErrorFileTooLarge
	ErrorBadDescriptor
	ErrorNotCapable
)

var codeNames = [...]string{
	ErrorIo:                "io",
	ErrorAccess:            "access",
	ErrorBusy:              "busy",
	ErrorExist:             "exist",
	ErrorInvalid:           "invalid",
	ErrorIsDirectory:       "is-directory",
	ErrorLoop:              "loop",
	ErrorTooManyLinks:      "too-many-links",
	ErrorNameTooLong:       "name-too-long",
	ErrorNoEntry:           "no-entry",
	ErrorInsufficientSpace: "insufficient-space",
	ErrorNotDirectory:      "not-directory",
	ErrorNotEmpty:          "not-empty",
	ErrorNotPermitted:      "not-permitted",
	ErrorReadOnly:          "read-only",
	ErrorCrossDevice:       "cross-device",
	ErrorFileTooLarge:      "file-too-large",
	ErrorBadDescriptor:     "bad-descriptor",
	ErrorNotCapable:        "not-capable",
}

func (c ErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Error is a classified filesystem error.
type Error struct {
	Err  error
	Op   string
	Path string
	Code ErrorCode
}

func (e *Error) Error() string {
	msg := e.Op + " " + e.Path + ": " + e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, code ErrorCode) *Error {
	return &Error{Op: op, Path: path, Code: code}
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Op: op, Path: path, Code: mapOSError(err), Err: err}
}

// CodeOf returns the classification of err.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return mapOSError(err)
}

func mapOSError(err error) ErrorCode {
	switch {
	case errors.Is(err, vfs.ErrReadOnly):
		return ErrorReadOnly
	case errors.Is(err, memfs.ErrIsDirectory):
		return ErrorIsDirectory
	case errors.Is(err, fs.ErrNotExist):
		return ErrorNoEntry
	case errors.Is(err, fs.ErrExist):
		return ErrorExist
	case errors.Is(err, fs.ErrPermission):
		return ErrorAccess
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return mapErrno(errno)
	}

	// memfs reports some conditions only as text
	msg := err.Error()
	switch {
	case strings.Contains(msg, "already exists"):
		return ErrorExist
	case strings.Contains(msg, "not a directory"):
		return ErrorNotDirectory
	case strings.Contains(msg, "is a directory"):
		return ErrorIsDirectory
	case strings.Contains(msg, "negative position"), strings.Contains(msg, "invalid whence"):
		return ErrorInvalid
	case strings.Contains(msg, "too far"):
		return ErrorFileTooLarge
	}
	if os.IsNotExist(err) {
		return ErrorNoEntry
	}
	return ErrorIo
}

func mapErrno(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EACCES:
		return ErrorAccess
	case syscall.EPERM:
		return ErrorNotPermitted
	case syscall.ENOENT:
		return ErrorNoEntry
	case syscall.EEXIST:
		return ErrorExist
	case syscall.ENOTDIR:
		return ErrorNotDirectory
	case syscall.EISDIR:
		return ErrorIsDirectory
	case syscall.ENOTEMPTY:
		return ErrorNotEmpty
	case syscall.ENAMETOOLONG:
		return ErrorNameTooLong
	case syscall.ENOSPC:
		return ErrorInsufficientSpace
	case syscall.EROFS:
		return ErrorReadOnly
	case syscall.EXDEV:
		return ErrorCrossDevice
	case syscall.ELOOP:
		return ErrorLoop
	case syscall.EMLINK:
		return ErrorTooManyLinks
	case syscall.EBUSY:
		return ErrorBusy
	case syscall.EFBIG:
		return ErrorFileTooLarge
	case syscall.EBADF:
		return ErrorBadDescriptor
	case syscall.EINVAL:
		return ErrorInvalid
	default:
		return ErrorIo
	}
}
