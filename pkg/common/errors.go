package common

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrNotImage marks an entry that could not be decoded as a colour image.
// Callers skip such entries.
var ErrNotImage = errors.New("not a decodable image")

type ConfigReason int

const (
	ReasonArgCount ConfigReason = iota + 1
	ReasonTrailingSeparator
)

type ConfigurationError struct {
	Reason ConfigReason
}

func (e *ConfigurationError) Error() string {
	switch e.Reason {
	case ReasonArgCount:
		return "Invalid argument count. Please provide a source and destination directory."
	case ReasonTrailingSeparator:
		return "Invalid directory. Directory must end with a trailing slash."
	default:
		return "invalid configuration"
	}
}

// IOError reports a failure to open the source directory. Code carries the
// OS errno when the underlying error exposes one, otherwise 0.
type IOError struct {
	Op   string
	Path string
	Code int
	Err  error
}

func NewIOError(op, path string, err error) *IOError {
	e := &IOError{Op: op, Path: path, Err: err}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		e.Code = int(errno)
	}
	return e
}

func (e *IOError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("Source directory %s could not be opened. Errno %d (%v).", e.Path, e.Code, e.Err)
	}
	return fmt.Sprintf("Source directory %s could not be opened: %v.", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
