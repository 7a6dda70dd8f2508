package udf

import (
	"errors"
	"fmt"
)

// ErrFormat is matched by every malformed-structure error.
var ErrFormat = errors.New("udf: format error")

var (
	ErrChecksum    = fmt.Errorf("%w: tag checksum mismatch", ErrFormat)
	ErrCRC         = fmt.Errorf("%w: descriptor CRC mismatch", ErrFormat)
	ErrUnknownTag  = fmt.Errorf("%w: unknown tag identifier", ErrFormat)
	ErrBadLength   = fmt.Errorf("%w: inconsistent length", ErrFormat)
	ErrBadDString  = fmt.Errorf("%w: malformed dstring", ErrFormat)
	ErrTagLocation = fmt.Errorf("%w: tag location mismatch", ErrFormat)
)

// ErrLimit is matched by every capacity violation.
var ErrLimit = errors.New("udf: format limit exceeded")

var (
	ErrNameTooLong       = fmt.Errorf("%w: name too long", ErrLimit)
	ErrPathTooLong       = fmt.Errorf("%w: path too long", ErrLimit)
	ErrDirectoryTooLarge = fmt.Errorf("%w: directory too large", ErrLimit)
	ErrFileTooLarge      = fmt.Errorf("%w: file too large", ErrLimit)
	ErrTooManyBlocks     = fmt.Errorf("%w: too many blocks", ErrLimit)
	ErrExtentTooLong     = fmt.Errorf("%w: extent length exceeds 30 bits", ErrLimit)
)

var (
	// ErrSourceChanged reports a source whose length changed after Resolve.
	ErrSourceChanged = errors.New("udf: source changed since it was measured")
	// ErrAborted is returned when a Listener asks to abort.
	ErrAborted = errors.New("udf: aborted")
	// ErrUnsupported marks valid structures this package does not handle.
	ErrUnsupported = errors.New("udf: unsupported")
	// ErrNotResolved is returned by Make before a successful Resolve.
	ErrNotResolved = errors.New("udf: volume not resolved")
	// ErrExists reports a duplicate registration.
	ErrExists = errors.New("udf: entry already exists")
	// ErrNotFound reports a missing path on a mounted volume.
	ErrNotFound = errors.New("udf: not found")
)

// LimitError names the limit a registration or layout step exceeded.
type LimitError struct {
	Err   error
	Path  string
	Value int64
	Max   int64
}

func (e *LimitError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v (%d > %d)", e.Err, e.Value, e.Max)
	}
	return fmt.Sprintf("%v: %s (%d > %d)", e.Err, e.Path, e.Value, e.Max)
}

func (e *LimitError) Unwrap() error { return e.Err }

func limitErr(err error, path string, value, max int64) error {
	return &LimitError{Err: err, Path: path, Value: value, Max: max}
}

// IOError attaches the object being transferred to a device or source error.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("udf: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("udf: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}
