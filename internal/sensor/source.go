package sensor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"
)

// Source is a randomly addressable reading source, typically a sysfs file.
type Source interface {
	io.ReaderAt
	io.Closer
}

// Opener opens the source at path.
type Opener func(path string) (Source, error)

// OpenFile opens path read-only.
func OpenFile(path string) (Source, error) {
	return os.Open(path)
}

// Device is the opaque hardware handle a sensor is bound to while active.
// It is swapped on every Activate and dropped on Deactivate.
type Device interface{}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeCancelled
	outcomeGone
	outcomeFailed
)

// classify sorts a read completion. EOF with data is a normal sysfs read.
func classify(n int, err error) outcome {
	if err == nil || (errors.Is(err, io.EOF) && n > 0) {
		if n == 0 {
			return outcomeFailed
		}
		return outcomeOK
	}
	switch {
	case errors.Is(err, os.ErrClosed), errors.Is(err, context.Canceled):
		return outcomeCancelled
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, syscall.ENODEV),
		errors.Is(err, syscall.ENXIO),
		errors.Is(err, syscall.EBADF):
		return outcomeGone
	}
	return outcomeFailed
}
