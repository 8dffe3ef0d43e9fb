// Package testing provides sensor sources and sinks for tests.
package testing

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rileyhilliard/sensord/internal/sensor"
)

// FakeSource serves a settable payload, or a settable error.
type FakeSource struct {
	mu     sync.Mutex
	data   []byte
	err    error
	reads  int
	closed bool

	// OnRead runs inside ReadAt before it returns.
	OnRead func()
}

// NewFakeSource creates a source serving data.
func NewFakeSource(data string) *FakeSource {
	return &FakeSource{data: []byte(data)}
}

// Set replaces the payload and clears any error.
func (s *FakeSource) Set(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = []byte(data)
	s.err = nil
}

// Fail makes subsequent reads return err.
func (s *FakeSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *FakeSource) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	s.reads++
	hook := s.OnRead
	s.mu.Unlock()

	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &os.PathError{Op: "read", Path: "fake", Err: os.ErrClosed}
	}
	if s.err != nil {
		return 0, s.err
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *FakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	s.closed = true
	return nil
}

// Reads counts ReadAt calls.
func (s *FakeSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed reports whether Close was called.
func (s *FakeSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeOpener hands out FakeSources by path.
type FakeOpener struct {
	mu      sync.Mutex
	sources map[string]*FakeSource
	opened  []string
}

// NewFakeOpener creates an opener with no paths.
func NewFakeOpener() *FakeOpener {
	return &FakeOpener{sources: map[string]*FakeSource{}}
}

// Add makes path open to a new source serving data and returns it.
func (o *FakeOpener) Add(path, data string) *FakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := NewFakeSource(data)
	o.sources[path] = s
	return s
}

// Open is a sensor.Opener. Each open of a path reopens the same source.
func (o *FakeOpener) Open(path string) (sensor.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sources[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
	o.opened = append(o.opened, path)
	return s, nil
}

// Opened lists opened paths in order.
func (o *FakeOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

// Source returns the source registered for path.
func (o *FakeOpener) Source(path string) *FakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sources[path]
	if !ok {
		panic(fmt.Sprintf("no fake source for %s", path))
	}
	return s
}
