package sshutil

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/rileyhilliard/sensord/internal/util"
)

// Remote reads sensor inputs from a BMC's filesystem over a Runner.
type Remote struct {
	r Runner
}

// NewRemote wraps r.
func NewRemote(r Runner) *Remote {
	return &Remote{r: r}
}

// Host is the BMC the remote reads from.
func (m *Remote) Host() string { return m.r.GetHost() }

// Close closes the underlying connection.
func (m *Remote) Close() error { return m.r.Close() }

// Open checks path is readable and returns a handle whose every ReadAt
// fetches the file afresh, like a sysfs attribute.
func (m *Remote) Open(path string) (*File, error) {
	_, stderr, code, err := m.r.Exec("test -r " + util.ShellQuote(path))
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, &os.PathError{Op: "open", Path: path, Err: errnoFor(string(stderr), os.ErrNotExist)}
	}
	return &File{r: m.r, path: path}, nil
}

// Exists reports whether path is present on the BMC.
func (m *Remote) Exists(path string) bool {
	_, _, code, err := m.r.Exec("test -e " + util.ShellQuote(path))
	return err == nil && code == 0
}

// Glob lists remote paths matching pattern, sorted. No match is not an
// error.
func (m *Remote) Glob(pattern string) ([]string, error) {
	if strings.ContainsAny(pattern, "'\"`$;&|") {
		return nil, fmt.Errorf("glob %q: unsupported characters", pattern)
	}
	out, _, code, err := m.r.Exec("ls -1d " + pattern + " 2>/dev/null")
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	var paths []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// File is an open remote input.
type File struct {
	r    Runner
	path string

	mu     sync.Mutex
	closed bool
}

// ReadAt runs cat on the BMC and copies the requested window of the
// output. Missing or unbound devices report the matching errno.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}

	out, stderr, code, err := f.r.Exec("cat " + util.ShellQuote(f.path))
	if err != nil {
		return 0, err
	}
	if code != 0 {
		return 0, &os.PathError{Op: "read", Path: f.path, Err: errnoFor(string(stderr), syscall.EIO)}
	}
	if off >= int64(len(out)) {
		return 0, io.EOF
	}
	n := copy(p, out[off:])
	if off+int64(n) == int64(len(out)) {
		return n, io.EOF
	}
	return n, nil
}

// Close marks the handle closed; later reads fail with os.ErrClosed.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Path is the remote path.
func (f *File) Path() string { return f.path }

// errnoFor maps a coreutils error message to an errno.
func errnoFor(stderr string, def error) error {
	switch {
	case strings.Contains(stderr, "No such file"):
		return os.ErrNotExist
	case strings.Contains(stderr, "No such device or address"):
		return syscall.ENXIO
	case strings.Contains(stderr, "No such device"):
		return syscall.ENODEV
	case strings.Contains(stderr, "Permission denied"):
		return os.ErrPermission
	}
	return def
}
