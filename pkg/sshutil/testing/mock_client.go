// Package testing provides an in-memory BMC for SSH-dependent tests.
package testing

import (
	"errors"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/rileyhilliard/sensord/pkg/sshutil"
)

// CommandResponse is a canned reply for one exact command.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

// MockClient answers the few shell commands sshutil.Remote issues
// (test -r, test -e, cat, ls -1d) from an in-memory file table.
type MockClient struct {
	mu       sync.Mutex
	host     string
	files    map[string]string
	devErr   map[string]string
	commands map[string]CommandResponse
	history  []string
	closed   bool
}

// NewMockClient creates a mock with no files.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		files:    map[string]string{},
		devErr:   map[string]string{},
		commands: map[string]CommandResponse{},
	}
}

// WriteFile sets the content of p.
func (m *MockClient) WriteFile(p, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = content
	delete(m.devErr, p)
}

// Remove deletes p.
func (m *MockClient) Remove(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
	delete(m.devErr, p)
}

// Unbind keeps p listed but makes reads fail the way an unbound hwmon
// attribute does.
func (m *MockClient) Unbind(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devErr[p] = "cat: " + p + ": No such device"
}

// SetCommandResponse registers a reply for an exact command.
func (m *MockClient) SetCommandResponse(cmd string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[cmd] = resp
}

// History lists executed commands in order.
func (m *MockClient) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// Closed reports whether Close was called.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string { return m.host }

// Close marks the connection closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Exec runs cmd against the file table.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, -1, errors.New("connection closed")
	}
	m.history = append(m.history, cmd)
	if resp, ok := m.commands[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}

	verb, arg := split(cmd)
	switch verb {
	case "test -r", "test -e":
		if _, ok := m.files[arg]; ok {
			return nil, nil, 0, nil
		}
		return nil, nil, 1, nil
	case "cat":
		if msg, ok := m.devErr[arg]; ok {
			return nil, []byte(msg + "\n"), 1, nil
		}
		content, ok := m.files[arg]
		if !ok {
			return nil, []byte("cat: " + arg + ": No such file or directory\n"), 1, nil
		}
		return []byte(content), nil, 0, nil
	case "ls -1d":
		var out []string
		for p := range m.files {
			if ok, _ := path.Match(arg, p); ok {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil, nil, 2, nil
		}
		sort.Strings(out)
		return []byte(strings.Join(out, "\n") + "\n"), nil, 0, nil
	}
	return nil, []byte("sh: " + cmd + ": not found\n"), 127, nil
}

// split separates the command from its single (possibly quoted) argument.
func split(cmd string) (verb, arg string) {
	cmd = strings.TrimSuffix(cmd, " 2>/dev/null")
	for _, v := range []string{"test -r", "test -e", "ls -1d", "cat"} {
		if strings.HasPrefix(cmd, v+" ") {
			return v, unquote(strings.TrimSpace(cmd[len(v)+1:]))
		}
	}
	return cmd, ""
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], `'\''`, "'")
	}
	return s
}

var _ sshutil.Runner = (*MockClient)(nil)
