// Package sshutil reads sensor inputs on a remote BMC over SSH.
package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/rileyhilliard/sensord/internal/errors"
)

// Client is an SSH connection to one BMC.
type Client struct {
	*ssh.Client
	Host    string // alias or user@host as configured
	Address string // resolved host:port
}

// StrictHostKeyChecking verifies host keys against ~/.ssh/known_hosts.
// Disable only for lab machines that get reimaged.
var StrictHostKeyChecking = true

// Dial connects to host, which may be an ~/.ssh/config alias, a hostname,
// user@host or host:port.
func Dial(host string, timeout time.Duration) (*Client, error) {
	s := resolveSettings(host, sshConfigPath())

	cfg, err := clientConfig(s, timeout)
	if err != nil {
		var sErr *errors.Error
		if stderrors.As(err, &sErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't set up SSH for '%s'", host),
			"Check your keys are loaded: ssh-add -l")
	}

	addr := s.address()
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", host, addr),
			suggestionForDialError(err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		var mismatch *HostKeyMismatchError
		if stderrors.As(err, &mismatch) {
			return nil, errors.New(errors.ErrSSH, mismatch.Error(), mismatch.Suggestion())
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
			suggestionForHandshakeError(err))
	}

	return &Client{Client: ssh.NewClient(sshConn, chans, reqs), Host: host, Address: addr}, nil
}

// DialAny tries each host in order and returns the first connection that
// works. A BMC is often reachable both on a dedicated and a shared NIC.
func DialAny(hosts []string, timeout time.Duration) (*Client, error) {
	if len(hosts) == 0 {
		return nil, errors.New(errors.ErrSSH, "No SSH hosts given", "Add an ssh entry to the host in sensord.yaml.")
	}
	var errs []error
	for _, h := range hosts {
		c, err := Dial(h, timeout)
		if err == nil {
			return c, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.WrapWithCode(errors.Join(errs...), errors.ErrSSH,
		fmt.Sprintf("None of %s answered", strings.Join(hosts, ", ")), "")
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// GetHost returns the host as it was configured.
func (c *Client) GetHost() string { return c.Host }

type settings struct {
	hostname     string
	port         string
	user         string
	identityFile string
}

func (s *settings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

func sshConfigPath() string {
	return filepath.Join(homeDir(), ".ssh", "config")
}

// resolveSettings splits user@host:port and fills the gaps from the ssh
// config file at configPath. An explicit user wins over the config.
func resolveSettings(host, configPath string) *settings {
	s := &settings{port: "22", user: currentUser()}

	explicitUser := false
	if i := strings.Index(host, "@"); i != -1 {
		s.user, host = host[:i], host[i+1:]
		explicitUser = true
	}
	if i := strings.LastIndex(host, ":"); i != -1 && isPort(host[i+1:]) {
		s.port, host = host[i+1:], host[:i]
	}
	s.hostname = host

	cfg, err := decodeConfig(configPath)
	if err != nil {
		return s
	}
	if v, _ := cfg.Get(host, "HostName"); v != "" {
		s.hostname = v
	}
	if v, _ := cfg.Get(host, "Port"); v != "" {
		s.port = v
	}
	if v, _ := cfg.Get(host, "User"); v != "" && !explicitUser {
		s.user = v
	}
	if v, _ := cfg.Get(host, "IdentityFile"); v != "" {
		s.identityFile = expandPath(v)
	}
	return s
}

func isPort(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// decodeConfig parses an ssh config up to its first Match block, which the
// parser doesn't understand.
func decodeConfig(path string) (*ssh_config.Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kept []string
	for _, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			break
		}
		kept = append(kept, line)
	}
	return ssh_config.Decode(bytes.NewReader([]byte(strings.Join(kept, "\n"))))
}

func clientConfig(s *settings, timeout time.Duration) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if a := agentAuth(); a != nil {
		auth = append(auth, a)
	}

	keys := []string{}
	if k := os.Getenv("SENSORD_SSH_KEY"); k != "" {
		keys = append(keys, k)
	}
	if s.identityFile != "" {
		keys = append(keys, s.identityFile)
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keys = append(keys, filepath.Join(homeDir(), ".ssh", name))
	}
	var encrypted []string
	for _, k := range keys {
		m, err := keyAuth(k)
		if err != nil {
			if strings.Contains(err.Error(), "passphrase") {
				encrypted = append(encrypted, k)
			}
			continue
		}
		auth = append(auth, m)
	}

	if len(auth) == 0 {
		if len(encrypted) > 0 {
			return nil, errors.New(errors.ErrSSH,
				"Found SSH key(s) but they're encrypted: "+strings.Join(encrypted, ", "),
				"Add them to the agent with ssh-add.")
		}
		return nil, errors.New(errors.ErrSSH, "No SSH auth methods available",
			"Check your keys are loaded: ssh-add -l")
	}

	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec // opted out by the user
	if StrictHostKeyChecking {
		cb, err := hostKeyCallback(filepath.Join(homeDir(), ".ssh", "known_hosts"))
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKey = cb
	}

	return &ssh.ClientConfig{
		User:            s.user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

var (
	agentOnce   sync.Once
	agentClient agent.ExtendedAgent
)

// agentAuth uses the running ssh-agent if it holds any keys.
func agentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	agentOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err == nil {
			agentClient = agent.NewClient(conn)
		}
	})
	if agentClient == nil {
		return nil
	}
	if signers, err := agentClient.Signers(); err != nil || len(signers) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(agentClient.Signers)
}

func keyAuth(path string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) || bytes.Contains(key, []byte("ENCRYPTED")) {
			return nil, fmt.Errorf("%s needs a passphrase", path)
		}
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// HostKeyMismatchError is returned when known_hosts has a different key.
type HostKeyMismatchError struct {
	Hostname   string
	KeyType    string
	KnownHosts string
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.KeyType)
}

// Suggestion explains how to refresh the stale entry.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return fmt.Sprintf("BMCs change host keys when reflashed. If that's what happened, run:\n    ssh-keygen -R %s -f %s", host, e.KnownHosts)
}

func hostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, nil, 0600); err != nil {
			return nil, err
		}
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := cb(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
			return &HostKeyMismatchError{Hostname: hostname, KeyType: key.Type(), KnownHosts: path}
		}
		return err
	}, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func suggestionForDialError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "Is dropbear or sshd running on the BMC?"
	case strings.Contains(msg, "no route to host"), strings.Contains(msg, "network is unreachable"):
		return "Can't route to the BMC. Check the management network."
	case strings.Contains(msg, "timeout"):
		return "Connection timed out. The BMC might be rebooting."
	}
	return "Make sure the BMC is reachable: ping <host>"
}

func suggestionForHandshakeError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "no supported methods"):
		return "Auth failed. Check your keys are loaded: ssh-add -l"
	case strings.Contains(msg, "host key"):
		return "Host key issue. Try connecting manually first: ssh <host>"
	}
	return "Something went wrong during SSH setup. Try: ssh <host>"
}
