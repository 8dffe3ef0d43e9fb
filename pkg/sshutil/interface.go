package sshutil

// Runner runs shell commands on a remote host. Client and the mock in
// sshutil/testing satisfy it.
type Runner interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Close closes the connection.
	Close() error

	// GetHost returns the host as it was configured.
	GetHost() string
}

var _ Runner = (*Client)(nil)
