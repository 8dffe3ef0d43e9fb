package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/rileyhilliard/sensord/internal/errors"
)

// Exec runs cmd on the BMC. The exit code is -1 when cmd couldn't run at
// all; a non-zero code with a nil error means it ran and failed.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.Client.NewSession()
	if err != nil {
		return nil, nil, -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create SSH session",
			"Connection may have been closed. Try reconnecting.")
	}
	defer session.Close()

	var out, errOut bytes.Buffer
	session.Stdout = &out
	session.Stderr = &errOut

	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if stderrors.As(err, &exitErr) {
			return out.Bytes(), errOut.Bytes(), exitErr.ExitStatus(), nil
		}
		return nil, nil, -1, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Failed to execute command: %s", cmd),
			"The connection may have dropped.")
	}
	return out.Bytes(), errOut.Bytes(), 0, nil
}
