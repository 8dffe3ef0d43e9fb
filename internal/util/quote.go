// Package util holds small string helpers shared by the CLI and the SSH
// transport.
package util

import "strings"

// ShellQuote wraps s in single quotes for a POSIX shell, escaping any single
// quotes inside. The result is always one literal word.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
