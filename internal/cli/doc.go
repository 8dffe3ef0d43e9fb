// Package cli implements the sensord command-line interface.
//
// Each Cobra command is a thin definition that delegates to a
// <name>Command function holding the actual work, so the work can be
// tested without going through flag parsing.
//
// # Command Structure
//
//	sensord run              - Run the daemon (bus objects + metrics)
//	sensord read [sensor...] - Read sensors once and print a table
//	sensord monitor          - Live terminal dashboard
//	sensord check            - Validate sensord.yaml
//	sensord init             - Create sensord.yaml
//	sensord version          - Print build information
//
// # Targets
//
// read and monitor work without the bus. They poll the configured input
// files through the same sensor code the daemon uses, either locally or
// on a host from the 'hosts' section reached over SSH. Power gating is
// not applied to these one-off readers.
//
// # Flag Handling
//
// Global flags (--config, --debug, --color) live on the root command.
// --json switches read and check to the JSONEnvelope output used by
// scripts; errors are then reported in the same envelope.
package cli
