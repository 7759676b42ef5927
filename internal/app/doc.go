// Package app wires application dependencies for the CLI.
//
// It builds the key storage, identity session, replica client and poller
// from Config, exposing them via the Wire struct for commands to use.
package app
