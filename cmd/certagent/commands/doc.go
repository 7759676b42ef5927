// Package commands defines the certagent CLI and wires dependencies for subcommands.
//
// Commands
//
//   - login        Obtain a delegation from an identity provider
//   - logout       Remove the session key and delegation chain
//   - whoami       Print the session state and effective principal
//   - call         Submit a call and wait for its certified reply
//   - poll         Wait for the certified outcome of submitted calls
//   - config show  Print the effective configuration
//
// # Implementation
//
// The root command loads configuration and sets up logging before any
// subcommand runs. Subcommands that need the session build the dependency
// graph (storage, session, replica client) through openWire.
package commands
