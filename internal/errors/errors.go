// Package errors provides the sentinel errors shared across certagent.
//
// Every leaf of the error taxonomy is a sentinel here so callers can branch with
// errors.Is regardless of which package produced the error. Structured errors
// that carry data (reject info, provider failure text) live next to the code
// that produces them and unwrap to one of these sentinels.
//
// IMPORTANT: This package MUST NOT import any other internal packages.
package errors

import "errors"

// Certificate verification failures. Never retried.
var (
	// ErrInvalidSignature indicates the certificate signature did not verify
	// against the key it was checked with.
	ErrInvalidSignature = errors.New("invalid certificate signature")

	// ErrUntrustedRoot indicates no delegation path reaches the trusted root key,
	// or the delegated subnet is not authorised for the requested scope.
	ErrUntrustedRoot = errors.New("certificate does not chain to trusted root")

	// ErrMalformedCertificate indicates a structural violation in the
	// certificate or its hash tree.
	ErrMalformedCertificate = errors.New("malformed certificate")
)

// Call status polling failures.
var (
	// ErrCertificateInvalid indicates the certificate returned for a poll
	// attempt failed verification.
	ErrCertificateInvalid = errors.New("certificate verification failed")

	// ErrMissingReply indicates the status was replied but no reply leaf exists.
	ErrMissingReply = errors.New("call replied without a reply value")

	// ErrCallRejected indicates the replica rejected the call.
	ErrCallRejected = errors.New("call was rejected")

	// ErrDoneWithoutReply indicates the call reached done without the reply
	// ever being observed.
	ErrDoneWithoutReply = errors.New("call was marked as done but the reply was never observed")

	// ErrProtocol indicates an unrecognised status value or reject encoding.
	ErrProtocol = errors.New("replica protocol violation")

	// ErrPollCancelled indicates polling stopped because the strategy aborted
	// or the caller's context ended at a suspension point.
	ErrPollCancelled = errors.New("polling cancelled")

	// ErrTransport indicates the replica client failed to complete a read.
	ErrTransport = errors.New("replica transport failure")
)

// Delegation failures.
var (
	// ErrDelegationExpired indicates at least one delegation in a chain has expired.
	ErrDelegationExpired = errors.New("delegation expired")

	// ErrChainMalformed indicates a chain that cannot be decoded or whose links
	// do not connect.
	ErrChainMalformed = errors.New("delegation chain malformed")
)

// Handshake failures.
var (
	// ErrOriginMismatch marks a message from an unexpected origin. It is logged
	// and swallowed, never returned from a handshake.
	ErrOriginMismatch = errors.New("message origin does not match provider")

	// ErrUserInterrupted indicates the authentication surface was closed before
	// the handshake completed.
	ErrUserInterrupted = errors.New("UserInterrupt")

	// ErrExternalFailure indicates the identity provider reported a failure.
	ErrExternalFailure = errors.New("identity provider reported failure")

	// ErrHandshakeSuperseded indicates a newer handshake or a logout replaced
	// the one in flight.
	ErrHandshakeSuperseded = errors.New("handshake superseded")
)

// Storage failures.
var (
	// ErrStorageRead indicates a storage backend failed to read a value.
	ErrStorageRead = errors.New("storage read failed")

	// ErrStorageWrite indicates a storage backend failed to write or remove a value.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrMigration indicates copying a value from a legacy backend failed. The
	// legacy value is left in place.
	ErrMigration = errors.New("storage migration failed")
)

// Key handling failures.
var (
	// ErrKeyNotExportable indicates an attempt to serialise a non-extractable key.
	ErrKeyNotExportable = errors.New("key is not exportable")

	// ErrUnknownKeyKind indicates a stored key record of an unsupported kind.
	ErrUnknownKeyKind = errors.New("unknown key kind")

	// ErrNoSessionKey indicates an operation that needs a session key ran
	// while none is held.
	ErrNoSessionKey = errors.New("no session key")
)

// Configuration failures.
var (
	// ErrConfigInvalid indicates a configuration value outside its allowed set.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }
