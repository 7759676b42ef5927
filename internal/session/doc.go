// Package session owns the session key and delegation chain of one client
// and runs the handshake with an identity provider that produces new
// delegations.
//
// A Session is restored from key storage, reports one of four states
// (Anonymous, KeyOnly, Delegated, Expired) and yields the effective identity
// used to sign calls. At most one handshake is live per Session; starting a
// new one or logging out supersedes the one in flight.
package session
