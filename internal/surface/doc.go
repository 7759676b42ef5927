// Package surface provides authentication surfaces: the external context a
// user authenticates in while the session waits for a delegation.
//
// Loopback stands in for a second browser window. It listens on 127.0.0.1
// and hands the provider a callback URL; the provider posts messages to
// /message, long-polls /outbox for messages the session sends, and posts
// /close when dismissed. A provider that stops polling for longer than the
// liveness timeout after first contact is treated as closed.
//
// DevProvider is a headless provider that approves every request, for use
// with the development replica.
package surface
