// Package polling discovers the outcome of asynchronous calls by repeatedly
// reading certified request status from a replica.
//
// A Poller runs an explicit loop: read, verify, look up status, and either
// return a terminal outcome or ask the Strategy how long to wait before the
// next read. The Strategy alone bounds the loop.
package polling
