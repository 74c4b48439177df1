// Package server defines the error taxonomy for the relay broker. Almost
// every failure is absorbed locally and logged; only authentication failure
// is surfaced back to the originating client.
package server

import "errors"

// ErrMalformedFrame indicates an unparseable frame or one missing required
// fields for its declared type. Dropped, logged, no reply.
var ErrMalformedFrame = errors.New("malformed frame")

// ErrUnknownRecipient indicates the target username has no active session.
// Dropped, logged, no reply to the sender.
var ErrUnknownRecipient = errors.New("recipient has no active session")

// ErrAuthFailure indicates a bad or expired credential. This is the one
// error replied to the sender, as an authError frame.
var ErrAuthFailure = errors.New("authentication failed")

// ErrPayloadRejected indicates a file payload with a disallowed content
// type or a declared size over the ceiling. Dropped, logged, no reply.
var ErrPayloadRejected = errors.New("payload rejected")

// ErrStoreFailure indicates the connection store could not persist or read
// an edge. Logged; the response frame is still forwarded and the edge is
// considered absent.
var ErrStoreFailure = errors.New("connection store failure")
