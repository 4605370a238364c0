// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrBanned indicates the remote peer is on the ban list.
	ErrBanned = ErrorKind("ErrBanned")

	// ErrTimeout indicates an operation on the connection, such as the
	// handshake, did not complete in time.
	ErrTimeout = ErrorKind("ErrTimeout")

	// ErrTransportClosed indicates the connection was closed before or while
	// a message was being sent.
	ErrTransportClosed = ErrorKind("ErrTransportClosed")

	// ErrMalformedMessage indicates a message received from the remote peer
	// could not be decoded or violated the protocol.
	ErrMalformedMessage = ErrorKind("ErrMalformedMessage")

	// ErrThrottled indicates the remote peer repeatedly exceeded the inbound
	// message rate limits.
	ErrThrottled = ErrorKind("ErrThrottled")

	// ErrSelfConnection indicates the peer connected to itself.
	ErrSelfConnection = ErrorKind("ErrSelfConnection")

	// ErrProtocolVersion indicates the remote peer advertised a protocol
	// version that is no longer supported.
	ErrProtocolVersion = ErrorKind("ErrProtocolVersion")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error related to a peer connection.  It has full
// support for errors.Is and errors.As, so the caller can ascertain the
// specific reason for the error by checking the underlying error.
type Error struct {
	Err         error
	Description string

	// recoverable is set for malformed messages which left the stream on a
	// message boundary.
	recoverable bool
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// makeError creates an Error given a set of arguments.
func makeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
