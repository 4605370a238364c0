// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peermgr

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrCapacityExceeded indicates a connection was refused because the
	// maximum number of connections is reached and no connection could be
	// evicted to make room.
	ErrCapacityExceeded = ErrorKind("ErrCapacityExceeded")

	// ErrDuplicatePeer indicates the peer is already part of the active
	// connection set.
	ErrDuplicatePeer = ErrorKind("ErrDuplicatePeer")

	// ErrInvalidPolicy indicates an unknown eviction policy was configured.
	ErrInvalidPolicy = ErrorKind("ErrInvalidPolicy")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a peer manager error.  It has full support for errors.Is
// and errors.As, so the caller can ascertain the specific reason for the
// error by checking the underlying error.
type Error struct {
	Err         error
	Description string
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
