// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import "errors"

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrInvalidSignature indicates the owner signature of an entry, a
	// tombstone or a refresh does not verify.
	ErrInvalidSignature = ErrorKind("ErrInvalidSignature")

	// ErrStaleSequenceNumber indicates the sequence number of an update is
	// not greater than the one already accepted for the payload.
	ErrStaleSequenceNumber = ErrorKind("ErrStaleSequenceNumber")

	// ErrExpired indicates the lifetime of an entry already elapsed.
	ErrExpired = ErrorKind("ErrExpired")

	// ErrDuplicate indicates a persistable payload is already stored.
	ErrDuplicate = ErrorKind("ErrDuplicate")

	// ErrInvalidPayload indicates a payload of an unknown type, of a type
	// not allowed in the operation, exceeding the size limit of its type, or
	// with an out of range lifetime or creation time.
	ErrInvalidPayload = ErrorKind("ErrInvalidPayload")

	// ErrOwnerMismatch indicates the key of an entry differs from the owner
	// key of its payload.
	ErrOwnerMismatch = ErrorKind("ErrOwnerMismatch")

	// ErrUnknownEntry indicates a refresh for an entry which is not stored.
	ErrUnknownEntry = ErrorKind("ErrUnknownEntry")

	// ErrDatabase indicates the backing store failed.
	ErrDatabase = ErrorKind("ErrDatabase")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a data store error.  It has full support for errors.Is and
// errors.As, so the caller can ascertain the specific reason for the error by
// checking the underlying error.
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

// IsBannable returns whether the error is caused by data no honest peer
// relays.  Stale, duplicate and expired data is common in gossip and not
// bannable.
func IsBannable(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrOwnerMismatch)
}
