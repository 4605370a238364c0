// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrNonCanonicalVarInt is returned when a variable length integer is
	// not canonically encoded.
	ErrNonCanonicalVarInt = ErrorKind("ErrNonCanonicalVarInt")

	// ErrVarStringTooLong is returned when a variable string exceeds the
	// maximum size allowed.
	ErrVarStringTooLong = ErrorKind("ErrVarStringTooLong")

	// ErrVarBytesTooLong is returned when a variable-length byte slice
	// exceeds the maximum size allowed.
	ErrVarBytesTooLong = ErrorKind("ErrVarBytesTooLong")

	// ErrMalformedStrictString is returned when a string that has strict
	// formatting requirements does not conform to the requirements.
	ErrMalformedStrictString = ErrorKind("ErrMalformedStrictString")

	// ErrCmdTooLong is returned when a command exceeds the maximum command
	// size allowed.
	ErrCmdTooLong = ErrorKind("ErrCmdTooLong")

	// ErrPayloadTooLarge is returned when a payload exceeds the maximum
	// payload size allowed.
	ErrPayloadTooLarge = ErrorKind("ErrPayloadTooLarge")

	// ErrPayloadChecksum is returned when a message with an invalid checksum
	// is received.
	ErrPayloadChecksum = ErrorKind("ErrPayloadChecksum")

	// ErrWrongNetwork is returned when a message intended for a different
	// network is received.
	ErrWrongNetwork = ErrorKind("ErrWrongNetwork")

	// ErrMalformedCmd is returned when a malformed command is received.
	ErrMalformedCmd = ErrorKind("ErrMalformedCmd")

	// ErrUnknownCmd is returned when an unknown command is received.
	ErrUnknownCmd = ErrorKind("ErrUnknownCmd")

	// ErrMalformedPayload is returned when the payload of a message with a
	// valid header and checksum can not be decoded.
	ErrMalformedPayload = ErrorKind("ErrMalformedPayload")

	// ErrTooManyHashes is returned when the number of known hashes in a data
	// request exceeds the maximum allowed.
	ErrTooManyHashes = ErrorKind("ErrTooManyHashes")

	// ErrTooManyEntries is returned when the number of protected entries or
	// persistable payloads in a data response exceeds the maximum allowed.
	ErrTooManyEntries = ErrorKind("ErrTooManyEntries")

	// ErrTooManyPeers is returned when the number of reported peers in a
	// peer exchange message exceeds the maximum allowed.
	ErrTooManyPeers = ErrorKind("ErrTooManyPeers")

	// ErrInvalidPubKey is returned when an owner public key does not have
	// the required length.
	ErrInvalidPubKey = ErrorKind("ErrInvalidPubKey")

	// ErrInvalidSignatureLen is returned when a signature does not have the
	// required length.
	ErrInvalidSignatureLen = ErrorKind("ErrInvalidSignatureLen")

	// ErrInvalidTimestamp is returned when an encoded timestamp is outside
	// of the supported range.
	ErrInvalidTimestamp = ErrorKind("ErrInvalidTimestamp")

	// ErrInvalidAddress is returned when a node address can not be parsed or
	// is not allowed on the network.
	ErrInvalidAddress = ErrorKind("ErrInvalidAddress")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// MessageError identifies an error related to wire messages. It has
// full support for errors.Is and errors.As, so the caller can
// ascertain the specific reason for the error by checking the
// underlying error.
type MessageError struct {
	Func        string
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e MessageError) Error() string {
	if e.Func != "" {
		return e.Func + ": " + e.Description
	}
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e MessageError) Unwrap() error {
	return e.Err
}

// messageError creates a MessageError given a set of arguments.
func messageError(fn string, kind ErrorKind, desc string) MessageError {
	return MessageError{Func: fn, Err: kind, Description: desc}
}
