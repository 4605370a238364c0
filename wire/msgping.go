// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgPing implements the Message interface and represents a keep-alive ping.
// The receiver must respond with a pong carrying the same nonce.
//
// LastRoundTrip is the round trip time, in milliseconds, the sender measured
// for the previous ping on the connection, or zero.
type MsgPing struct {
	Nonce         uint64
	LastRoundTrip uint32
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgPing) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.Nonce, &msg.LastRoundTrip)
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgPing) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, msg.Nonce, msg.LastRoundTrip)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgPing) Command() string {
	return CmdPing
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgPing) MaxPayloadLength(pver uint32) uint32 {
	return 12
}

// NewMsgPing returns a new ping message that conforms to the Message
// interface.
func NewMsgPing(nonce uint64, lastRoundTrip uint32) *MsgPing {
	return &MsgPing{Nonce: nonce, LastRoundTrip: lastRoundTrip}
}

// MsgPong implements the Message interface and represents a response to a
// ping message.
type MsgPong struct {
	Nonce uint64
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgPong) Decode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgPong) Encode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.Nonce)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgPong) Command() string {
	return CmdPong
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgPong) MaxPayloadLength(pver uint32) uint32 {
	return 8
}

// NewMsgPong returns a new pong message that conforms to the Message
// interface.
func NewMsgPong(nonce uint64) *MsgPong {
	return &MsgPong{Nonce: nonce}
}
