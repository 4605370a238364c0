// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"time"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field in a
// version message (MsgVersion).
const MaxUserAgentLen = 256

// MsgVersion implements the Message interface and represents a version
// message.  It is used for a peer to advertise itself as soon as an outbound
// connection is made.  The remote peer then uses this information along with
// its own to negotiate.  The remote peer must then respond with a version
// message of its own containing the negotiated values followed by a verack
// message (MsgVerAck).  This exchange must take place before any further
// communication is allowed to proceed.
type MsgVersion struct {
	// Version of the protocol the node is using.
	ProtocolVersion uint32

	// Address the node can be reached at.  It identifies the node on the
	// overlay regardless of the transport level remote address, which is
	// meaningless for connections routed through Tor.
	Addr NodeAddress

	// Capabilities supported by the node.
	Capabilities Capability

	// Time the message was generated.
	Timestamp time.Time

	// Unique value associated with message that is used to detect self
	// connections.
	Nonce uint64

	// The user agent that generated the message.
	UserAgent string
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgVersion) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.ProtocolVersion); err != nil {
		return err
	}
	if err := readNodeAddress(r, pver, &msg.Addr); err != nil {
		return err
	}
	err := readElements(r, &msg.Capabilities, &msg.Timestamp, &msg.Nonce)
	if err != nil {
		return err
	}
	msg.UserAgent, err = ReadAsciiVarString(r, pver, MaxUserAgentLen)
	return err
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgVersion) Encode(w io.Writer, pver uint32) error {
	if len(msg.UserAgent) > MaxUserAgentLen {
		return messageError("MsgVersion.Encode", ErrVarStringTooLong,
			"user agent too long")
	}
	if err := writeElement(w, msg.ProtocolVersion); err != nil {
		return err
	}
	if err := writeNodeAddress(w, pver, &msg.Addr); err != nil {
		return err
	}
	err := writeElements(w, msg.Capabilities, msg.Timestamp, msg.Nonce)
	if err != nil {
		return err
	}
	return WriteVarString(w, pver, msg.UserAgent)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgVersion) Command() string {
	return CmdVersion
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgVersion) MaxPayloadLength(pver uint32) uint32 {
	// Protocol version 4 bytes + address + capabilities 8 bytes +
	// timestamp 8 bytes + nonce 8 bytes + user agent.
	return 4 + MaxVarIntPayload + MaxHostLength + 2 + 8 + 8 + 8 +
		MaxVarIntPayload + MaxUserAgentLen
}

// NewMsgVersion returns a new version message that conforms to the Message
// interface using the passed parameters and defaults for the remaining
// fields.
func NewMsgVersion(me NodeAddress, caps Capability, nonce uint64, userAgent string) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Addr:            me,
		Capabilities:    caps,
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		Nonce:           nonce,
		UserAgent:       userAgent,
	}
}

// MsgVerAck defines a verack message which is used for a peer to
// acknowledge a version message (MsgVersion) after it has used the
// information to negotiate parameters.  It implements the Message interface.
//
// This message has no payload.
type MsgVerAck struct{}

// Decode decodes r using the wire protocol encoding into the receiver.
func (msg *MsgVerAck) Decode(r io.Reader, pver uint32) error {
	return nil
}

// Encode encodes the receiver to w using the wire protocol encoding.
func (msg *MsgVerAck) Encode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgVerAck) Command() string {
	return CmdVerAck
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgVerAck) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgVerAck returns a new verack message that conforms to the Message
// interface.
func NewMsgVerAck() *MsgVerAck {
	return &MsgVerAck{}
}
