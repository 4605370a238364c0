// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MaxCloseReasonLen is the maximum length of the reason in a close message.
const MaxCloseReasonLen = 256

// Close reasons sent to peers before a connection is shut down.
const (
	CloseReasonShutdown     = "shutdown"
	CloseReasonTooManyPeers = "too_many_connections"
	CloseReasonBanned       = "peer_banned"
	CloseReasonThrottled    = "too_many_messages"
	CloseReasonIdle         = "idle"
	CloseReasonRuleViolated = "rule_violation"
)

// MsgClose implements the Message interface and informs the remote peer that
// the connection is about to be closed and why.
type MsgClose struct {
	Reason string
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgClose) Decode(r io.Reader, pver uint32) error {
	var err error
	msg.Reason, err = ReadAsciiVarString(r, pver, MaxCloseReasonLen)
	return err
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgClose) Encode(w io.Writer, pver uint32) error {
	if len(msg.Reason) > MaxCloseReasonLen {
		return messageError("MsgClose.Encode", ErrVarStringTooLong,
			"close reason too long")
	}
	return WriteVarString(w, pver, msg.Reason)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgClose) Command() string {
	return CmdClose
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgClose) MaxPayloadLength(pver uint32) uint32 {
	return MaxVarIntPayload + MaxCloseReasonLen
}

// NewMsgClose returns a new close message with the passed reason.
func NewMsgClose(reason string) *MsgClose {
	return &MsgClose{Reason: reason}
}
