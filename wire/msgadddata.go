// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgAddData implements the Message interface and represents a gossiped add
// or update of a protected entry.  The entry signature must be a store
// signature (SigOpStore) by the payload owner.
type MsgAddData struct {
	Entry ProtectedEntry
}

// Decode decodes r using the wire protocol encoding into the receiver.
func (msg *MsgAddData) Decode(r io.Reader, pver uint32) error {
	return msg.Entry.decode(r, pver)
}

// Encode encodes the receiver to w using the wire protocol encoding.
func (msg *MsgAddData) Encode(w io.Writer, pver uint32) error {
	return msg.Entry.encode(w, pver)
}

// Command returns the protocol command string for the message.
func (msg *MsgAddData) Command() string {
	return CmdAddData
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgAddData) MaxPayloadLength(pver uint32) uint32 {
	return maxProtectedEntrySize
}

// NewMsgAddData returns a new adddata message for the passed entry.
func NewMsgAddData(e *ProtectedEntry) *MsgAddData {
	return &MsgAddData{Entry: *e}
}

// MsgRemoveData implements the Message interface and represents a gossiped
// removal of a protected entry.  The entry acts as a tombstone: it carries the
// payload being removed, a sequence number greater than the stored one and a
// remove signature (SigOpRemove) by the payload owner.
type MsgRemoveData struct {
	Entry ProtectedEntry
}

// Decode decodes r using the wire protocol encoding into the receiver.
func (msg *MsgRemoveData) Decode(r io.Reader, pver uint32) error {
	return msg.Entry.decode(r, pver)
}

// Encode encodes the receiver to w using the wire protocol encoding.
func (msg *MsgRemoveData) Encode(w io.Writer, pver uint32) error {
	return msg.Entry.encode(w, pver)
}

// Command returns the protocol command string for the message.
func (msg *MsgRemoveData) Command() string {
	return CmdRemoveData
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgRemoveData) MaxPayloadLength(pver uint32) uint32 {
	return maxProtectedEntrySize
}

// NewMsgRemoveData returns a new removedata message for the passed
// tombstone.
func NewMsgRemoveData(tombstone *ProtectedEntry) *MsgRemoveData {
	return &MsgRemoveData{Entry: *tombstone}
}

// MsgAddPayload implements the Message interface and represents a gossiped
// append-only persistable payload.
type MsgAddPayload struct {
	Payload PersistablePayload
}

// Decode decodes r using the wire protocol encoding into the receiver.
func (msg *MsgAddPayload) Decode(r io.Reader, pver uint32) error {
	return msg.Payload.decode(r, pver)
}

// Encode encodes the receiver to w using the wire protocol encoding.
func (msg *MsgAddPayload) Encode(w io.Writer, pver uint32) error {
	return msg.Payload.encode(w, pver)
}

// Command returns the protocol command string for the message.
func (msg *MsgAddPayload) Command() string {
	return CmdAddPayload
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgAddPayload) MaxPayloadLength(pver uint32) uint32 {
	return maxPersistablePayloadSize
}

// NewMsgAddPayload returns a new addpayload message for the passed payload.
func NewMsgAddPayload(p *PersistablePayload) *MsgAddPayload {
	return &MsgAddPayload{Payload: *p}
}
