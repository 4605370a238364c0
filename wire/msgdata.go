// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

const (
	// MaxDataEntries is the maximum number of protected entries in a
	// single data response.
	MaxDataEntries = 10000

	// MaxDataPayloads is the maximum number of persistable payloads in a
	// single data response.
	MaxDataPayloads = 100000

	// maxPrealloc bounds the number of elements allocated up front while
	// decoding lists so a small malicious message can't force a large
	// allocation.
	maxPrealloc = 1024
)

// MsgData implements the Message interface and represents the response to a
// getdata message (MsgGetData).  It carries the protected entries and
// persistable payloads the requester did not list as known.  Truncated is set
// when the responder had more data than fits in a single message.
type MsgData struct {
	Nonce     uint64
	Entries   []*ProtectedEntry
	Payloads  []*PersistablePayload
	Truncated bool
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgData) Decode(r io.Reader, pver uint32) error {
	const op = "MsgData.Decode"
	if err := readElement(r, &msg.Nonce); err != nil {
		return err
	}

	count, err := readCount(r, pver, MaxDataEntries, op, ErrTooManyEntries,
		"protected entries")
	if err != nil {
		return err
	}
	msg.Entries = make([]*ProtectedEntry, 0, min(count, maxPrealloc))
	for i := uint64(0); i < count; i++ {
		e := new(ProtectedEntry)
		if err := e.decode(r, pver); err != nil {
			return err
		}
		msg.Entries = append(msg.Entries, e)
	}

	count, err = readCount(r, pver, MaxDataPayloads, op, ErrTooManyEntries,
		"persistable payloads")
	if err != nil {
		return err
	}
	msg.Payloads = make([]*PersistablePayload, 0, min(count, maxPrealloc))
	for i := uint64(0); i < count; i++ {
		p := new(PersistablePayload)
		if err := p.decode(r, pver); err != nil {
			return err
		}
		msg.Payloads = append(msg.Payloads, p)
	}

	return readElement(r, &msg.Truncated)
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgData) Encode(w io.Writer, pver uint32) error {
	const op = "MsgData.Encode"
	if len(msg.Entries) > MaxDataEntries || len(msg.Payloads) > MaxDataPayloads {
		return messageError(op, ErrTooManyEntries, "too many items for message")
	}
	if err := writeElement(w, msg.Nonce); err != nil {
		return err
	}
	if err := WriteVarInt(w, pver, uint64(len(msg.Entries))); err != nil {
		return err
	}
	for _, e := range msg.Entries {
		if err := e.encode(w, pver); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, pver, uint64(len(msg.Payloads))); err != nil {
		return err
	}
	for _, p := range msg.Payloads {
		if err := p.encode(w, pver); err != nil {
			return err
		}
	}
	return writeElement(w, msg.Truncated)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgData) Command() string {
	return CmdData
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgData) MaxPayloadLength(pver uint32) uint32 {
	return MaxMessagePayload
}

// SerializeSize returns the number of bytes the encoded message occupies.
func (msg *MsgData) SerializeSize() int {
	n := 8 + VarIntSerializeSize(uint64(len(msg.Entries))) +
		VarIntSerializeSize(uint64(len(msg.Payloads))) + 1
	for _, e := range msg.Entries {
		n += e.SerializeSize()
	}
	for _, p := range msg.Payloads {
		n += p.SerializeSize()
	}
	return n
}

// NewMsgData returns a new data message that responds to the getdata message
// with the passed nonce.
func NewMsgData(nonce uint64) *MsgData {
	return &MsgData{Nonce: nonce}
}
