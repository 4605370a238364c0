// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// MaxGetDataHashes is the maximum number of known hashes that can be listed
// in a single getdata message.
const MaxGetDataHashes = 500000

// MsgGetData implements the Message interface and represents a data request
// sent right after a connection is established.  It lists the hashes of all
// payloads and protected entries the requester already has so the remote peer
// only responds with the data it is missing.
type MsgGetData struct {
	Nonce       uint64
	KnownHashes []chainhash.Hash
}

// AddHash adds a known hash to the message.
func (msg *MsgGetData) AddHash(hash *chainhash.Hash) error {
	if len(msg.KnownHashes)+1 > MaxGetDataHashes {
		return messageError("MsgGetData.AddHash", ErrTooManyHashes,
			"too many known hashes for message")
	}
	msg.KnownHashes = append(msg.KnownHashes, *hash)
	return nil
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgGetData) Decode(r io.Reader, pver uint32) error {
	const op = "MsgGetData.Decode"
	if err := readElement(r, &msg.Nonce); err != nil {
		return err
	}
	count, err := readCount(r, pver, MaxGetDataHashes, op, ErrTooManyHashes,
		"known hashes")
	if err != nil {
		return err
	}
	msg.KnownHashes = make([]chainhash.Hash, count)
	for i := range msg.KnownHashes {
		if err := readElement(r, &msg.KnownHashes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgGetData) Encode(w io.Writer, pver uint32) error {
	if len(msg.KnownHashes) > MaxGetDataHashes {
		return messageError("MsgGetData.Encode", ErrTooManyHashes,
			"too many known hashes for message")
	}
	if err := writeElement(w, msg.Nonce); err != nil {
		return err
	}
	if err := WriteVarInt(w, pver, uint64(len(msg.KnownHashes))); err != nil {
		return err
	}
	for i := range msg.KnownHashes {
		if err := writeElement(w, &msg.KnownHashes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgGetData) Command() string {
	return CmdGetData
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgGetData) MaxPayloadLength(pver uint32) uint32 {
	return 8 + MaxVarIntPayload + MaxGetDataHashes*chainhash.HashSize
}

// NewMsgGetData returns a new getdata message that conforms to the Message
// interface.
func NewMsgGetData(nonce uint64) *MsgGetData {
	return &MsgGetData{Nonce: nonce}
}
