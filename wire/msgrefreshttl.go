// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// MsgRefreshTTL implements the Message interface and represents a request by
// the owner of a protected entry to extend its lifetime without sending the
// payload again.  The stored entry takes the new sequence number, creation
// time and signature, which is a store signature (SigOpStore) over the same
// fields, so the refreshed entry remains verifiable by peers that receive it
// later in a data sync.
//
// This message was not added until protocol version RefreshTTLVersion.
type MsgRefreshTTL struct {
	PayloadHash    chainhash.Hash
	SequenceNumber uint32
	CreationTime   time.Time
	Signature      []byte
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgRefreshTTL) Decode(r io.Reader, pver uint32) error {
	if pver < RefreshTTLVersion {
		str := fmt.Sprintf("%s message invalid for protocol version %d",
			msg.Command(), pver)
		return messageError("MsgRefreshTTL.Decode", ErrUnknownCmd, str)
	}
	err := readElements(r, &msg.PayloadHash, &msg.SequenceNumber,
		&msg.CreationTime)
	if err != nil {
		return err
	}
	msg.Signature, err = ReadVarBytes(r, pver, SignatureLen, "Signature")
	return err
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgRefreshTTL) Encode(w io.Writer, pver uint32) error {
	if pver < RefreshTTLVersion {
		str := fmt.Sprintf("%s message invalid for protocol version %d",
			msg.Command(), pver)
		return messageError("MsgRefreshTTL.Encode", ErrUnknownCmd, str)
	}
	err := writeElements(w, &msg.PayloadHash, msg.SequenceNumber,
		msg.CreationTime)
	if err != nil {
		return err
	}
	return WriteVarBytes(w, pver, msg.Signature)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgRefreshTTL) Command() string {
	return CmdRefreshTTL
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgRefreshTTL) MaxPayloadLength(pver uint32) uint32 {
	return chainhash.HashSize + 4 + 8 + MaxVarIntPayload + SignatureLen
}
