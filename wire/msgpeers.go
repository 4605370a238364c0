// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MaxReportedPeers is the maximum number of peers that can be reported in a
// single getpeers or peers message.
const MaxReportedPeers = 1000

// readReportedPeers decodes a count prefixed list of reported peers.
func readReportedPeers(r io.Reader, pver uint32, op string) ([]ReportedPeer, error) {
	count, err := readCount(r, pver, MaxReportedPeers, op, ErrTooManyPeers,
		"reported peers")
	if err != nil {
		return nil, err
	}
	peers := make([]ReportedPeer, count)
	for i := range peers {
		if err := readReportedPeer(r, pver, &peers[i]); err != nil {
			return nil, err
		}
	}
	return peers, nil
}

// writeReportedPeers encodes a count prefixed list of reported peers.
func writeReportedPeers(w io.Writer, pver uint32, op string, peers []ReportedPeer) error {
	if len(peers) > MaxReportedPeers {
		str := fmt.Sprintf("too many reported peers for message [count %d, "+
			"max %d]", len(peers), MaxReportedPeers)
		return messageError(op, ErrTooManyPeers, str)
	}
	if err := WriteVarInt(w, pver, uint64(len(peers))); err != nil {
		return err
	}
	for i := range peers {
		if err := writeReportedPeer(w, pver, &peers[i]); err != nil {
			return err
		}
	}
	return nil
}

// MsgGetPeers implements the Message interface and represents a peer exchange
// request.  The requester includes the peers it knows about so the exchange
// is symmetric.
type MsgGetPeers struct {
	Nonce    uint64
	Reported []ReportedPeer
}

// AddPeer adds a reported peer to the message.
func (msg *MsgGetPeers) AddPeer(rp ReportedPeer) error {
	if len(msg.Reported)+1 > MaxReportedPeers {
		str := fmt.Sprintf("too many reported peers in message [max %v]",
			MaxReportedPeers)
		return messageError("MsgGetPeers.AddPeer", ErrTooManyPeers, str)
	}
	msg.Reported = append(msg.Reported, rp)
	return nil
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgGetPeers) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.Nonce); err != nil {
		return err
	}
	var err error
	msg.Reported, err = readReportedPeers(r, pver, "MsgGetPeers.Decode")
	return err
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgGetPeers) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, msg.Nonce); err != nil {
		return err
	}
	return writeReportedPeers(w, pver, "MsgGetPeers.Encode", msg.Reported)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgGetPeers) Command() string {
	return CmdGetPeers
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgGetPeers) MaxPayloadLength(pver uint32) uint32 {
	return 8 + MaxVarIntPayload + MaxReportedPeers*maxReportedPeerPayload
}

// NewMsgGetPeers returns a new getpeers message that conforms to the Message
// interface.
func NewMsgGetPeers(nonce uint64) *MsgGetPeers {
	return &MsgGetPeers{Nonce: nonce}
}

// MsgPeers implements the Message interface and represents the response to a
// getpeers message.
type MsgPeers struct {
	Nonce    uint64
	Reported []ReportedPeer
}

// AddPeer adds a reported peer to the message.
func (msg *MsgPeers) AddPeer(rp ReportedPeer) error {
	if len(msg.Reported)+1 > MaxReportedPeers {
		str := fmt.Sprintf("too many reported peers in message [max %v]",
			MaxReportedPeers)
		return messageError("MsgPeers.AddPeer", ErrTooManyPeers, str)
	}
	msg.Reported = append(msg.Reported, rp)
	return nil
}

// Decode decodes r using the wire protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgPeers) Decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.Nonce); err != nil {
		return err
	}
	var err error
	msg.Reported, err = readReportedPeers(r, pver, "MsgPeers.Decode")
	return err
}

// Encode encodes the receiver to w using the wire protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgPeers) Encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, msg.Nonce); err != nil {
		return err
	}
	return writeReportedPeers(w, pver, "MsgPeers.Encode", msg.Reported)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgPeers) Command() string {
	return CmdPeers
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgPeers) MaxPayloadLength(pver uint32) uint32 {
	return 8 + MaxVarIntPayload + MaxReportedPeers*maxReportedPeerPayload
}

// NewMsgPeers returns a new peers message responding to the getpeers message
// with the passed nonce.
func NewMsgPeers(nonce uint64) *MsgPeers {
	return &MsgPeers{Nonce: nonce}
}
