// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the tradenet overlay wire protocol.

At a high level, this package provides support for marshalling and unmarshalling
supported protocol messages to and from the wire.  It also defines the data
items that are gossiped across the overlay: persistable payloads, which are
immutable and content addressed, and protected entries, which wrap an owner
mutable storage payload together with the owner signature, a sequence number and
a creation time.

# Message Framing

Every message is preceded by a 24 byte header:

	network magic   4 bytes
	command        12 bytes, zero padded
	payload length  4 bytes
	checksum        4 bytes, first bytes of the BLAKE-256 payload hash

The network magic is derived from the NetworkID so nodes on different overlay
networks never accept each other's messages.  ReadMessage rejects messages for
the wrong network, with a bad checksum, an unknown or malformed command, or a
declared length above the per message maximum before the payload is read.

# Messages

The handshake consists of a version message (MsgVersion) followed by a verack
(MsgVerAck) from each side.  After the handshake an initial data request
(MsgGetData) lists every hash the requester already holds and is answered with a
data response (MsgData).  Updates are gossiped with MsgAddData, MsgRemoveData,
MsgRefreshTTL and MsgAddPayload.  Peer exchange uses MsgGetPeers and MsgPeers,
keep-alive uses MsgPing and MsgPong, and MsgClose tells the remote peer why the
connection is being closed.

# Owner Signatures

Owners sign protected entries with Schnorr signatures over secp256k1.  The
signed hash commits to the operation (SigOpStore or SigOpRemove), the payload
hash, the sequence number and the creation time.  See SignEntry, VerifyEntry
and SignRefresh.

# Errors

Errors returned by this package are either the raw errors provided by underlying
calls to read/write from streams such as io.EOF, io.ErrUnexpectedEOF, and
io.ErrShortWrite, or of type wire.MessageError.  This allows the caller to
differentiate between general IO errors and malformed messages through type
assertions.  The specific kind of malformed message can be checked with
errors.Is against the ErrorKind constants.
*/
package wire
