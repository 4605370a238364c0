// Copyright (c) 2023-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

const sigTag = "tradenet-entry-signature"

// SignatureOp separates the signature domains of the owner operations so a
// signature authorizing one operation can never be replayed as another.
type SignatureOp string

const (
	// SigOpStore authorizes adding or refreshing a payload.
	SigOpStore SignatureOp = "store"

	// SigOpRemove authorizes removing a payload.
	SigOpRemove SignatureOp = "remove"
)

// SignatureHash returns the hash an owner signs to authorize op on the payload
// identified by payloadHash at the given sequence number and creation time.
func SignatureHash(op SignatureOp, payloadHash *chainhash.Hash, seq uint32,
	creationTime int64) []byte {

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, sigTag+",%s,%x,%d,%d", op, payloadHash[:], seq,
		creationTime)
	h := blake256.Sum256(buf.Bytes())
	return h[:]
}

// SignEntry sets the owner public key of the entry and its payload to the
// public key of priv and signs the entry for the passed operation.
func SignEntry(e *ProtectedEntry, op SignatureOp, priv *secp256k1.PrivateKey) error {
	pub := priv.PubKey().SerializeCompressed()
	e.OwnerPubKey = pub
	e.Payload.OwnerPubKey = pub
	payloadHash := e.Payload.Hash()
	sigHash := SignatureHash(op, &payloadHash, e.SequenceNumber,
		e.CreationTime.Unix())
	sig, err := schnorr.Sign(priv, sigHash)
	if err != nil {
		return err
	}
	e.Signature = sig.Serialize()
	return nil
}

// VerifyEntry reports whether the entry carries a valid owner signature for
// the passed operation.
func VerifyEntry(e *ProtectedEntry, op SignatureOp) bool {
	payloadHash := e.Payload.Hash()
	sigHash := SignatureHash(op, &payloadHash, e.SequenceNumber,
		e.CreationTime.Unix())
	return VerifySignature(e.OwnerPubKey, e.Signature, sigHash)
}

// SignRefresh signs a refresh message for the payload identified by the
// message payload hash.
func SignRefresh(m *MsgRefreshTTL, priv *secp256k1.PrivateKey) error {
	sigHash := SignatureHash(SigOpStore, &m.PayloadHash, m.SequenceNumber,
		m.CreationTime.Unix())
	sig, err := schnorr.Sign(priv, sigHash)
	if err != nil {
		return err
	}
	m.Signature = sig.Serialize()
	return nil
}

// VerifySignature verifies a Schnorr signature by the serialized public key
// over sigHash.
func VerifySignature(pub, sig, sigHash []byte) bool {
	pkParsed, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return false
	}
	sigParsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return sigParsed.Verify(sigHash, pkParsed)
}
