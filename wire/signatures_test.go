// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// TestSignEntry ensures owner signatures verify only for the operation, key
// and fields they were created over.
func TestSignEntry(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	other, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}

	e := testEntry()
	if err := SignEntry(e, SigOpStore, priv); err != nil {
		t.Fatalf("SignEntry: %v", err)
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate: signed entry is malformed: %v", err)
	}
	if !VerifyEntry(e, SigOpStore) {
		t.Fatal("store signature does not verify")
	}
	if VerifyEntry(e, SigOpRemove) {
		t.Fatal("store signature verifies as a remove signature")
	}

	bumped := *e
	bumped.SequenceNumber++
	if VerifyEntry(&bumped, SigOpStore) {
		t.Fatal("signature verifies after changing the sequence number")
	}

	extended := *e
	extended.CreationTime = e.CreationTime.Add(time.Hour)
	if VerifyEntry(&extended, SigOpStore) {
		t.Fatal("signature verifies after changing the creation time")
	}

	stolen := *e
	stolen.OwnerPubKey = other.PubKey().SerializeCompressed()
	if VerifyEntry(&stolen, SigOpStore) {
		t.Fatal("signature verifies for a different owner key")
	}

	if err := SignEntry(e, SigOpRemove, priv); err != nil {
		t.Fatalf("SignEntry: %v", err)
	}
	if !VerifyEntry(e, SigOpRemove) || VerifyEntry(e, SigOpStore) {
		t.Fatal("remove signature verifies for the wrong operation")
	}
}

// TestSignRefresh ensures a signed refresh applied to a stored entry yields an
// entry whose store signature verifies.
func TestSignRefresh(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	e := testEntry()
	if err := SignEntry(e, SigOpStore, priv); err != nil {
		t.Fatalf("SignEntry: %v", err)
	}

	refresh := &MsgRefreshTTL{
		PayloadHash:    e.PayloadHash(),
		SequenceNumber: e.SequenceNumber + 1,
		CreationTime:   e.CreationTime.Add(time.Minute),
	}
	if err := SignRefresh(refresh, priv); err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	refreshed := *e
	refreshed.SequenceNumber = refresh.SequenceNumber
	refreshed.CreationTime = refresh.CreationTime
	refreshed.Signature = refresh.Signature
	if !VerifyEntry(&refreshed, SigOpStore) {
		t.Fatal("refreshed entry does not verify")
	}
}

// TestVerifySignatureMalformed ensures malformed keys and signatures never
// verify.
func TestVerifySignatureMalformed(t *testing.T) {
	sigHash := make([]byte, 32)
	if VerifySignature([]byte{0x02}, make([]byte, SignatureLen), sigHash) {
		t.Fatal("malformed public key verified")
	}
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	pub := priv.PubKey().SerializeCompressed()
	if VerifySignature(pub, []byte{0x01}, sigHash) {
		t.Fatal("malformed signature verified")
	}
}
