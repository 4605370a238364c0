// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

const (
	// PubKeyLen is the length of a serialized compressed secp256k1 owner
	// public key.
	PubKeyLen = 33

	// SignatureLen is the length of a serialized Schnorr signature.
	SignatureLen = 64

	// MaxPayloadDataSize is the maximum number of bytes of application data
	// carried by a single storage or persistable payload.
	MaxPayloadDataSize = 1 << 16

	// maxStoragePayloadSize is the largest possible encoding of a storage
	// payload.
	maxStoragePayloadSize = 2 + MaxVarIntPayload + PubKeyLen + 4 +
		MaxVarIntPayload + MaxPayloadDataSize

	// maxPersistablePayloadSize is the largest possible encoding of a
	// persistable payload.
	maxPersistablePayloadSize = 2 + MaxVarIntPayload + MaxPayloadDataSize

	// maxProtectedEntrySize is the largest possible encoding of a protected
	// entry.
	maxProtectedEntrySize = maxStoragePayloadSize + MaxVarIntPayload +
		PubKeyLen + 4 + MaxVarIntPayload + SignatureLen + 8
)

// StoragePayload is owner mutable application data, such as an offer, that
// is wrapped by a ProtectedEntry.  The owner may replace it with a newer
// version, refresh its lifetime, or remove it.
type StoragePayload struct {
	Type        PayloadType
	OwnerPubKey []byte
	TTL         uint32 // seconds
	Data        []byte
}

// TTLDuration returns the lifetime of the payload.
func (p *StoragePayload) TTLDuration() time.Duration {
	return time.Duration(p.TTL) * time.Second
}

// Hash returns the BLAKE-256 hash of the serialized payload.  It identifies
// the payload across all of its versions.
func (p *StoragePayload) Hash() chainhash.Hash {
	var buf bytes.Buffer
	buf.Grow(p.SerializeSize())
	// Writes to a bytes.Buffer never fail and the payload fields are length
	// checked by Validate before they reach the network.
	_ = p.encode(&buf, ProtocolVersion)
	return chainhash.HashH(buf.Bytes())
}

// SerializeSize returns the number of bytes the encoded payload occupies.
func (p *StoragePayload) SerializeSize() int {
	return 2 + VarIntSerializeSize(uint64(len(p.OwnerPubKey))) +
		len(p.OwnerPubKey) + 4 + VarIntSerializeSize(uint64(len(p.Data))) +
		len(p.Data)
}

// Validate checks the payload fields are well formed.
func (p *StoragePayload) Validate() error {
	const op = "StoragePayload.Validate"
	if len(p.OwnerPubKey) != PubKeyLen {
		str := fmt.Sprintf("owner public key is %d bytes, want %d",
			len(p.OwnerPubKey), PubKeyLen)
		return messageError(op, ErrInvalidPubKey, str)
	}
	if len(p.Data) > MaxPayloadDataSize {
		str := fmt.Sprintf("payload data is %d bytes, max %d", len(p.Data),
			MaxPayloadDataSize)
		return messageError(op, ErrPayloadTooLarge, str)
	}
	return nil
}

func (p *StoragePayload) decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &p.Type); err != nil {
		return err
	}
	var err error
	p.OwnerPubKey, err = ReadVarBytes(r, pver, PubKeyLen, "OwnerPubKey")
	if err != nil {
		return err
	}
	if err := readElement(r, &p.TTL); err != nil {
		return err
	}
	p.Data, err = ReadVarBytes(r, pver, MaxPayloadDataSize, "Data")
	return err
}

func (p *StoragePayload) encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, p.Type); err != nil {
		return err
	}
	if err := WriteVarBytes(w, pver, p.OwnerPubKey); err != nil {
		return err
	}
	if err := writeElement(w, p.TTL); err != nil {
		return err
	}
	return WriteVarBytes(w, pver, p.Data)
}

// PersistablePayload is immutable, content addressed application data, such
// as a trade statistic.  It has no owner and is never removed.
type PersistablePayload struct {
	Type PayloadType
	Data []byte
}

// Hash returns the BLAKE-256 hash of the serialized payload which is its
// identity.
func (p *PersistablePayload) Hash() chainhash.Hash {
	var buf bytes.Buffer
	buf.Grow(2 + MaxVarIntPayload + len(p.Data))
	_ = p.encode(&buf, ProtocolVersion)
	return chainhash.HashH(buf.Bytes())
}

// Validate checks the payload fields are well formed.
func (p *PersistablePayload) Validate() error {
	if len(p.Data) > MaxPayloadDataSize {
		str := fmt.Sprintf("payload data is %d bytes, max %d", len(p.Data),
			MaxPayloadDataSize)
		return messageError("PersistablePayload.Validate", ErrPayloadTooLarge, str)
	}
	return nil
}

func (p *PersistablePayload) decode(r io.Reader, pver uint32) error {
	if err := readElement(r, &p.Type); err != nil {
		return err
	}
	var err error
	p.Data, err = ReadVarBytes(r, pver, MaxPayloadDataSize, "Data")
	return err
}

func (p *PersistablePayload) encode(w io.Writer, pver uint32) error {
	if err := writeElement(w, p.Type); err != nil {
		return err
	}
	return WriteVarBytes(w, pver, p.Data)
}

// ProtectedEntry wraps a StoragePayload together with the owner signature
// over the payload hash, a sequence number and the creation time.  The
// sequence number orders successive versions of the same payload and must
// strictly increase with every update, refresh or removal.
type ProtectedEntry struct {
	Payload        StoragePayload
	OwnerPubKey    []byte
	SequenceNumber uint32
	Signature      []byte
	CreationTime   time.Time
}

// PayloadHash returns the hash of the wrapped payload.
func (e *ProtectedEntry) PayloadHash() chainhash.Hash {
	return e.Payload.Hash()
}

// ExpiresAt returns the time the entry expires unless it is refreshed.
func (e *ProtectedEntry) ExpiresAt() time.Time {
	return e.CreationTime.Add(e.Payload.TTLDuration())
}

// IsExpired returns whether the entry lifetime elapsed at the passed time.
func (e *ProtectedEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Validate checks the entry fields are well formed.  It does not check the
// signature.
func (e *ProtectedEntry) Validate() error {
	const op = "ProtectedEntry.Validate"
	if err := e.Payload.Validate(); err != nil {
		return err
	}
	if len(e.OwnerPubKey) != PubKeyLen {
		str := fmt.Sprintf("owner public key is %d bytes, want %d",
			len(e.OwnerPubKey), PubKeyLen)
		return messageError(op, ErrInvalidPubKey, str)
	}
	if len(e.Signature) != SignatureLen {
		str := fmt.Sprintf("signature is %d bytes, want %d",
			len(e.Signature), SignatureLen)
		return messageError(op, ErrInvalidSignatureLen, str)
	}
	return nil
}

func (e *ProtectedEntry) decode(r io.Reader, pver uint32) error {
	if err := e.Payload.decode(r, pver); err != nil {
		return err
	}
	var err error
	e.OwnerPubKey, err = ReadVarBytes(r, pver, PubKeyLen, "OwnerPubKey")
	if err != nil {
		return err
	}
	if err := readElement(r, &e.SequenceNumber); err != nil {
		return err
	}
	e.Signature, err = ReadVarBytes(r, pver, SignatureLen, "Signature")
	if err != nil {
		return err
	}
	return readElement(r, &e.CreationTime)
}

func (e *ProtectedEntry) encode(w io.Writer, pver uint32) error {
	if err := e.Payload.encode(w, pver); err != nil {
		return err
	}
	if err := WriteVarBytes(w, pver, e.OwnerPubKey); err != nil {
		return err
	}
	if err := writeElement(w, e.SequenceNumber); err != nil {
		return err
	}
	if err := WriteVarBytes(w, pver, e.Signature); err != nil {
		return err
	}
	return writeElement(w, e.CreationTime)
}

// Bytes returns the serialized entry.
func (e *ProtectedEntry) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.encode(&buf, ProtocolVersion); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes deserializes an entry previously serialized with Bytes.
func (e *ProtectedEntry) FromBytes(b []byte) error {
	return e.decode(bytes.NewReader(b), ProtocolVersion)
}

// Bytes returns the serialized payload.
func (p *PersistablePayload) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.encode(&buf, ProtocolVersion); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes deserializes a payload previously serialized with Bytes.
func (p *PersistablePayload) FromBytes(b []byte) error {
	return p.decode(bytes.NewReader(b), ProtocolVersion)
}

// SerializeSize returns the number of bytes the encoded payload occupies.
func (p *PersistablePayload) SerializeSize() int {
	return 2 + VarIntSerializeSize(uint64(len(p.Data))) + len(p.Data)
}

// SerializeSize returns the number of bytes the encoded entry occupies.
func (e *ProtectedEntry) SerializeSize() int {
	return e.Payload.SerializeSize() +
		VarIntSerializeSize(uint64(len(e.OwnerPubKey))) + len(e.OwnerPubKey) +
		4 + VarIntSerializeSize(uint64(len(e.Signature))) + len(e.Signature) + 8
}
