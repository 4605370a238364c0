// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import (
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/tradenet/wire"
)

// opKind identifies a persistence operation.
type opKind uint8

const (
	opPutPayload opKind = iota
	opPutEntry
	opDeleteEntry
	opPutSequence
	opDeleteSequence
)

// op is a single persistence operation.
type op struct {
	kind    opKind
	hash    chainhash.Hash
	payload *wire.PersistablePayload
	entry   *wire.ProtectedEntry
	seq     SequenceRecord
}

// Batch is an ordered set of persistence operations which are applied
// atomically.
type Batch struct {
	ops []op
}

// PutPayload adds the storing of a persistable payload to the batch.
func (b *Batch) PutPayload(hash *chainhash.Hash, p *wire.PersistablePayload) {
	b.ops = append(b.ops, op{kind: opPutPayload, hash: *hash, payload: p})
}

// PutEntry adds the storing of a protected entry to the batch.
func (b *Batch) PutEntry(hash *chainhash.Hash, e *wire.ProtectedEntry) {
	b.ops = append(b.ops, op{kind: opPutEntry, hash: *hash, entry: e})
}

// DeleteEntry adds the removal of a protected entry to the batch.
func (b *Batch) DeleteEntry(hash *chainhash.Hash) {
	b.ops = append(b.ops, op{kind: opDeleteEntry, hash: *hash})
}

// PutSequence adds the storing of a sequence record to the batch.
func (b *Batch) PutSequence(hash *chainhash.Hash, rec SequenceRecord) {
	b.ops = append(b.ops, op{kind: opPutSequence, hash: *hash, seq: rec})
}

// DeleteSequence adds the removal of a sequence record to the batch.
func (b *Batch) DeleteSequence(hash *chainhash.Hash) {
	b.ops = append(b.ops, op{kind: opDeleteSequence, hash: *hash})
}

// Len returns the number of operations in the batch.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Snapshot is the persisted state loaded at startup.
type Snapshot struct {
	Payloads  map[chainhash.Hash]*wire.PersistablePayload
	Entries   map[chainhash.Hash]*wire.ProtectedEntry
	Sequences map[chainhash.Hash]SequenceRecord
}

// Store is the durable backend of the data store.  Implementations must apply
// each batch atomically and in the order Write is called.
type Store interface {
	// Write applies the batch.
	Write(b *Batch) error

	// Load returns all persisted data.
	Load() (*Snapshot, error)

	// Close releases the resources of the store.
	Close() error
}
