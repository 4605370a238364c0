// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import (
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/tradenet/wire"
)

// MemStore is a Store that keeps all data in memory.  It is used when no
// database is configured and by tests.
type MemStore struct {
	mtx       sync.Mutex
	payloads  map[chainhash.Hash]*wire.PersistablePayload
	entries   map[chainhash.Hash]*wire.ProtectedEntry
	sequences map[chainhash.Hash]SequenceRecord
	writes    int
}

// Ensure MemStore implements the Store interface.
var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		payloads:  make(map[chainhash.Hash]*wire.PersistablePayload),
		entries:   make(map[chainhash.Hash]*wire.ProtectedEntry),
		sequences: make(map[chainhash.Hash]SequenceRecord),
	}
}

// Write applies the batch.
func (s *MemStore) Write(b *Batch) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for i := range b.ops {
		op := &b.ops[i]
		switch op.kind {
		case opPutPayload:
			s.payloads[op.hash] = op.payload
		case opPutEntry:
			s.entries[op.hash] = op.entry
		case opDeleteEntry:
			delete(s.entries, op.hash)
		case opPutSequence:
			s.sequences[op.hash] = op.seq
		case opDeleteSequence:
			delete(s.sequences, op.hash)
		}
	}
	s.writes++
	return nil
}

// Load returns a copy of the stored data.
func (s *MemStore) Load() (*Snapshot, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	snap := &Snapshot{
		Payloads:  make(map[chainhash.Hash]*wire.PersistablePayload, len(s.payloads)),
		Entries:   make(map[chainhash.Hash]*wire.ProtectedEntry, len(s.entries)),
		Sequences: make(map[chainhash.Hash]SequenceRecord, len(s.sequences)),
	}
	for k, v := range s.payloads {
		snap.Payloads[k] = v
	}
	for k, v := range s.entries {
		snap.Entries[k] = v
	}
	for k, v := range s.sequences {
		snap.Sequences[k] = v
	}
	return snap, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}

// counts returns the number of stored payloads, entries and sequence
// records.
func (s *MemStore) counts() (int, int, int) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.payloads), len(s.entries), len(s.sequences)
}
