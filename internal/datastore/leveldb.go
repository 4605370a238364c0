// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import (
	"fmt"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/tradenet/wire"
	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes of the records kept in the database.  Each is followed by the
// hash the record belongs to.
const (
	keyPrefixPayload  = "p"
	keyPrefixEntry    = "e"
	keyPrefixSequence = "s"
)

// payloadRecord is the database encoding of a persistable payload.
type payloadRecord struct {
	Type uint16 `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

// entryRecord is the database encoding of a protected entry.  The entry and
// payload owner keys are always equal for stored entries.
type entryRecord struct {
	Type           uint16 `cbor:"1,keyasint"`
	Owner          []byte `cbor:"2,keyasint"`
	TTL            uint32 `cbor:"3,keyasint"`
	Data           []byte `cbor:"4,keyasint"`
	SequenceNumber uint32 `cbor:"5,keyasint"`
	Signature      []byte `cbor:"6,keyasint"`
	CreationTime   int64  `cbor:"7,keyasint"`
}

// sequenceRecord is the database encoding of a SequenceRecord.
type sequenceRecord struct {
	SequenceNumber uint32 `cbor:"1,keyasint"`
	AcceptedAt     int64  `cbor:"2,keyasint"`
}

func makeKey(prefix string, hash *chainhash.Hash) []byte {
	key := make([]byte, 0, len(prefix)+chainhash.HashSize)
	key = append(key, prefix...)
	return append(key, hash[:]...)
}

func hashFromKey(prefix string, key []byte) (chainhash.Hash, error) {
	var hash chainhash.Hash
	if len(key) != len(prefix)+chainhash.HashSize {
		return hash, fmt.Errorf("invalid key length: %d", len(key))
	}
	copy(hash[:], key[len(prefix):])
	return hash, nil
}

// LevelDBStore is a Store backed by a goleveldb database.  Values are cbor
// encoded records.
type LevelDBStore struct {
	path string
	db   *leveldb.DB
}

// Ensure LevelDBStore implements the Store interface.
var _ Store = (*LevelDBStore)(nil)

// OpenLevelDBStore opens or creates the database at the passed path.  A
// corrupted database is recovered.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	opts := &opt.Options{
		Compression: opt.NoCompression,
	}
	db, err := leveldb.OpenFile(path, opts)
	if ldberrors.IsCorrupted(err) {
		log.Warnf("Recovering corrupted database at %s", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		str := fmt.Sprintf("unable to open database %s: %v", path, err)
		return nil, makeError(ErrDatabase, str)
	}
	log.Infof("Opened data store database at %s", path)
	return &LevelDBStore{path: path, db: db}, nil
}

// Write applies the batch atomically.
func (s *LevelDBStore) Write(b *Batch) error {
	var lb leveldb.Batch
	for i := range b.ops {
		op := &b.ops[i]
		switch op.kind {
		case opPutPayload:
			raw, err := cbor.Marshal(payloadRecord{
				Type: uint16(op.payload.Type),
				Data: op.payload.Data,
			})
			if err != nil {
				return err
			}
			lb.Put(makeKey(keyPrefixPayload, &op.hash), raw)

		case opPutEntry:
			e := op.entry
			raw, err := cbor.Marshal(entryRecord{
				Type:           uint16(e.Payload.Type),
				Owner:          e.OwnerPubKey,
				TTL:            e.Payload.TTL,
				Data:           e.Payload.Data,
				SequenceNumber: e.SequenceNumber,
				Signature:      e.Signature,
				CreationTime:   e.CreationTime.Unix(),
			})
			if err != nil {
				return err
			}
			lb.Put(makeKey(keyPrefixEntry, &op.hash), raw)

		case opDeleteEntry:
			lb.Delete(makeKey(keyPrefixEntry, &op.hash))

		case opPutSequence:
			raw, err := cbor.Marshal(sequenceRecord{
				SequenceNumber: op.seq.SequenceNumber,
				AcceptedAt:     op.seq.AcceptedAt.UnixNano(),
			})
			if err != nil {
				return err
			}
			lb.Put(makeKey(keyPrefixSequence, &op.hash), raw)

		case opDeleteSequence:
			lb.Delete(makeKey(keyPrefixSequence, &op.hash))
		}
	}
	if err := s.db.Write(&lb, nil); err != nil {
		return makeError(ErrDatabase, err.Error())
	}
	return nil
}

// forEach invokes fn for every record with the passed prefix.
func (s *LevelDBStore) forEach(prefix string, fn func(hash *chainhash.Hash, raw []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		hash, err := hashFromKey(prefix, iter.Key())
		if err != nil {
			return err
		}
		if err := fn(&hash, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Load returns all persisted data.  Records which do not hash to their key
// are skipped.
func (s *LevelDBStore) Load() (*Snapshot, error) {
	snap := &Snapshot{
		Payloads:  make(map[chainhash.Hash]*wire.PersistablePayload),
		Entries:   make(map[chainhash.Hash]*wire.ProtectedEntry),
		Sequences: make(map[chainhash.Hash]SequenceRecord),
	}

	err := s.forEach(keyPrefixPayload, func(hash *chainhash.Hash, raw []byte) error {
		var rec payloadRecord
		if err := cbor.Unmarshal(raw, &rec); err != nil {
			return err
		}
		p := &wire.PersistablePayload{
			Type: wire.PayloadType(rec.Type),
			Data: rec.Data,
		}
		if p.Hash() != *hash {
			log.Errorf("Skipping corrupted payload record %v", hash)
			return nil
		}
		snap.Payloads[*hash] = p
		return nil
	})
	if err != nil {
		return nil, makeError(ErrDatabase, err.Error())
	}

	err = s.forEach(keyPrefixEntry, func(hash *chainhash.Hash, raw []byte) error {
		var rec entryRecord
		if err := cbor.Unmarshal(raw, &rec); err != nil {
			return err
		}
		e := &wire.ProtectedEntry{
			Payload: wire.StoragePayload{
				Type:        wire.PayloadType(rec.Type),
				OwnerPubKey: rec.Owner,
				TTL:         rec.TTL,
				Data:        rec.Data,
			},
			OwnerPubKey:    rec.Owner,
			SequenceNumber: rec.SequenceNumber,
			Signature:      rec.Signature,
			CreationTime:   time.Unix(rec.CreationTime, 0),
		}
		if e.PayloadHash() != *hash {
			log.Errorf("Skipping corrupted entry record %v", hash)
			return nil
		}
		snap.Entries[*hash] = e
		return nil
	})
	if err != nil {
		return nil, makeError(ErrDatabase, err.Error())
	}

	err = s.forEach(keyPrefixSequence, func(hash *chainhash.Hash, raw []byte) error {
		var rec sequenceRecord
		if err := cbor.Unmarshal(raw, &rec); err != nil {
			return err
		}
		snap.Sequences[*hash] = SequenceRecord{
			SequenceNumber: rec.SequenceNumber,
			AcceptedAt:     time.Unix(0, rec.AcceptedAt),
		}
		return nil
	})
	if err != nil {
		return nil, makeError(ErrDatabase, err.Error())
	}

	return snap, nil
}

// Close closes the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
