// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import (
	"sort"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
)

// DefaultMaxSequenceNumbers is the default number of sequence numbers
// remembered for replay protection.
const DefaultMaxSequenceNumbers = 1000

// SequenceRecord is the highest sequence number accepted for a payload and
// the time it was accepted.
type SequenceRecord struct {
	SequenceNumber uint32
	AcceptedAt     time.Time
}

// sequenceMap remembers the sequence numbers accepted per payload hash.  It is
// bounded and purges the record accepted the longest time ago when full.
// Lookups use Peek so the recency order of the underlying map always equals
// the acceptance order.
type sequenceMap struct {
	limit   uint32
	records *lru.Map[chainhash.Hash, SequenceRecord]
}

func newSequenceMap(limit uint32) *sequenceMap {
	return &sequenceMap{
		limit:   limit,
		records: lru.NewMap[chainhash.Hash, SequenceRecord](limit),
	}
}

// get returns the record for the hash.
func (m *sequenceMap) get(hash *chainhash.Hash) (SequenceRecord, bool) {
	return m.records.Peek(*hash)
}

// put records an accepted sequence number.  It returns the hash whose record
// was purged to make room, if any.
func (m *sequenceMap) put(hash *chainhash.Hash, rec SequenceRecord) *chainhash.Hash {
	var purged *chainhash.Hash
	if !m.records.Exists(*hash) && m.records.Len() >= m.limit {
		if keys := m.records.Keys(); len(keys) > 0 {
			oldest := keys[0]
			m.records.Delete(oldest)
			purged = &oldest
		}
	}
	m.records.Put(*hash, rec)
	return purged
}

// purge removes the records accepted before the passed time for which keep
// returns false.  It returns the removed hashes.
func (m *sequenceMap) purge(acceptedBefore time.Time, keep func(hash *chainhash.Hash) bool) []chainhash.Hash {
	var purged []chainhash.Hash
	for _, hash := range m.records.Keys() {
		rec, ok := m.records.Peek(hash)
		if !ok {
			continue
		}
		// Keys are ordered by acceptance time.
		if !rec.AcceptedAt.Before(acceptedBefore) {
			break
		}
		if keep(&hash) {
			continue
		}
		m.records.Delete(hash)
		purged = append(purged, hash)
	}
	return purged
}

// len returns the number of records.
func (m *sequenceMap) len() int {
	return int(m.records.Len())
}

// load adds persisted records in acceptance order.  When there are more
// records than the limit the oldest are left out and their hashes returned.
func (m *sequenceMap) load(records map[chainhash.Hash]SequenceRecord) []chainhash.Hash {
	hashes := make([]chainhash.Hash, 0, len(records))
	for hash := range records {
		hashes = append(hashes, hash)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return records[hashes[i]].AcceptedAt.Before(records[hashes[j]].AcceptedAt)
	})

	var dropped []chainhash.Hash
	if excess := len(hashes) - int(m.limit); excess > 0 {
		dropped = hashes[:excess]
		hashes = hashes[excess:]
	}
	for i := range hashes {
		m.records.Put(hashes[i], records[hashes[i]])
	}
	return dropped
}
