// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import (
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// seqHash returns a distinct hash for i.
func seqHash(i int) chainhash.Hash {
	var hash chainhash.Hash
	hash[0] = byte(i)
	hash[1] = byte(i >> 8)
	return hash
}

// TestSequenceMapPut ensures the map purges the record accepted the longest
// time ago once it is full.
func TestSequenceMapPut(t *testing.T) {
	m := newSequenceMap(3)
	for i := 0; i < 3; i++ {
		hash := seqHash(i)
		rec := SequenceRecord{SequenceNumber: 1, AcceptedAt: testTime.Add(time.Duration(i))}
		if purged := m.put(&hash, rec); purged != nil {
			t.Fatalf("unexpected purge of %v", purged)
		}
	}

	// Lookups do not change the purge order.
	first := seqHash(0)
	if _, ok := m.get(&first); !ok {
		t.Fatal("missing record")
	}

	// Updating an existing record never purges.
	second := seqHash(1)
	rec := SequenceRecord{SequenceNumber: 2, AcceptedAt: testTime.Add(10)}
	if purged := m.put(&second, rec); purged != nil {
		t.Fatalf("unexpected purge of %v on update", purged)
	}

	hash := seqHash(3)
	purged := m.put(&hash, SequenceRecord{SequenceNumber: 1, AcceptedAt: testTime.Add(11)})
	if purged == nil || *purged != first {
		t.Fatalf("unexpected purged hash: got %v, want %v", purged, first)
	}
	if m.len() != 3 {
		t.Fatalf("unexpected length: got %d, want 3", m.len())
	}

	// The updated record is now the newest, so the third one goes next.
	hash = seqHash(4)
	purged = m.put(&hash, SequenceRecord{SequenceNumber: 1, AcceptedAt: testTime.Add(12)})
	if want := seqHash(2); purged == nil || *purged != want {
		t.Fatalf("unexpected purged hash: got %v, want %v", purged, want)
	}
}

// TestSequenceMapPurge ensures only old records that are not kept are
// purged.
func TestSequenceMapPurge(t *testing.T) {
	m := newSequenceMap(10)
	for i := 0; i < 5; i++ {
		hash := seqHash(i)
		m.put(&hash, SequenceRecord{
			SequenceNumber: 1,
			AcceptedAt:     testTime.Add(time.Duration(i) * time.Hour),
		})
	}
	live := seqHash(1)
	purged := m.purge(testTime.Add(3*time.Hour), func(hash *chainhash.Hash) bool {
		return *hash == live
	})
	if len(purged) != 2 || purged[0] != seqHash(0) || purged[1] != seqHash(2) {
		t.Fatalf("unexpected purged hashes: %v", purged)
	}
	if m.len() != 3 {
		t.Fatalf("unexpected length: got %d, want 3", m.len())
	}
}

// TestSequenceMapLoad ensures persisted records beyond the limit are dropped
// oldest first.
func TestSequenceMapLoad(t *testing.T) {
	records := make(map[chainhash.Hash]SequenceRecord)
	for i := 0; i < 5; i++ {
		records[seqHash(i)] = SequenceRecord{
			SequenceNumber: uint32(i),
			AcceptedAt:     testTime.Add(time.Duration(5-i) * time.Minute),
		}
	}
	m := newSequenceMap(3)
	dropped := m.load(records)
	if len(dropped) != 2 || dropped[0] != seqHash(4) || dropped[1] != seqHash(3) {
		t.Fatalf("unexpected dropped hashes: %v", dropped)
	}
	for i := 0; i < 3; i++ {
		hash := seqHash(i)
		if rec, ok := m.get(&hash); !ok || rec.SequenceNumber != uint32(i) {
			t.Fatalf("record %d not loaded", i)
		}
	}

	// The oldest loaded record is purged first.
	hash := seqHash(9)
	purged := m.put(&hash, SequenceRecord{AcceptedAt: testTime.Add(time.Hour)})
	if want := seqHash(2); purged == nil || *purged != want {
		t.Fatalf("unexpected purged hash: got %v, want %v", purged, want)
	}
}
