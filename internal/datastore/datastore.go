// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package datastore provides the authoritative store of the data gossiped on
// the overlay: append-only persistable payloads and owner signed protected
// entries.
//
// Every mutation of a protected entry carries a sequence number which must
// strictly increase for the payload, and the highest accepted sequence number
// is remembered independently of the entry itself so that removed entries can
// not be resurrected by replaying old versions.  Protected entries expire once
// their lifetime elapsed and are removed by a background sweep.
//
// Accepted changes are persisted through a Store, published to subscribers,
// and handed to a Broadcaster for propagation to the other peers.
package datastore

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
)

const (
	// DefaultSweepInterval is the default interval of the background sweep
	// that removes expired entries.
	DefaultSweepInterval = time.Minute

	// DefaultSequencePurgeAge is the default age after which the sequence
	// record of a payload which is no longer stored is purged by the sweep.
	DefaultSequencePurgeAge = 10 * 24 * time.Hour
)

// Broadcaster propagates accepted data to the connected peers.
type Broadcaster interface {
	// Broadcast sends msg to every connected peer except exclude.
	Broadcast(msg wire.Message, hash chainhash.Hash, exclude *peer.Peer,
		isDataOwner bool)
}

// Config houses the parameters of the data store.
type Config struct {
	// Store persists the data.  An in-memory store is used when it is nil.
	Store Store

	// Broadcaster propagates accepted data.  It may be nil.
	Broadcaster Broadcaster

	// MaxSequenceNumbers bounds the number of remembered sequence numbers.
	// Defaults to DefaultMaxSequenceNumbers.
	MaxSequenceNumbers int

	// SweepInterval is the interval of the expiry sweep.  Defaults to
	// DefaultSweepInterval.
	SweepInterval time.Duration

	// SequencePurgeAge is the age after which sequence records of payloads
	// which are no longer stored are purged.  Defaults to
	// DefaultSequencePurgeAge.
	SequencePurgeAge time.Duration

	// SubscriptionBuffer is the number of events buffered per subscriber.
	// Defaults to DefaultSubscriptionBuffer.
	SubscriptionBuffer int
}

// DataStore is the store of gossiped data.  All mutations are serialized so
// that the check and the application of one operation are atomic.
type DataStore struct {
	cfg   Config
	store Store

	mtx       sync.Mutex
	payloads  map[chainhash.Hash]*wire.PersistablePayload
	entries   map[chainhash.Hash]*wire.ProtectedEntry
	sequences *sequenceMap

	subs   subscribers
	writes writeQueue

	// now is replaced by tests.
	now func() time.Time
}

// New returns a data store which is loaded with the data persisted in the
// configured store.  Expired entries are dropped while loading.
func New(cfg *Config) (*DataStore, error) {
	return newDataStore(cfg, time.Now)
}

func newDataStore(cfg *Config, now func() time.Time) (*DataStore, error) {
	ds := &DataStore{
		cfg:      *cfg,
		store:    cfg.Store,
		payloads: make(map[chainhash.Hash]*wire.PersistablePayload),
		entries:  make(map[chainhash.Hash]*wire.ProtectedEntry),
		writes:   writeQueue{signal: make(chan struct{}, 1)},
		now:      now,
	}
	if ds.store == nil {
		ds.store = NewMemStore()
	}
	if ds.cfg.MaxSequenceNumbers <= 0 {
		ds.cfg.MaxSequenceNumbers = DefaultMaxSequenceNumbers
	}
	if ds.cfg.SweepInterval <= 0 {
		ds.cfg.SweepInterval = DefaultSweepInterval
	}
	if ds.cfg.SequencePurgeAge <= 0 {
		ds.cfg.SequencePurgeAge = DefaultSequencePurgeAge
	}
	if ds.cfg.SubscriptionBuffer <= 0 {
		ds.cfg.SubscriptionBuffer = DefaultSubscriptionBuffer
	}
	ds.sequences = newSequenceMap(uint32(ds.cfg.MaxSequenceNumbers))
	ds.subs = subscribers{
		subs:   make(map[uint64]*Subscription),
		buffer: ds.cfg.SubscriptionBuffer,
	}

	if err := ds.load(); err != nil {
		return nil, err
	}
	return ds, nil
}

// load populates the data store from the persisted snapshot.
func (ds *DataStore) load() error {
	snap, err := ds.store.Load()
	if err != nil {
		return err
	}

	now := ds.now()
	var batch Batch
	ds.payloads = snap.Payloads
	for hash, e := range snap.Entries {
		if e.IsExpired(now) {
			batch.DeleteEntry(&hash)
			continue
		}
		ds.entries[hash] = e
	}
	for _, hash := range ds.sequences.load(snap.Sequences) {
		batch.DeleteSequence(&hash)
	}
	if batch.Len() > 0 {
		if err := ds.store.Write(&batch); err != nil {
			return err
		}
	}

	log.Infof("Loaded %d persistable payloads, %d protected entries and %d "+
		"sequence numbers (%d stale records dropped)", len(ds.payloads),
		len(ds.entries), ds.sequences.len(), batch.Len())
	return nil
}

// writeQueue orders the batches waiting to be persisted.
type writeQueue struct {
	mtx     sync.Mutex
	pending []*Batch
	signal  chan struct{}
}

func (q *writeQueue) push(b *Batch) {
	q.mtx.Lock()
	q.pending = append(q.pending, b)
	q.mtx.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *writeQueue) take() []*Batch {
	q.mtx.Lock()
	pending := q.pending
	q.pending = nil
	q.mtx.Unlock()
	return pending
}

// flush writes all queued batches to the store in order.
func (ds *DataStore) flush() {
	for _, b := range ds.writes.take() {
		if err := ds.store.Write(b); err != nil {
			log.Errorf("Unable to persist %d changes: %v", b.Len(), err)
		}
	}
}

// commit queues the batch for persistence and publishes the events.  It is
// called with the data store lock held so both happen in acceptance order.
//
// This function MUST be called with the data store lock held.
func (ds *DataStore) commit(b *Batch, events ...Event) {
	if b.Len() > 0 {
		ds.writes.push(b)
	}
	if len(events) > 0 {
		ds.subs.notify(events)
	}
}

// recordSequence remembers the accepted sequence number of the payload and
// adds the change to the batch.
//
// This function MUST be called with the data store lock held.
func (ds *DataStore) recordSequence(b *Batch, hash *chainhash.Hash, seq uint32, now time.Time) {
	rec := SequenceRecord{SequenceNumber: seq, AcceptedAt: now}
	if purged := ds.sequences.put(hash, rec); purged != nil {
		log.Debugf("Sequence number map full - purged oldest record %v",
			purged)
		b.DeleteSequence(purged)
	}
	b.PutSequence(hash, rec)
}

// checkSequence ensures the sequence number is greater than the highest one
// accepted for the payload, whether the entry is still stored or not.
//
// This function MUST be called with the data store lock held.
func (ds *DataStore) checkSequence(hash *chainhash.Hash, seq uint32) error {
	var highest uint32
	var known bool
	if rec, ok := ds.sequences.get(hash); ok {
		highest, known = rec.SequenceNumber, true
	}
	if e, ok := ds.entries[*hash]; ok && (!known || e.SequenceNumber > highest) {
		highest, known = e.SequenceNumber, true
	}
	if known && seq <= highest {
		str := fmt.Sprintf("sequence number %d for %v is not greater than %d",
			seq, hash, highest)
		return makeError(ErrStaleSequenceNumber, str)
	}
	return nil
}

// broadcast hands the message to the broadcaster when one is configured.
func (ds *DataStore) broadcast(msg wire.Message, hash chainhash.Hash, sender *peer.Peer) {
	if ds.cfg.Broadcaster == nil {
		return
	}
	ds.cfg.Broadcaster.Broadcast(msg, hash, sender, sender == nil)
}

// AddPersistablePayload adds an append-only payload.  An error wrapping
// ErrDuplicate is returned when the payload is already stored.  The sender is
// nil for payloads of the local node, which is then the data owner.
//
// This function is safe for concurrent access.
func (ds *DataStore) AddPersistablePayload(p *wire.PersistablePayload, sender *peer.Peer, reBroadcast bool) error {
	if err := checkPersistablePayload(p); err != nil {
		return err
	}
	hash := p.Hash()

	ds.mtx.Lock()
	if _, ok := ds.payloads[hash]; ok {
		ds.mtx.Unlock()
		str := fmt.Sprintf("payload %v already stored", hash)
		return makeError(ErrDuplicate, str)
	}
	ds.payloads[hash] = p
	var b Batch
	b.PutPayload(&hash, p)
	ds.commit(&b, Event{Kind: EventAdded, Hash: hash, Payload: p})
	ds.mtx.Unlock()

	log.Debugf("Added %v payload %v", p.Type, hash)
	if reBroadcast {
		ds.broadcast(wire.NewMsgAddPayload(p), hash, sender)
	}
	return nil
}

// verifyEntry checks the form of the entry and its owner signature for op.
func (ds *DataStore) verifyEntry(e *wire.ProtectedEntry, op wire.SignatureOp, now time.Time) error {
	if err := checkEntry(e, now); err != nil {
		return err
	}
	if !wire.VerifyEntry(e, op) {
		str := fmt.Sprintf("invalid %s signature for entry %v", op,
			e.PayloadHash())
		return makeError(ErrInvalidSignature, str)
	}
	return nil
}

// AddProtectedEntry adds a protected entry or replaces the stored version of
// it.  The owner signature must verify and the sequence number must be
// greater than any accepted before for the payload.  Entries which already
// expired are refused.
//
// This function is safe for concurrent access.
func (ds *DataStore) AddProtectedEntry(e *wire.ProtectedEntry, sender *peer.Peer, reBroadcast bool) error {
	now := ds.now()
	if err := ds.verifyEntry(e, wire.SigOpStore, now); err != nil {
		return err
	}
	hash := e.PayloadHash()

	ds.mtx.Lock()
	if err := ds.checkSequence(&hash, e.SequenceNumber); err != nil {
		ds.mtx.Unlock()
		return err
	}
	if e.IsExpired(now) {
		ds.mtx.Unlock()
		str := fmt.Sprintf("entry %v expired at %v", hash, e.ExpiresAt())
		return makeError(ErrExpired, str)
	}
	ds.entries[hash] = e
	var b Batch
	b.PutEntry(&hash, e)
	ds.recordSequence(&b, &hash, e.SequenceNumber, now)
	ds.commit(&b, Event{Kind: EventAdded, Hash: hash, Entry: e})
	ds.mtx.Unlock()

	log.Debugf("Added %v entry %v (seq %d)", e.Payload.Type, hash,
		e.SequenceNumber)
	if reBroadcast {
		ds.broadcast(wire.NewMsgAddData(e), hash, sender)
	}
	return nil
}

// RemoveProtectedEntry removes an entry given a tombstone signed for removal
// by the owner with a sequence number greater than any accepted before.  The
// sequence number is recorded even when the entry is not stored so that a
// late add with an older sequence number is refused.
//
// This function is safe for concurrent access.
func (ds *DataStore) RemoveProtectedEntry(tombstone *wire.ProtectedEntry, sender *peer.Peer, reBroadcast bool) error {
	now := ds.now()
	if err := ds.verifyEntry(tombstone, wire.SigOpRemove, now); err != nil {
		return err
	}
	hash := tombstone.PayloadHash()

	ds.mtx.Lock()
	if err := ds.checkSequence(&hash, tombstone.SequenceNumber); err != nil {
		ds.mtx.Unlock()
		return err
	}
	stored, ok := ds.entries[hash]
	var b Batch
	var events []Event
	if ok {
		delete(ds.entries, hash)
		b.DeleteEntry(&hash)
		events = append(events, Event{Kind: EventRemoved, Hash: hash,
			Entry: stored})
	}
	ds.recordSequence(&b, &hash, tombstone.SequenceNumber, now)
	ds.commit(&b, events...)
	ds.mtx.Unlock()

	if ok {
		log.Debugf("Removed %v entry %v (seq %d)", stored.Payload.Type, hash,
			tombstone.SequenceNumber)
	} else {
		log.Debugf("Recorded removal of unknown entry %v (seq %d)", hash,
			tombstone.SequenceNumber)
	}
	if reBroadcast {
		ds.broadcast(wire.NewMsgRemoveData(tombstone), hash, sender)
	}
	return nil
}

// RefreshTTL extends the lifetime of a stored entry.  The refresh carries a
// new sequence number and creation time signed by the owner of the entry.
//
// This function is safe for concurrent access.
func (ds *DataStore) RefreshTTL(refresh *wire.MsgRefreshTTL, sender *peer.Peer, reBroadcast bool) error {
	now := ds.now()
	hash := refresh.PayloadHash
	if refresh.CreationTime.After(now.Add(maxClockSkew)) {
		str := fmt.Sprintf("creation time %v is too far in the future",
			refresh.CreationTime)
		return makeError(ErrInvalidPayload, str)
	}

	ds.mtx.Lock()
	stored, ok := ds.entries[hash]
	if !ok {
		ds.mtx.Unlock()
		str := fmt.Sprintf("no entry %v to refresh", hash)
		return makeError(ErrUnknownEntry, str)
	}
	sigHash := wire.SignatureHash(wire.SigOpStore, &hash,
		refresh.SequenceNumber, refresh.CreationTime.Unix())
	if !wire.VerifySignature(stored.OwnerPubKey, refresh.Signature, sigHash) {
		ds.mtx.Unlock()
		str := fmt.Sprintf("invalid refresh signature for entry %v", hash)
		return makeError(ErrInvalidSignature, str)
	}
	if err := ds.checkSequence(&hash, refresh.SequenceNumber); err != nil {
		ds.mtx.Unlock()
		return err
	}
	refreshed := *stored
	refreshed.SequenceNumber = refresh.SequenceNumber
	refreshed.CreationTime = refresh.CreationTime
	refreshed.Signature = bytes.Clone(refresh.Signature)
	if refreshed.IsExpired(now) {
		ds.mtx.Unlock()
		str := fmt.Sprintf("refreshed entry %v expired at %v", hash,
			refreshed.ExpiresAt())
		return makeError(ErrExpired, str)
	}
	ds.entries[hash] = &refreshed
	var b Batch
	b.PutEntry(&hash, &refreshed)
	ds.recordSequence(&b, &hash, refresh.SequenceNumber, now)
	ds.commit(&b, Event{Kind: EventAdded, Hash: hash, Entry: &refreshed})
	ds.mtx.Unlock()

	log.Debugf("Refreshed entry %v until %v (seq %d)", hash,
		refreshed.ExpiresAt(), refresh.SequenceNumber)
	if reBroadcast {
		ds.broadcast(refresh, hash, sender)
	}
	return nil
}

// sweep removes the expired entries and purges old sequence records of
// payloads which are no longer stored.
func (ds *DataStore) sweep() {
	now := ds.now()

	ds.mtx.Lock()
	var b Batch
	var events []Event
	for hash, e := range ds.entries {
		if !e.IsExpired(now) {
			continue
		}
		delete(ds.entries, hash)
		b.DeleteEntry(&hash)
		events = append(events, Event{Kind: EventRemoved, Hash: hash,
			Entry: e, Expired: true})
	}
	purged := ds.sequences.purge(now.Add(-ds.cfg.SequencePurgeAge),
		func(hash *chainhash.Hash) bool {
			_, ok := ds.entries[*hash]
			return ok
		})
	for i := range purged {
		b.DeleteSequence(&purged[i])
	}
	ds.commit(&b, events...)
	ds.mtx.Unlock()

	if len(events) > 0 || len(purged) > 0 {
		log.Debugf("Expired %d entries and purged %d sequence numbers",
			len(events), len(purged))
	}
}

// Run removes expired entries every sweep interval and persists accepted
// changes until the context is canceled.  Queued changes are persisted before
// it returns.
func (ds *DataStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(ds.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ds.sweep()
			ds.flush()

		case <-ds.writes.signal:
			ds.flush()

		case <-ctx.Done():
			ds.flush()
			return nil
		}
	}
}

// Close persists the queued changes and closes the store.
func (ds *DataStore) Close() error {
	ds.flush()
	return ds.store.Close()
}

// Subscribe returns a subscription to the changes accepted from now on.
func (ds *DataStore) Subscribe() *Subscription {
	return ds.subs.add(ds)
}

// Filter selects stored data.  The zero value selects everything.
type Filter struct {
	// Types restricts the data to the listed payload types.
	Types []wire.PayloadType

	// Owner restricts protected entries to those owned by the key.
	Owner []byte
}

func (f *Filter) matchType(t wire.PayloadType) bool {
	if f == nil || len(f.Types) == 0 {
		return true
	}
	for _, ft := range f.Types {
		if ft == t {
			return true
		}
	}
	return false
}

func (f *Filter) matchEntry(e *wire.ProtectedEntry) bool {
	if !f.matchType(e.Payload.Type) {
		return false
	}
	return f == nil || len(f.Owner) == 0 || bytes.Equal(f.Owner, e.OwnerPubKey)
}

// Entries returns the live protected entries selected by the filter.  The
// returned entries must not be modified.
//
// This function is safe for concurrent access.
func (ds *DataStore) Entries(f *Filter) []*wire.ProtectedEntry {
	now := ds.now()

	ds.mtx.Lock()
	defer ds.mtx.Unlock()

	entries := make([]*wire.ProtectedEntry, 0, len(ds.entries))
	for _, e := range ds.entries {
		if !e.IsExpired(now) && f.matchEntry(e) {
			entries = append(entries, e)
		}
	}
	return entries
}

// Payloads returns the persistable payloads selected by the filter.  The
// owner of the filter is ignored.  The returned payloads must not be
// modified.
//
// This function is safe for concurrent access.
func (ds *DataStore) Payloads(f *Filter) []*wire.PersistablePayload {
	ds.mtx.Lock()
	defer ds.mtx.Unlock()

	payloads := make([]*wire.PersistablePayload, 0, len(ds.payloads))
	for _, p := range ds.payloads {
		if f.matchType(p.Type) {
			payloads = append(payloads, p)
		}
	}
	return payloads
}

// Hashes returns the hashes of all stored payloads and live entries.
//
// This function is safe for concurrent access.
func (ds *DataStore) Hashes() []chainhash.Hash {
	now := ds.now()

	ds.mtx.Lock()
	defer ds.mtx.Unlock()

	hashes := make([]chainhash.Hash, 0, len(ds.payloads)+len(ds.entries))
	for hash := range ds.payloads {
		hashes = append(hashes, hash)
	}
	for hash, e := range ds.entries {
		if !e.IsExpired(now) {
			hashes = append(hashes, hash)
		}
	}
	return hashes
}

// Entry returns the live entry for the payload hash.
//
// This function is safe for concurrent access.
func (ds *DataStore) Entry(hash *chainhash.Hash) (*wire.ProtectedEntry, bool) {
	now := ds.now()

	ds.mtx.Lock()
	defer ds.mtx.Unlock()

	e, ok := ds.entries[*hash]
	if !ok || e.IsExpired(now) {
		return nil, false
	}
	return e, true
}

// HasPayload returns whether the persistable payload is stored.
//
// This function is safe for concurrent access.
func (ds *DataStore) HasPayload(hash *chainhash.Hash) bool {
	ds.mtx.Lock()
	defer ds.mtx.Unlock()

	_, ok := ds.payloads[*hash]
	return ok
}

// SequenceNumber returns the highest sequence number accepted for the
// payload hash, if it is remembered.
//
// This function is safe for concurrent access.
func (ds *DataStore) SequenceNumber(hash *chainhash.Hash) (uint32, bool) {
	ds.mtx.Lock()
	defer ds.mtx.Unlock()

	rec, ok := ds.sequences.get(hash)
	return rec.SequenceNumber, ok
}

// Len returns the number of stored payloads and entries.
//
// This function is safe for concurrent access.
func (ds *DataStore) Len() int {
	ds.mtx.Lock()
	defer ds.mtx.Unlock()

	return len(ds.payloads) + len(ds.entries)
}
