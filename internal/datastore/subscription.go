// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import (
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/tradenet/wire"
)

// DefaultSubscriptionBuffer is the default number of events buffered per
// subscriber.
const DefaultSubscriptionBuffer = 256

// EventKind identifies the kind of change an Event describes.
type EventKind int

const (
	// EventAdded indicates an entry was added or updated, or a persistable
	// payload was added.
	EventAdded EventKind = iota

	// EventRemoved indicates an entry was removed by its owner or expired.
	EventRemoved
)

// String returns the EventKind in human-readable form.
func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// Event describes an accepted change of the stored data.  Exactly one of
// Entry and Payload is set.
type Event struct {
	Kind    EventKind
	Hash    chainhash.Hash
	Entry   *wire.ProtectedEntry
	Payload *wire.PersistablePayload
	Expired bool
}

// Subscription delivers the events of the data store in the order they were
// accepted.  Events are dropped when the subscriber does not keep up.
type Subscription struct {
	id     uint64
	ch     chan Event
	ds     *DataStore
	closed bool
}

// Events returns the channel the events are delivered on.  It is closed when
// the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close stops the delivery of events.
func (s *Subscription) Close() {
	s.ds.subs.remove(s)
}

// subscribers houses the active subscriptions.
type subscribers struct {
	mtx    sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	buffer int
}

func (s *subscribers) add(ds *DataStore) *Subscription {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.nextID++
	sub := &Subscription{
		id: s.nextID,
		ch: make(chan Event, s.buffer),
		ds: ds,
	}
	s.subs[sub.id] = sub
	return sub
}

func (s *subscribers) remove(sub *Subscription) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	delete(s.subs, sub.id)
	close(sub.ch)
}

// notify delivers the events to every subscriber without blocking.
func (s *subscribers) notify(events []Event) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, sub := range s.subs {
		for i := range events {
			select {
			case sub.ch <- events[i]:
			default:
				log.Warnf("Subscriber %d is not keeping up - dropping %v "+
					"event for %v", sub.id, events[i].Kind, events[i].Hash)
			}
		}
	}
}
