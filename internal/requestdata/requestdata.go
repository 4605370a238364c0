// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package requestdata performs the initial data synchronization with newly
// connected peers and answers the data requests of remote peers.
//
// A new connection receives a getdata message listing the hashes of all
// locally stored items.  The remote peer answers with a data message holding
// the items missing locally, which are validated and stored without being
// broadcast again.  Each connection is synchronized once; there is no
// polling.
package requestdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/wire"
)

const (
	// DefaultTimeout is the default time to wait for the answer to a data
	// request.
	DefaultTimeout = 90 * time.Second

	// DefaultMaxEntries is the default maximum number of protected entries
	// sent in a single response.
	DefaultMaxEntries = wire.MaxDataEntries

	// DefaultMaxPayloads is the default maximum number of persistable
	// payloads sent in a single response.
	DefaultMaxPayloads = wire.MaxDataPayloads

	// maxResponseSize is the maximum serialized size of the items in a
	// response, leaving room for the message framing.
	maxResponseSize = wire.MaxMessagePayload - 64*1024
)

// Peer is the subset of a connected peer used by the manager.  *peer.Peer
// implements it.
type Peer interface {
	ID() int32
	Capabilities() wire.Capability
	QueueMessage(msg wire.Message, done chan<- error)
}

// Config houses the configuration of a Manager.
type Config struct {
	// DataStore holds the local data.
	DataStore *datastore.DataStore

	// Timeout is the time to wait for a data response.
	Timeout time.Duration

	// MaxEntries and MaxPayloads cap the number of items in a response.
	MaxEntries  int
	MaxPayloads int

	// OnReceived is invoked for every item received from a peer that is now
	// stored locally, whether it was new or already known.  It may be nil.
	OnReceived func(p Peer, hash chainhash.Hash)

	// OnRejected is invoked for every received item that was refused for a
	// reason other than being stale, duplicate or expired.  It may be nil.
	OnRejected func(p Peer, err error)

	// OnSynced is invoked once a data response from the peer was processed.
	// It may be nil.
	OnSynced func(p Peer)
}

// request is an outstanding data request.
type request struct {
	nonce uint64
	reply chan *wire.MsgData
}

// Manager synchronizes data with connected peers.
type Manager struct {
	cfg Config

	mtx     sync.Mutex
	pending map[int32]*request
	serving map[int32]struct{}
}

// New returns a data request manager with the passed configuration.
func New(cfg *Config) *Manager {
	m := &Manager{
		cfg:     *cfg,
		pending: make(map[int32]*request),
		serving: make(map[int32]struct{}),
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = DefaultTimeout
	}
	if m.cfg.MaxEntries <= 0 || m.cfg.MaxEntries > wire.MaxDataEntries {
		m.cfg.MaxEntries = DefaultMaxEntries
	}
	if m.cfg.MaxPayloads <= 0 || m.cfg.MaxPayloads > wire.MaxDataPayloads {
		m.cfg.MaxPayloads = DefaultMaxPayloads
	}
	return m
}

// OnConnected requests the data missing locally from the newly connected peer
// and blocks until the response was processed, the request timed out or the
// context was cancelled.  A timeout does not close the connection.
func (m *Manager) OnConnected(ctx context.Context, p Peer) error {
	req := &request{
		nonce: rand.Uint64(),
		reply: make(chan *wire.MsgData, 1),
	}
	id := p.ID()
	m.mtx.Lock()
	if _, ok := m.pending[id]; ok {
		m.mtx.Unlock()
		str := fmt.Sprintf("data request with peer %d already pending", id)
		return makeError(ErrRequestPending, str)
	}
	m.pending[id] = req
	m.mtx.Unlock()
	defer func() {
		m.mtx.Lock()
		if m.pending[id] == req {
			delete(m.pending, id)
		}
		m.mtx.Unlock()
	}()

	msg := wire.NewMsgGetData(req.nonce)
	for _, hash := range m.cfg.DataStore.Hashes() {
		if err := msg.AddHash(&hash); err != nil {
			log.Warnf("Too many local items to list in data request to "+
				"peer %d", id)
			break
		}
	}
	p.QueueMessage(msg, nil)
	log.Debugf("Requested data from peer %d (%d known hashes)", id,
		len(msg.KnownHashes))

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()
	select {
	case resp := <-req.reply:
		accepted := m.process(p, resp)
		log.Infof("Received %d entries and %d payloads from peer %d (%d "+
			"new, truncated %v)", len(resp.Entries), len(resp.Payloads), id,
			accepted, resp.Truncated)
		if m.cfg.OnSynced != nil {
			m.cfg.OnSynced(p)
		}
		return nil

	case <-timer.C:
		str := fmt.Sprintf("no data response from peer %d within %v", id,
			m.cfg.Timeout)
		return makeError(ErrTimeout, str)

	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnData delivers a data response to the matching outstanding request.  It
// returns false when there is no request with the same nonce, in which case
// the message is ignored.
func (m *Manager) OnData(p Peer, msg *wire.MsgData) bool {
	id := p.ID()
	m.mtx.Lock()
	req, ok := m.pending[id]
	if ok && req.nonce == msg.Nonce {
		delete(m.pending, id)
	}
	m.mtx.Unlock()
	if !ok || req.nonce != msg.Nonce {
		log.Debugf("Ignoring unsolicited data message from peer %d", id)
		return false
	}
	req.reply <- msg
	return true
}

// isBenign returns whether a refused item is common in normal operation and
// does not count against the peer that sent it.
func isBenign(err error) bool {
	return errors.Is(err, datastore.ErrStaleSequenceNumber) ||
		errors.Is(err, datastore.ErrDuplicate) ||
		errors.Is(err, datastore.ErrExpired)
}

// handleResult reports the outcome of storing a received item.  It returns
// whether the item was new.
func (m *Manager) handleResult(p Peer, hash chainhash.Hash, err error) bool {
	switch {
	case err == nil:
		if m.cfg.OnReceived != nil {
			m.cfg.OnReceived(p, hash)
		}
		return true

	case errors.Is(err, datastore.ErrDuplicate),
		errors.Is(err, datastore.ErrStaleSequenceNumber):
		if m.cfg.OnReceived != nil {
			m.cfg.OnReceived(p, hash)
		}

	case isBenign(err):

	default:
		log.Debugf("Refused item %v from peer %d: %v", hash, p.ID(), err)
		if m.cfg.OnRejected != nil {
			m.cfg.OnRejected(p, err)
		}
	}
	return false
}

// process stores the items of a data response and returns the number of new
// items.
func (m *Manager) process(p Peer, msg *wire.MsgData) int {
	ds := m.cfg.DataStore
	var accepted int
	for _, pl := range msg.Payloads {
		err := ds.AddPersistablePayload(pl, nil, false)
		if m.handleResult(p, pl.Hash(), err) {
			accepted++
		}
	}
	for _, e := range msg.Entries {
		err := ds.AddProtectedEntry(e, nil, false)
		if m.handleResult(p, e.PayloadHash(), err) {
			accepted++
		}
	}
	return accepted
}

// OnGetData answers a data request with the items the requesting peer does
// not list as known.  Expired entries and payload types the peer did not
// advertise support for are left out.  Only one request per peer is served
// at a time.
func (m *Manager) OnGetData(p Peer, msg *wire.MsgGetData) error {
	id := p.ID()
	m.mtx.Lock()
	if _, ok := m.serving[id]; ok {
		m.mtx.Unlock()
		str := fmt.Sprintf("already serving a data request of peer %d", id)
		return makeError(ErrRequestPending, str)
	}
	m.serving[id] = struct{}{}
	m.mtx.Unlock()
	defer func() {
		m.mtx.Lock()
		delete(m.serving, id)
		m.mtx.Unlock()
	}()

	known := make(map[chainhash.Hash]struct{}, len(msg.KnownHashes))
	for _, hash := range msg.KnownHashes {
		known[hash] = struct{}{}
	}

	resp := wire.NewMsgData(msg.Nonce)
	var size int
	fits := func(n int) bool {
		if size+n > maxResponseSize {
			return false
		}
		size += n
		return true
	}

	for _, e := range m.cfg.DataStore.Entries(nil) {
		if _, ok := known[e.PayloadHash()]; ok {
			continue
		}
		if len(resp.Entries) >= m.cfg.MaxEntries || !fits(e.SerializeSize()) {
			resp.Truncated = true
			break
		}
		resp.Entries = append(resp.Entries, e)
	}

	// Payloads only go into responses which hold every missing entry.
	var payloads []*wire.PersistablePayload
	if !resp.Truncated {
		payloads = m.cfg.DataStore.Payloads(nil)
	}
	caps := p.Capabilities()
	for _, pl := range payloads {
		if req := pl.Type.Capability(); req != 0 && !caps.Has(req) {
			continue
		}
		if _, ok := known[pl.Hash()]; ok {
			continue
		}
		if len(resp.Payloads) >= m.cfg.MaxPayloads || !fits(pl.SerializeSize()) {
			resp.Truncated = true
			break
		}
		resp.Payloads = append(resp.Payloads, pl)
	}

	p.QueueMessage(resp, nil)
	log.Debugf("Sent %d entries and %d payloads to peer %d (truncated %v)",
		len(resp.Entries), len(resp.Payloads), id, resp.Truncated)
	return nil
}
