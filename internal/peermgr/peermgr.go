// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peermgr maintains the set of active overlay connections and applies
// the admission policy when the maximum number of connections is reached.
package peermgr

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/tradenet/addrmgr"
	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
)

// DefaultMaxConnections is the default maximum number of active connections.
const DefaultMaxConnections = 12

// EvictionPolicy selects what happens to a new connection when the maximum
// number of connections is reached.
type EvictionPolicy string

const (
	// PolicyReject refuses the new connection.
	PolicyReject EvictionPolicy = "reject"

	// PolicyEvict disconnects the lowest priority existing connection to make
	// room for the new one.
	PolicyEvict EvictionPolicy = "evict"
)

// ParseEvictionPolicy returns the policy with the passed name.
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch p := EvictionPolicy(s); p {
	case PolicyReject, PolicyEvict:
		return p, nil
	}
	str := fmt.Sprintf("unknown eviction policy %q", s)
	return "", makeError(ErrInvalidPolicy, str)
}

// Config houses the parameters of the peer manager.
type Config struct {
	// MaxConnections is the maximum number of active connections.  Defaults
	// to DefaultMaxConnections.
	MaxConnections int

	// Policy is applied when a connection arrives at capacity.  Defaults to
	// PolicyEvict.
	Policy EvictionPolicy

	// AddrManager is notified about connection changes so the known peers
	// reflect them.  It may be nil.
	AddrManager *addrmgr.AddrManager
}

// PeerManager owns the set of active connections.
type PeerManager struct {
	cfg Config

	mtx   sync.Mutex
	peers map[int32]*peer.Peer
}

// New returns a peer manager with the passed configuration.
func New(cfg *Config) *PeerManager {
	m := PeerManager{
		cfg:   *cfg,
		peers: make(map[int32]*peer.Peer),
	}
	if m.cfg.MaxConnections <= 0 {
		m.cfg.MaxConnections = DefaultMaxConnections
	}
	if m.cfg.Policy == "" {
		m.cfg.Policy = PolicyEvict
	}
	return &m
}

// candidate is a snapshot of the properties of a connection that determine
// its eviction priority.
type candidate struct {
	p            *peer.Peer
	protected    bool
	synced       bool
	numCaps      int
	lastActivity time.Time
}

func (m *PeerManager) newCandidate(p *peer.Peer) candidate {
	caps := p.Capabilities()
	return candidate{
		p:            p,
		protected:    p.Persistent() || caps.Has(wire.CapSeedNode),
		synced:       m.IsSynced(p),
		numCaps:      caps.Count(),
		lastActivity: p.LastActivity(),
	}
}

// lowerPriority returns whether a should be evicted before b.  Connections
// that did not complete a data sync go first, then those with the fewest
// capabilities and finally the ones idle the longest.
func lowerPriority(a, b *candidate) bool {
	if a.synced != b.synced {
		return !a.synced
	}
	if a.numCaps != b.numCaps {
		return a.numCaps < b.numCaps
	}
	return a.lastActivity.Before(b.lastActivity)
}

// evictionCandidate returns the lowest priority connection which may be
// evicted or nil when every connection is protected.
//
// This function MUST be called with the peer manager lock held.
func (m *PeerManager) evictionCandidate() *peer.Peer {
	var victim *candidate
	for _, p := range m.peers {
		c := m.newCandidate(p)
		if c.protected {
			continue
		}
		if victim == nil || lowerPriority(&c, victim) {
			victim = &c
		}
	}
	if victim == nil {
		return nil
	}
	return victim.p
}

// OnConnected adds a peer which completed the handshake to the active
// connection set.  When the maximum number of connections is reached the
// configured policy either refuses the peer or evicts the lowest priority
// connection.  A refused peer is sent a close message and disconnected, and
// an error wrapping ErrCapacityExceeded is returned.
//
// This function is safe for concurrent access.
func (m *PeerManager) OnConnected(p *peer.Peer) error {
	m.mtx.Lock()
	if _, ok := m.peers[p.ID()]; ok {
		m.mtx.Unlock()
		str := fmt.Sprintf("peer %s is already connected", p)
		return makeError(ErrDuplicatePeer, str)
	}

	var evicted *peer.Peer
	if len(m.peers) >= m.cfg.MaxConnections {
		if m.cfg.Policy == PolicyEvict {
			evicted = m.evictionCandidate()
		}
		if evicted == nil {
			m.mtx.Unlock()
			log.Infof("Max connections reached [%d] - refusing peer %s",
				m.cfg.MaxConnections, p)
			p.Close(wire.CloseReasonTooManyPeers)
			str := fmt.Sprintf("max connections reached [%d]",
				m.cfg.MaxConnections)
			return makeError(ErrCapacityExceeded, str)
		}
		delete(m.peers, evicted.ID())
	}
	m.peers[p.ID()] = p
	numPeers := len(m.peers)
	m.mtx.Unlock()

	if evicted != nil {
		log.Infof("Max connections reached [%d] - evicting peer %s",
			m.cfg.MaxConnections, evicted)
		evicted.Close(wire.CloseReasonTooManyPeers)
		m.markDisconnected(evicted)
	}

	log.Debugf("New peer %s (%d connected)", p, numPeers)
	if am := m.cfg.AddrManager; am != nil {
		if err := am.Connected(p.NA(), p.Capabilities()); err != nil {
			log.Tracef("Not tracking address of %s: %v", p, err)
		} else if !p.Inbound() {
			am.Good(p.NA())
		}
	}
	return nil
}

// markDisconnected notifies the address manager that the peer is gone.
func (m *PeerManager) markDisconnected(p *peer.Peer) {
	if am := m.cfg.AddrManager; am != nil {
		am.Disconnected(p.NA())
	}
}

// OnDisconnected removes the peer from the active connection set.  It returns
// whether the peer was part of it.  Peers that were evicted have already been
// removed.
//
// This function is safe for concurrent access.
func (m *PeerManager) OnDisconnected(p *peer.Peer) bool {
	m.mtx.Lock()
	_, ok := m.peers[p.ID()]
	delete(m.peers, p.ID())
	numPeers := len(m.peers)
	m.mtx.Unlock()

	if !ok {
		return false
	}
	log.Debugf("Removed peer %s (%d connected)", p, numPeers)
	m.markDisconnected(p)
	return true
}

// ConnectedPeers returns the active connections ordered by id.
//
// This function is safe for concurrent access.
func (m *PeerManager) ConnectedPeers() []*peer.Peer {
	m.mtx.Lock()
	peers := make([]*peer.Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mtx.Unlock()

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID() < peers[j].ID()
	})
	return peers
}

// NumConnected returns the number of active connections.
//
// This function is safe for concurrent access.
func (m *PeerManager) NumConnected() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return len(m.peers)
}

// KnownPeers returns the known peers of the address manager.
func (m *PeerManager) KnownPeers() []addrmgr.KnownPeer {
	if m.cfg.AddrManager == nil {
		return nil
	}
	return m.cfg.AddrManager.KnownPeers()
}

// MarkSynced records that the initial data sync with the peer succeeded.
// Synced connections are evicted last.
func (m *PeerManager) MarkSynced(p *peer.Peer) {
	p.SetSynced()
}

// IsSynced returns whether the initial data sync with the peer succeeded.
func (m *PeerManager) IsSynced(p *peer.Peer) bool {
	return p.Synced()
}

// DisconnectAll closes every active connection with the passed reason.
//
// This function is safe for concurrent access.
func (m *PeerManager) DisconnectAll(reason string) {
	for _, p := range m.ConnectedPeers() {
		p.Close(reason)
	}
}
