// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peerexchange periodically exchanges known peer addresses with
// connected peers so the known peer set of every node converges on the live
// part of the network.
package peerexchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/tradenet/addrmgr"
	"github.com/decred/tradenet/wire"
)

const (
	// DefaultInterval is the default average time between exchange rounds.
	DefaultInterval = 10 * time.Minute

	// DefaultJitter is the default fraction of the interval by which rounds
	// are randomly moved earlier or later.
	DefaultJitter = 0.2

	// DefaultTimeout is the default time to wait for a peers message.
	DefaultTimeout = 90 * time.Second

	// DefaultMaxRequestPeers is the default number of connections asked
	// in one round.
	DefaultMaxRequestPeers = 3

	// DefaultSampleSize is the default number of known peers reported in a
	// single message.
	DefaultSampleSize = 200
)

// Peer is the subset of a connected peer used by the manager.  *peer.Peer
// implements it.
type Peer interface {
	ID() int32
	NA() wire.NodeAddress
	Capabilities() wire.Capability
	QueueMessage(msg wire.Message, done chan<- error)
}

// Config houses the configuration of a Manager.
type Config struct {
	// AddrManager holds the known peers.
	AddrManager *addrmgr.AddrManager

	// Peers returns the currently connected peers.
	Peers func() []Peer

	// NeedConnections returns whether the node is below its connection
	// target.  It may be nil.
	NeedConnections func() bool

	// NewCandidates is invoked when new peers became known while the node
	// needs more connections.  It may be nil.
	NewCandidates func()

	Interval        time.Duration
	Jitter          float64
	Timeout         time.Duration
	MaxRequestPeers int
	SampleSize      int
}

// request is an outstanding peer exchange.
type request struct {
	nonce uint64
	reply chan *wire.MsgPeers
}

// Manager performs peer exchanges.
type Manager struct {
	cfg Config

	mtx     sync.Mutex
	pending map[int32]*request
	wg      sync.WaitGroup
}

// New returns a peer exchange manager with the passed configuration.
func New(cfg *Config) *Manager {
	m := &Manager{
		cfg:     *cfg,
		pending: make(map[int32]*request),
	}
	if m.cfg.Interval <= 0 {
		m.cfg.Interval = DefaultInterval
	}
	if m.cfg.Jitter < 0 || m.cfg.Jitter >= 1 {
		m.cfg.Jitter = DefaultJitter
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = DefaultTimeout
	}
	if m.cfg.MaxRequestPeers <= 0 {
		m.cfg.MaxRequestPeers = DefaultMaxRequestPeers
	}
	if m.cfg.SampleSize <= 0 || m.cfg.SampleSize > wire.MaxReportedPeers {
		m.cfg.SampleSize = DefaultSampleSize
	}
	return m
}

// nextInterval returns the randomized time until the next round.
func (m *Manager) nextInterval() time.Duration {
	spread := time.Duration(float64(m.cfg.Interval) * m.cfg.Jitter)
	if spread <= 0 {
		return m.cfg.Interval
	}
	return m.cfg.Interval - spread + rand.Duration(2*spread)
}

// merge adds the reported peers to the address manager and signals the
// connection manager when new peers became known and more connections are
// needed.
func (m *Manager) merge(reported []wire.ReportedPeer) int {
	added := m.cfg.AddrManager.AddPeers(reported)
	if added > 0 && m.cfg.NewCandidates != nil &&
		(m.cfg.NeedConnections == nil || m.cfg.NeedConnections()) {

		m.cfg.NewCandidates()
	}
	return added
}

// Exchange sends our sample of known peers to the peer and merges the peers
// it reports back.  It blocks until the answer arrived, the exchange timed
// out or the context was cancelled.
func (m *Manager) Exchange(ctx context.Context, p Peer) error {
	req := &request{
		nonce: rand.Uint64(),
		reply: make(chan *wire.MsgPeers, 1),
	}
	id := p.ID()
	m.mtx.Lock()
	if _, ok := m.pending[id]; ok {
		m.mtx.Unlock()
		str := fmt.Sprintf("peer exchange with peer %d already pending", id)
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

	msg := wire.NewMsgGetPeers(req.nonce)
	msg.Reported = m.cfg.AddrManager.Sample(m.cfg.SampleSize, p.NA())
	p.QueueMessage(msg, nil)

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()
	select {
	case resp := <-req.reply:
		added := m.merge(resp.Reported)
		log.Debugf("Peer exchange with %v: sent %d, received %d, %d new",
			p.NA(), len(msg.Reported), len(resp.Reported), added)
		return nil

	case <-timer.C:
		str := fmt.Sprintf("no peers response from peer %d within %v", id,
			m.cfg.Timeout)
		return makeError(ErrTimeout, str)

	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnPeers delivers a peers message to the matching outstanding exchange.  It
// returns false when there is no exchange with the same nonce.
func (m *Manager) OnPeers(p Peer, msg *wire.MsgPeers) bool {
	id := p.ID()
	m.mtx.Lock()
	req, ok := m.pending[id]
	if ok && req.nonce == msg.Nonce {
		delete(m.pending, id)
	}
	m.mtx.Unlock()
	if !ok || req.nonce != msg.Nonce {
		log.Debugf("Ignoring unsolicited peers message from peer %d", id)
		return false
	}
	req.reply <- msg
	return true
}

// OnGetPeers merges the peers reported by the requesting peer and answers
// with a sample of our known peers that never includes the requester.
func (m *Manager) OnGetPeers(p Peer, msg *wire.MsgGetPeers) {
	added := m.merge(msg.Reported)
	resp := wire.NewMsgPeers(msg.Nonce)
	resp.Reported = m.cfg.AddrManager.Sample(m.cfg.SampleSize, p.NA())
	p.QueueMessage(resp, nil)
	log.Debugf("Answered peer exchange of %v: received %d (%d new), sent %d",
		p.NA(), len(msg.Reported), added, len(resp.Reported))
}

// OnConnected starts an exchange with a newly connected seed node.
func (m *Manager) OnConnected(ctx context.Context, p Peer) {
	if !p.Capabilities().Has(wire.CapSeedNode) {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Exchange(ctx, p); err != nil {
			log.Debugf("Peer exchange with seed node %v: %v", p.NA(), err)
		}
	}()
}

// round exchanges peers with randomly chosen connections.
func (m *Manager) round(ctx context.Context) {
	peers := m.cfg.Peers()
	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})
	if len(peers) > m.cfg.MaxRequestPeers {
		peers = peers[:m.cfg.MaxRequestPeers]
	}
	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p Peer) {
			defer wg.Done()
			if err := m.Exchange(ctx, p); err != nil {
				log.Debugf("Peer exchange with %v: %v", p.NA(), err)
			}
		}(p)
	}
	wg.Wait()
}

// Run performs exchange rounds until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	log.Trace("Starting peer exchange")
	defer log.Trace("Peer exchange stopped")

	timer := time.NewTimer(m.nextInterval())
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			m.round(ctx)
			timer.Reset(m.nextInterval())

		case <-ctx.Done():
			m.wg.Wait()
			return nil
		}
	}
}
