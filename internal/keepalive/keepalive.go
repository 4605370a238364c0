// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keepalive pings quiet connections and closes the ones that stopped
// responding.
package keepalive

import (
	"context"
	"sync"
	"time"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/tradenet/wire"
)

const (
	// DefaultInterval is the default time between liveness checks.
	DefaultInterval = 30 * time.Second

	// DefaultTimeout is the default time without any received message after
	// which a connection is closed.
	DefaultTimeout = 90 * time.Second

	// intervalJitter is the fraction by which checks are randomly moved.
	intervalJitter = 0.1
)

// Peer is the subset of a connected peer used by the manager.  *peer.Peer
// implements it.
type Peer interface {
	ID() int32
	TimeConnected() time.Time
	LastActivity() time.Time
	LastRecv() time.Time
	LastRoundTrip() time.Duration
	SetLastRoundTrip(d time.Duration)
	QueueMessage(msg wire.Message, done chan<- error)
	Close(reason string)
}

// Config houses the configuration of a Manager.
type Config struct {
	// Peers returns the currently connected peers.
	Peers func() []Peer

	// Interval is the time between checks.  Connections without activity
	// for half the interval are pinged.
	Interval time.Duration

	// Timeout is the time without received messages after which a
	// connection is closed.
	Timeout time.Duration
}

type ping struct {
	nonce uint64
	sent  time.Time
}

// Manager keeps connections alive.
type Manager struct {
	cfg Config

	mtx   sync.Mutex
	pings map[int32]ping

	now func() time.Time
}

// New returns a keep-alive manager with the passed configuration.
func New(cfg *Config) *Manager {
	m := &Manager{
		cfg:   *cfg,
		pings: make(map[int32]ping),
		now:   time.Now,
	}
	if m.cfg.Interval <= 0 {
		m.cfg.Interval = DefaultInterval
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = DefaultTimeout
	}
	return m
}

// lastRecv returns the time the peer was last heard from, which is never
// before it connected.
func lastRecv(p Peer) time.Time {
	recv, connected := p.LastRecv(), p.TimeConnected()
	if recv.Before(connected) {
		return connected
	}
	return recv
}

// check pings quiet connections and closes idle ones.
func (m *Manager) check() {
	now := m.now()
	for _, p := range m.cfg.Peers() {
		id := p.ID()
		if idle := now.Sub(lastRecv(p)); idle > m.cfg.Timeout {
			log.Infof("Closing connection to peer %d: no messages for %v",
				id, idle.Truncate(time.Second))
			p.Close(wire.CloseReasonIdle)
			m.RemovePeer(p)
			continue
		}
		if now.Sub(p.LastActivity()) <= m.cfg.Interval/2 {
			continue
		}

		nonce := rand.Uint64()
		m.mtx.Lock()
		m.pings[id] = ping{nonce: nonce, sent: now}
		m.mtx.Unlock()
		rtt := uint32(p.LastRoundTrip().Milliseconds())
		p.QueueMessage(wire.NewMsgPing(nonce, rtt), nil)
		log.Tracef("Pinged peer %d", id)
	}
}

// OnPong records the round trip time when the pong answers the last ping
// sent to the peer.
func (m *Manager) OnPong(p Peer, msg *wire.MsgPong) {
	id := p.ID()
	m.mtx.Lock()
	sent, ok := m.pings[id]
	if ok && sent.nonce == msg.Nonce {
		delete(m.pings, id)
	}
	m.mtx.Unlock()
	if !ok || sent.nonce != msg.Nonce {
		log.Debugf("Ignoring pong with unknown nonce from peer %d", id)
		return
	}
	rtt := m.now().Sub(sent.sent)
	p.SetLastRoundTrip(rtt)
	log.Tracef("Round trip to peer %d is %v", id, rtt)
}

// RemovePeer discards the state of a disconnected peer.
func (m *Manager) RemovePeer(p Peer) {
	m.mtx.Lock()
	delete(m.pings, p.ID())
	m.mtx.Unlock()
}

// nextInterval returns the randomized time until the next check.
func (m *Manager) nextInterval() time.Duration {
	spread := time.Duration(float64(m.cfg.Interval) * intervalJitter)
	return m.cfg.Interval - spread + rand.Duration(2*spread+1)
}

// Run checks the connections until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	timer := time.NewTimer(m.nextInterval())
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			m.check()
			timer.Reset(m.nextInterval())

		case <-ctx.Done():
			return nil
		}
	}
}
