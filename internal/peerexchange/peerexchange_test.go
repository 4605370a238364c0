// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerexchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/decred/tradenet/addrmgr"
	"github.com/decred/tradenet/wire"
)

// testPeer is a fake peer that hands queued messages to a handler.
type testPeer struct {
	id      int32
	na      wire.NodeAddress
	caps    wire.Capability
	handler func(msg wire.Message)

	mtx  sync.Mutex
	sent []wire.Message
}

func (p *testPeer) ID() int32                     { return p.id }
func (p *testPeer) NA() wire.NodeAddress          { return p.na }
func (p *testPeer) Capabilities() wire.Capability { return p.caps }

func (p *testPeer) QueueMessage(msg wire.Message, done chan<- error) {
	p.mtx.Lock()
	p.sent = append(p.sent, msg)
	p.mtx.Unlock()
	if p.handler != nil {
		go p.handler(msg)
	}
}

func (p *testPeer) numSent() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.sent)
}

func localAddr(port uint16) wire.NodeAddress {
	return wire.NewNodeAddress("127.0.0.1", port)
}

// newAddrManager returns an address manager knowing peers on the passed
// local ports.
func newAddrManager(self uint16, ports ...uint16) *addrmgr.AddrManager {
	amgr := addrmgr.New(&addrmgr.Config{LocalOnly: true, Self: localAddr(self)})
	peers := make([]wire.ReportedPeer, 0, len(ports))
	for _, port := range ports {
		peers = append(peers, wire.ReportedPeer{
			Addr:     localAddr(port),
			LastSeen: time.Now().Add(-time.Minute),
		})
	}
	amgr.AddPeers(peers)
	return amgr
}

func knows(amgr *addrmgr.AddrManager, na wire.NodeAddress) bool {
	for _, kp := range amgr.KnownPeers() {
		if kp.Addr == na {
			return true
		}
	}
	return false
}

// TestExchange ensures both sides of an exchange learn the peers known by
// the other side and that a node never reports the requester to itself.
func TestExchange(t *testing.T) {
	const portA, portB = 1000, 2000
	amgrA := newAddrManager(portA, 1001, 1002)
	amgrB := newAddrManager(portB, 2001, portA)

	var candidates int
	a := New(&Config{
		AddrManager:     amgrA,
		NeedConnections: func() bool { return true },
		NewCandidates:   func() { candidates++ },
	})
	b := New(&Config{AddrManager: amgrB})

	viewOfB := &testPeer{id: 1, na: localAddr(portB)}
	viewOfA := &testPeer{id: 2, na: localAddr(portA)}
	viewOfB.handler = func(msg wire.Message) {
		b.OnGetPeers(viewOfA, msg.(*wire.MsgGetPeers))
	}
	var reply *wire.MsgPeers
	viewOfA.handler = func(msg wire.Message) {
		reply = msg.(*wire.MsgPeers)
		a.OnPeers(viewOfB, reply)
	}

	if err := a.Exchange(context.Background(), viewOfB); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	for _, port := range []uint16{1001, 1002} {
		if !knows(amgrB, localAddr(port)) {
			t.Fatalf("requester peer %d not merged", port)
		}
	}
	if !knows(amgrA, localAddr(2001)) {
		t.Fatal("responder peer not merged")
	}
	for _, rp := range reply.Reported {
		if rp.Addr == localAddr(portA) {
			t.Fatal("requester reported to itself")
		}
	}
	if candidates != 1 {
		t.Fatalf("unexpected number of candidate signals: got %d, want 1",
			candidates)
	}

	// Nothing new is learned from a second exchange.
	if err := a.Exchange(context.Background(), viewOfB); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if candidates != 1 {
		t.Fatalf("unexpected number of candidate signals: got %d, want 1",
			candidates)
	}
}

// TestExchangeTimeout ensures an unanswered exchange times out and late or
// unknown answers are ignored.
func TestExchangeTimeout(t *testing.T) {
	m := New(&Config{AddrManager: newAddrManager(1000), Timeout: 20 * time.Millisecond})
	p := &testPeer{id: 1, na: localAddr(2000)}

	err := m.Exchange(context.Background(), p)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrTimeout)
	}
	req := p.sent[0].(*wire.MsgGetPeers)
	if m.OnPeers(p, wire.NewMsgPeers(req.Nonce)) {
		t.Fatal("late answer accepted")
	}
}

// TestSinglePendingExchange ensures there is at most one exchange per peer
// at a time.
func TestSinglePendingExchange(t *testing.T) {
	m := New(&Config{AddrManager: newAddrManager(1000), Timeout: time.Minute})
	sent := make(chan *wire.MsgGetPeers, 1)
	p := &testPeer{id: 1, na: localAddr(2000)}
	p.handler = func(msg wire.Message) { sent <- msg.(*wire.MsgGetPeers) }

	result := make(chan error, 1)
	go func() { result <- m.Exchange(context.Background(), p) }()
	req := <-sent

	if err := m.Exchange(context.Background(), p); !errors.Is(err, ErrRequestPending) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrRequestPending)
	}
	if m.OnPeers(p, wire.NewMsgPeers(req.Nonce^1)) {
		t.Fatal("answer with wrong nonce accepted")
	}
	if !m.OnPeers(p, wire.NewMsgPeers(req.Nonce)) {
		t.Fatal("answer not accepted")
	}
	if err := <-result; err != nil {
		t.Fatalf("Exchange: %v", err)
	}
}

// TestSeedNodeExchange ensures only newly connected seed nodes trigger an
// immediate exchange.
func TestSeedNodeExchange(t *testing.T) {
	m := New(&Config{AddrManager: newAddrManager(1000), Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	regular := &testPeer{id: 1, na: localAddr(2000), caps: wire.DefaultCapabilities}
	seed := &testPeer{id: 2, na: localAddr(3000), caps: wire.CapSeedNode}
	m.OnConnected(ctx, regular)
	m.OnConnected(ctx, seed)
	m.wg.Wait()

	if n := regular.numSent(); n != 0 {
		t.Fatalf("regular peer received %d messages", n)
	}
	if n := seed.numSent(); n != 1 {
		t.Fatalf("seed node received %d messages, want 1", n)
	}
}

// TestRound ensures a round asks at most the configured number of peers.
func TestRound(t *testing.T) {
	peers := make([]*testPeer, 0, 5)
	for i := int32(0); i < 5; i++ {
		peers = append(peers, &testPeer{id: i, na: localAddr(2000 + uint16(i))})
	}
	m := New(&Config{
		AddrManager: newAddrManager(1000),
		Peers: func() []Peer {
			ps := make([]Peer, 0, len(peers))
			for _, p := range peers {
				ps = append(ps, p)
			}
			return ps
		},
		Timeout:         10 * time.Millisecond,
		MaxRequestPeers: 2,
	})
	m.round(context.Background())

	var asked int
	for _, p := range peers {
		asked += p.numSent()
	}
	if asked != 2 {
		t.Fatalf("unexpected number of peers asked: got %d, want 2", asked)
	}
}

// TestNextInterval ensures the randomized interval stays within the jitter
// bounds.
func TestNextInterval(t *testing.T) {
	m := New(&Config{AddrManager: newAddrManager(1000)})
	low := DefaultInterval - DefaultInterval/5
	high := DefaultInterval + DefaultInterval/5
	for i := 0; i < 1000; i++ {
		d := m.nextInterval()
		if d < low || d >= high {
			t.Fatalf("interval %v out of range [%v, %v)", d, low, high)
		}
	}
}
