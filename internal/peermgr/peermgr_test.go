// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peermgr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/decred/tradenet/addrmgr"
	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
)

// newTestPeer returns an outbound peer without a connection.
func newTestPeer(t *testing.T, i int) *peer.Peer {
	t.Helper()
	na := wire.NewNodeAddress(fmt.Sprintf("173.194.0.%d", i), 9999)
	return peer.NewOutboundPeer(&peer.Config{Net: wire.RegNet}, na)
}

// fill connects n peers to the manager and returns them.
func fill(t *testing.T, m *PeerManager, n int) []*peer.Peer {
	t.Helper()
	peers := make([]*peer.Peer, 0, n)
	for i := 0; i < n; i++ {
		p := newTestPeer(t, i+1)
		if err := m.OnConnected(p); err != nil {
			t.Fatalf("OnConnected %d: %v", i, err)
		}
		peers = append(peers, p)
	}
	return peers
}

// TestMaxConnections ensures the number of connections never exceeds the
// maximum regardless of the policy.
func TestMaxConnections(t *testing.T) {
	const maxConns = 4
	for _, policy := range []EvictionPolicy{PolicyReject, PolicyEvict} {
		m := New(&Config{MaxConnections: maxConns, Policy: policy})
		fill(t, m, maxConns)

		for i := 0; i < 3*maxConns; i++ {
			p := newTestPeer(t, 100+i)
			err := m.OnConnected(p)
			if policy == PolicyReject && !errors.Is(err, ErrCapacityExceeded) {
				t.Fatalf("%s: unexpected error: got %v, want %v", policy,
					err, ErrCapacityExceeded)
			}
			if policy == PolicyEvict && err != nil {
				t.Fatalf("%s: unexpected error: %v", policy, err)
			}
			if n := m.NumConnected(); n > maxConns {
				t.Fatalf("%s: number of connections exceeds max: %d > %d",
					policy, n, maxConns)
			}
		}
		if n := len(m.ConnectedPeers()); n != maxConns {
			t.Fatalf("%s: unexpected number of peers: got %d, want %d",
				policy, n, maxConns)
		}
	}
}

// TestEvictUnsyncedFirst ensures connections that did not complete a data sync
// are evicted before synced ones.
func TestEvictUnsyncedFirst(t *testing.T) {
	m := New(&Config{MaxConnections: 3})
	peers := fill(t, m, 3)
	for i, p := range peers {
		if i != 1 {
			m.MarkSynced(p)
		}
	}
	if m.IsSynced(peers[1]) || !m.IsSynced(peers[0]) {
		t.Fatal("unexpected sync state")
	}

	if err := m.OnConnected(newTestPeer(t, 50)); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	for _, p := range m.ConnectedPeers() {
		if p == peers[1] {
			t.Fatal("unsynced peer was not evicted")
		}
	}
	if peers[1].Connected() {
		t.Fatal("evicted peer is still connected")
	}
	if m.OnDisconnected(peers[1]) {
		t.Fatal("evicted peer was still part of the connection set")
	}
}

// TestProtectedPeers ensures persistent peers are never evicted and that a
// new connection is refused when no other candidate exists.
func TestProtectedPeers(t *testing.T) {
	m := New(&Config{MaxConnections: 2})
	peers := fill(t, m, 2)
	for _, p := range peers {
		p.SetPersistent(true)
	}

	p := newTestPeer(t, 50)
	if err := m.OnConnected(p); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrCapacityExceeded)
	}
	if m.NumConnected() != 2 {
		t.Fatalf("unexpected number of peers: %d", m.NumConnected())
	}
}

// TestLowerPriority ensures the eviction order.
func TestLowerPriority(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		a, b candidate
		want bool
	}{{
		name: "unsynced before synced",
		a:    candidate{synced: false, numCaps: 5},
		b:    candidate{synced: true, numCaps: 0},
		want: true,
	}, {
		name: "synced after unsynced",
		a:    candidate{synced: true},
		b:    candidate{synced: false},
		want: false,
	}, {
		name: "fewer capabilities first",
		a:    candidate{synced: true, numCaps: 1, lastActivity: now},
		b:    candidate{synced: true, numCaps: 3, lastActivity: now.Add(-time.Hour)},
		want: true,
	}, {
		name: "older activity first",
		a:    candidate{numCaps: 2, lastActivity: now.Add(-time.Minute)},
		b:    candidate{numCaps: 2, lastActivity: now},
		want: true,
	}, {
		name: "equal",
		a:    candidate{numCaps: 2, lastActivity: now},
		b:    candidate{numCaps: 2, lastActivity: now},
		want: false,
	}}

	for _, test := range tests {
		if got := lowerPriority(&test.a, &test.b); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

// TestDuplicatePeer ensures a peer is only added once.
func TestDuplicatePeer(t *testing.T) {
	m := New(&Config{})
	p := fill(t, m, 1)[0]
	if err := m.OnConnected(p); !errors.Is(err, ErrDuplicatePeer) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrDuplicatePeer)
	}
}

// TestKnownPeersTracking ensures connection changes are reflected in the
// known peers.
func TestKnownPeersTracking(t *testing.T) {
	am := addrmgr.New(&addrmgr.Config{})
	m := New(&Config{AddrManager: am})
	p := fill(t, m, 1)[0]

	known := m.KnownPeers()
	if len(known) != 1 || known[0].Addr != p.NA() || !known[0].Connected {
		t.Fatalf("unexpected known peers: %v", known)
	}

	if !m.OnDisconnected(p) {
		t.Fatal("peer was not part of the connection set")
	}
	known = m.KnownPeers()
	if len(known) != 1 || known[0].Connected {
		t.Fatalf("unexpected known peers: %v", known)
	}
}

// TestParseEvictionPolicy ensures only known policies parse.
func TestParseEvictionPolicy(t *testing.T) {
	if p, err := ParseEvictionPolicy("reject"); err != nil || p != PolicyReject {
		t.Fatalf("unexpected result: %v %v", p, err)
	}
	if _, err := ParseEvictionPolicy("random"); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrInvalidPolicy)
	}
}
