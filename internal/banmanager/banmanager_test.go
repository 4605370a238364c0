// Copyright (c) 2021-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package banmanager

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
)

// newTestPeer returns an unconnected outbound peer for the provided host.
func newTestPeer(t *testing.T, host string) *peer.Peer {
	t.Helper()

	peerCfg := &peer.Config{
		UserAgent: "peer/1.0",
		Net:       wire.RegNet,
	}
	return peer.NewOutboundPeer(peerCfg, wire.NewNodeAddress(host, 9999))
}

// TestBanPeer tests ban manager peer banning functionality.
func TestBanPeer(t *testing.T) {
	bcfg := &Config{
		DisableBanning: false,
		BanThreshold:   100,
		BanDuration:    time.Millisecond * 500,
		MaxPeers:       10,
		WhiteList:      []net.IPNet{},
	}

	bmgr := NewBanManager(bcfg)

	// Add peer A, B and C.
	pA := newTestPeer(t, "10.0.0.1")
	if err := bmgr.AddPeer(pA); err != nil {
		t.Fatalf("unexpected err -%v\n", err)
	}
	pB := newTestPeer(t, "10.0.0.2")
	if err := bmgr.AddPeer(pB); err != nil {
		t.Fatalf("unexpected err -%v\n", err)
	}
	pC := newTestPeer(t, "10.0.0.3")
	if err := bmgr.AddPeer(pC); err != nil {
		t.Fatalf("unexpected err -%v\n", err)
	}

	if len(bmgr.peers) != 3 {
		t.Fatalf("expected 3 tracked peers, got %d", len(bmgr.peers))
	}

	// Remove disconnected peer C.
	bmgr.RemovePeer(pC)

	bmgr.mtx.Lock()
	if len(bmgr.peers) != 2 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected 2 tracked peers, got %d", len(bmgr.peers))
	}
	bmgr.mtx.Unlock()

	// Ensure the ban manager updates the correct peer's ban score.
	if score := bmgr.BanScore(pB); score != 0 {
		t.Fatalf("expected an unchanged ban score for peer B, got %d", score)
	}

	expectedABanScore := uint32(50)
	if bmgr.AddBanScore(pA, expectedABanScore, 0, "testing") {
		t.Fatal("peer A banned below the ban threshold")
	}
	if score := bmgr.BanScore(pA); score != expectedABanScore {
		t.Fatalf("expected a ban score of %d for peer A, got %d",
			expectedABanScore, score)
	}

	// Ban peer A by exceeding the ban threshold.
	if !bmgr.AddBanScore(pA, 120, 0, "testing") {
		t.Fatal("peer A not banned above the ban threshold")
	}

	bmgr.mtx.Lock()
	_, ok := bmgr.peers[pA]
	bmgr.mtx.Unlock()
	if ok {
		t.Fatal("peer A still exists in the manager")
	}
	if pA.Connected() {
		t.Fatal("banned peer A is still connected")
	}

	// Outrightly ban peer B.
	bmgr.BanPeer(pB)

	bmgr.mtx.Lock()
	if len(bmgr.peers) != 0 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected no tracked peers, got %d", len(bmgr.peers))
	}

	// Ensure there are two banned peers being tracked by the manager.
	if len(bmgr.banned) != 2 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected two tracked banned peers, got %d", len(bmgr.banned))
	}
	bmgr.mtx.Unlock()

	if !bmgr.IsBanned("10.0.0.1") || !bmgr.IsBanned("10.0.0.2") {
		t.Fatalf("banned hosts not reported as banned: %v", bmgr.BannedHosts())
	}
	if bmgr.IsBanned("10.0.0.3") {
		t.Fatal("host of removed peer C reported as banned")
	}

	// Ensure re-adding a banned peer fails if it is before the ban period ends.
	err := bmgr.AddPeer(newTestPeer(t, "10.0.0.1"))
	if !errors.Is(err, peer.ErrBanned) {
		t.Fatalf("expected a ban error, got %v", err)
	}

	bmgr.mtx.Lock()
	if len(bmgr.peers) != 0 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected no tracked peers, got %d", len(bmgr.peers))
	}
	bmgr.mtx.Unlock()

	// Wait for the ban period to end.
	time.Sleep(time.Millisecond * 500)

	// Ensure re-adding a banned peer succeeds if it is after the ban period.
	if err := bmgr.AddPeer(newTestPeer(t, "10.0.0.1")); err != nil {
		t.Fatalf("unexpected err -%v\n", err)
	}

	bmgr.mtx.Lock()
	if len(bmgr.peers) != 1 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected a tracked peer, got %d", len(bmgr.peers))
	}
	bmgr.mtx.Unlock()

	// Peer B was banned for the same duration.
	if hosts := bmgr.BannedHosts(); len(hosts) != 0 {
		t.Fatalf("expected all bans to have expired, got %v", hosts)
	}
	if bmgr.IsBanned("10.0.0.2") {
		t.Fatal("host of peer B still banned after the ban period")
	}
}

// TestBanList ensures hosts from the configured ban list are refused
// permanently, even when score based banning is disabled.
func TestBanList(t *testing.T) {
	bmgr := NewBanManager(&Config{
		DisableBanning: true,
		BanList:        []string{"10.0.0.9", "abcdefghijklmnop.onion"},
	})

	if !bmgr.IsBanned("10.0.0.9") {
		t.Fatal("ban list host not banned")
	}
	if !bmgr.IsBanned("abcdefghijklmnop.onion") {
		t.Fatal("ban list onion host not banned")
	}
	if bmgr.IsBanned("10.0.0.10") {
		t.Fatal("unlisted host banned")
	}

	err := bmgr.AddPeer(newTestPeer(t, "10.0.0.9"))
	if !errors.Is(err, peer.ErrBanned) {
		t.Fatalf("expected a ban error, got %v", err)
	}

	// Score based bans are disabled.
	bmgr.BanHost("10.0.0.10")
	if bmgr.IsBanned("10.0.0.10") {
		t.Fatal("host banned while banning is disabled")
	}
	p := newTestPeer(t, "10.0.0.11")
	if err := bmgr.AddPeer(p); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if bmgr.AddBanScore(p, 1000, 0, "testing") {
		t.Fatal("peer banned while banning is disabled")
	}
}

// TestPeerWhitelist ensures the ban manager never bans whitelisted peers.
func TestPeerWhitelist(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("10.0.0.0/24")
	if err != nil {
		t.Fatalf("ParseCIDR: unexpected err %v", err)
	}

	bcfg := &Config{
		BanThreshold: 100,
		BanDuration:  time.Hour,
		MaxPeers:     10,
		WhiteList:    []net.IPNet{*ipnet},
	}
	bmgr := NewBanManager(bcfg)

	pA := newTestPeer(t, "10.0.0.1")
	pB := newTestPeer(t, "10.0.1.1")
	for _, p := range []*peer.Peer{pA, pB} {
		if err := bmgr.AddPeer(p); err != nil {
			t.Fatalf("unexpected err %v", err)
		}
	}

	if !bmgr.IsPeerWhitelisted(pA) {
		t.Fatal("expected peer A to be whitelisted")
	}
	if bmgr.IsPeerWhitelisted(pB) {
		t.Fatal("expected peer B to not be whitelisted")
	}

	if bmgr.AddBanScore(pA, 500, 0, "testing") {
		t.Fatal("whitelisted peer banned")
	}
	bmgr.BanPeer(pA)
	if bmgr.IsBanned("10.0.0.1") {
		t.Fatal("whitelisted host banned")
	}

	if !bmgr.AddBanScore(pB, 500, 0, "testing") {
		t.Fatal("peer B not banned")
	}
	if !bmgr.IsBanned("10.0.1.1") {
		t.Fatal("peer B host not banned")
	}
}

// remoteAddrConn overrides the transport address reported by a connection.
type remoteAddrConn struct {
	net.Conn
	remote net.Addr
}

func (c remoteAddrConn) RemoteAddr() net.Addr {
	return c.remote
}

// connectInbound returns an inbound peer with the passed transport address
// which completed the handshake with a remote advertising advertised.
func connectInbound(t *testing.T, transport, advertised string) *peer.Peer {
	t.Helper()

	cfg := func(host string) *peer.Config {
		return &peer.Config{
			Net:              wire.RegNet,
			ListenAddr:       wire.NewNodeAddress(host, 9999),
			UserAgent:        "peer/1.0",
			HandshakeTimeout: 5 * time.Second,
			AllowSelfConns:   true,
		}
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", transport)
	if err != nil {
		t.Fatalf("ResolveTCPAddr: unexpected err %v", err)
	}
	inConn, outConn := net.Pipe()
	in := peer.NewInboundPeer(cfg("10.0.0.1"))
	out := peer.NewOutboundPeer(cfg(advertised), wire.NewNodeAddress("10.0.0.1", 9999))
	inResult := in.AssociateConnection(remoteAddrConn{inConn, tcpAddr})
	outResult := out.AssociateConnection(outConn)
	for _, result := range []<-chan error{inResult, outResult} {
		select {
		case err := <-result:
			if err != nil {
				t.Fatalf("handshake failed: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("timeout waiting for handshake")
		}
	}
	t.Cleanup(out.Disconnect)
	return in
}

// TestBanInboundTransportAddr ensures inbound peers are banned by their
// transport address rather than the address they advertise, and that peers
// on a loopback transport address are disconnected without banning a host.
func TestBanInboundTransportAddr(t *testing.T) {
	bmgr := NewBanManager(&Config{
		BanThreshold: 100,
		BanDuration:  time.Hour,
		MaxPeers:     10,
	})

	p := connectInbound(t, "10.0.0.5:4000", "10.0.0.7")
	if p.NA().Host != "10.0.0.7" {
		t.Fatalf("advertised host: got %v", p.NA())
	}
	if err := bmgr.AddPeer(p); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	bmgr.BanPeer(p)
	if !bmgr.IsBanned("10.0.0.5") {
		t.Fatal("transport host of inbound peer not banned")
	}
	if bmgr.IsBanned("10.0.0.7") {
		t.Fatal("advertised host of inbound peer banned")
	}
	p.WaitForDisconnect()

	local := connectInbound(t, "127.0.0.1:4001", "10.0.0.8")
	if err := bmgr.AddPeer(local); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	bmgr.BanPeer(local)
	local.WaitForDisconnect()
	if hosts := bmgr.BannedHosts(); len(hosts) != 1 {
		t.Fatalf("expected only the transport host banned, got %v", hosts)
	}
}
