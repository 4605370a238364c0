// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
)

// testTimeout bounds every wait of the server tests.
const testTimeout = 10 * time.Second

// newTestServer returns a running server without listeners or seed nodes
// backed by an in-memory data store.  The server is stopped when the test
// ends.
func newTestServer(t *testing.T) *server {
	t.Helper()

	dir := t.TempDir()
	tcfg := defaultConfig()
	tcfg.HomeDir = dir
	tcfg.DataDir = dir
	tcfg.LogDir = dir
	tcfg.NetworkID = uint32(wire.RegNet)
	tcfg.DisableListen = true
	tcfg.DisableSeeders = true
	tcfg.DisableAPI = true
	tcfg.GetDataTimeout = time.Second
	if err := tcfg.validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := newServer(ctx, &tcfg, datastore.NewMemStore())
	if err != nil {
		cancel()
		t.Fatalf("unable to create server: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server stopped with error: %v", err)
			}
		case <-time.After(testTimeout):
			t.Error("timeout waiting for server shutdown")
		}
	})
	return s
}

// connectRemote connects a remote node advertising 10.0.0.id to the server
// over an in-memory connection and waits until the server registered it.
func connectRemote(t *testing.T, s *server, id byte, listeners peer.MessageListeners) *peer.Peer {
	t.Helper()

	want := s.peerManager.NumConnected() + 1
	remoteCfg := &peer.Config{
		Net:              wire.RegNet,
		ListenAddr:       wire.NewNodeAddress(net.IPv4(10, 0, 0, id).String(), 9999),
		Capabilities:     wire.DefaultCapabilities,
		UserAgent:        "/tradenet-test:0.1.0/",
		HandshakeTimeout: 5 * time.Second,
		Listeners:        listeners,
	}
	localConn, remoteConn := net.Pipe()
	remote := peer.NewOutboundPeer(remoteCfg, s.cfg.self)
	result := remote.AssociateConnection(remoteConn)
	s.inboundPeerConnected(localConn)
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("handshake of remote %d failed: %v", id, err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("timeout waiting for handshake of remote %d", id)
	}
	t.Cleanup(remote.Disconnect)

	waitFor(t, "registration of remote", func() bool {
		return s.peerManager.NumConnected() == want
	})
	return remote
}

// waitFor polls cond until it holds or fails the test.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// signedEntry returns an offer entry signed by the key derived from seed.
func signedEntry(t *testing.T, seed byte, data string, seq uint32) *wire.ProtectedEntry {
	t.Helper()
	var b [32]byte
	b[0], b[31] = 0x01, seed
	priv := secp256k1.PrivKeyFromBytes(b[:])
	e := &wire.ProtectedEntry{
		Payload: wire.StoragePayload{
			Type: wire.PayloadOffer,
			TTL:  300,
			Data: []byte(data),
		},
		SequenceNumber: seq,
		CreationTime:   time.Now().Truncate(time.Second),
	}
	if err := wire.SignEntry(e, wire.SigOpStore, priv); err != nil {
		t.Fatalf("unable to sign entry: %v", err)
	}
	return e
}

// addDataRecorder records the sequence numbers of the adddata messages a
// remote node receives.
type addDataRecorder struct {
	mtx  sync.Mutex
	seqs []uint32
}

func (r *addDataRecorder) listeners() peer.MessageListeners {
	return peer.MessageListeners{
		OnAddData: func(p *peer.Peer, msg *wire.MsgAddData) {
			r.mtx.Lock()
			r.seqs = append(r.seqs, msg.Entry.SequenceNumber)
			r.mtx.Unlock()
		},
	}
}

// count returns the number of received adddata messages with sequence number
// seq.
func (r *addDataRecorder) count(seq uint32) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var n int
	for _, s := range r.seqs {
		if s == seq {
			n++
		}
	}
	return n
}

// TestStaleThenAccepted ensures a stale update received from a peer is
// ignored without penalty while a newer one is stored and relayed exactly once
// to every connection except the one it came from.
func TestStaleThenAccepted(t *testing.T) {
	s := newTestServer(t)

	e5 := signedEntry(t, 1, "offer", 5)
	hash := e5.PayloadHash()
	if err := s.Publish(wire.NewMsgAddData(e5)); err != nil {
		t.Fatalf("unable to publish entry: %v", err)
	}

	var events []datastore.Event
	var eventsMtx sync.Mutex
	cancel := s.OnUpdate(func(ev datastore.Event) {
		eventsMtx.Lock()
		events = append(events, ev)
		eventsMtx.Unlock()
	})
	defer cancel()

	recorders := make([]*addDataRecorder, 3)
	remotes := make([]*peer.Peer, 3)
	for i := range remotes {
		recorders[i] = new(addDataRecorder)
		remotes[i] = connectRemote(t, s, byte(i+1), recorders[i].listeners())
	}

	// The origin repeats the stored version before sending the update.
	e6 := signedEntry(t, 1, "offer", 6)
	origin := remotes[0]
	origin.QueueMessage(wire.NewMsgAddData(e5), nil)
	origin.QueueMessage(wire.NewMsgAddData(e6), nil)

	waitFor(t, "accepted update", func() bool {
		seq, ok := s.dataStore.SequenceNumber(&hash)
		return ok && seq == 6
	})
	for i := 1; i < len(recorders); i++ {
		r := recorders[i]
		waitFor(t, "relay of update", func() bool { return r.count(6) > 0 })
	}

	// Give the broadcaster time to send duplicates.
	time.Sleep(500 * time.Millisecond)
	if n := recorders[0].count(6); n != 0 {
		t.Fatalf("origin received %d copies of its own update", n)
	}
	for i := 1; i < len(recorders); i++ {
		if n := recorders[i].count(6); n != 1 {
			t.Fatalf("remote %d received %d copies of the update, want 1",
				i+1, n)
		}
	}

	for _, p := range s.peerManager.ConnectedPeers() {
		if score := s.banManager.BanScore(p); score != 0 {
			t.Fatalf("peer %s has ban score %d after a stale update", p,
				score)
		}
	}

	eventsMtx.Lock()
	defer eventsMtx.Unlock()
	if len(events) != 1 || events[0].Kind != datastore.EventAdded ||
		events[0].Entry.SequenceNumber != 6 {

		t.Fatalf("unexpected update events: %v", spew.Sdump(events))
	}
}

// TestRepeatedInvalidData ensures invalid data adds to the ban score of the
// sender every time and is remembered to skip validating copies of it.
func TestRepeatedInvalidData(t *testing.T) {
	s := newTestServer(t)
	remote := connectRemote(t, s, 1, peer.MessageListeners{})

	e := signedEntry(t, 1, "offer", 1)
	e.Payload.Data = []byte("tampered")
	msg := wire.NewMsgAddData(e)
	remote.QueueMessage(msg, nil)
	remote.QueueMessage(msg, nil)

	sp := s.peerManager.ConnectedPeers()[0]
	waitFor(t, "ban score of repeated invalid data", func() bool {
		return s.banManager.BanScore(sp) > invalidDataScore
	})
	if n := s.recentlyRejected.Len(); n != 1 {
		t.Fatalf("recently rejected: got %d messages, want 1", n)
	}
	if s.dataStore.Len() != 0 {
		t.Fatalf("invalid entry was stored")
	}
}

// TestPublish ensures only data messages are published and published data is
// returned by queries.
func TestPublish(t *testing.T) {
	s := newTestServer(t)

	if err := s.Publish(wire.NewMsgPing(1, 0)); err == nil {
		t.Fatal("published a ping message")
	}

	e := signedEntry(t, 2, "offer", 1)
	if err := s.Publish(wire.NewMsgAddData(e)); err != nil {
		t.Fatalf("unable to publish entry: %v", err)
	}
	stale := signedEntry(t, 2, "offer", 1)
	if err := s.Publish(wire.NewMsgAddData(stale)); err == nil {
		t.Fatal("published a stale entry")
	}

	entries, payloads := s.Query(&datastore.Filter{})
	if len(entries) != 1 || len(payloads) != 0 {
		t.Fatalf("query: got %d entries and %d payloads, want 1 and 0",
			len(entries), len(payloads))
	}
	if entries[0].PayloadHash() != e.PayloadHash() {
		t.Fatalf("query returned entry %v", entries[0].PayloadHash())
	}
}
