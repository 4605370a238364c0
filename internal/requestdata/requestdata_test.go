// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package requestdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/wire"
)

// testPeer is a fake peer that hands queued messages to a handler.
type testPeer struct {
	id      int32
	caps    wire.Capability
	handler func(msg wire.Message)

	mtx  sync.Mutex
	sent []wire.Message
}

func (p *testPeer) ID() int32                     { return p.id }
func (p *testPeer) Capabilities() wire.Capability { return p.caps }

func (p *testPeer) QueueMessage(msg wire.Message, done chan<- error) {
	p.mtx.Lock()
	p.sent = append(p.sent, msg)
	p.mtx.Unlock()
	if p.handler != nil {
		go p.handler(msg)
	}
}

func (p *testPeer) lastSent() wire.Message {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if len(p.sent) == 0 {
		return nil
	}
	return p.sent[len(p.sent)-1]
}

func testKey(seed byte) *secp256k1.PrivateKey {
	var b [32]byte
	b[0], b[31] = 0x01, seed
	return secp256k1.PrivKeyFromBytes(b[:])
}

// newEntry returns a signed offer entry created now.
func newEntry(t *testing.T, data string, seq uint32) *wire.ProtectedEntry {
	t.Helper()
	e := &wire.ProtectedEntry{
		Payload: wire.StoragePayload{
			Type: wire.PayloadOffer,
			TTL:  300,
			Data: []byte(data),
		},
		SequenceNumber: seq,
		CreationTime:   time.Now(),
	}
	if err := wire.SignEntry(e, wire.SigOpStore, testKey(1)); err != nil {
		t.Fatal(err)
	}
	return e
}

func newDataStore(t *testing.T) *datastore.DataStore {
	t.Helper()
	ds, err := datastore.New(&datastore.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

// TestSync ensures a new connection receives exactly the items it is missing
// and that they are stored.
func TestSync(t *testing.T) {
	remoteStore := newDataStore(t)
	localStore := newDataStore(t)

	shared := newEntry(t, "shared", 1)
	for _, ds := range []*datastore.DataStore{remoteStore, localStore} {
		if err := ds.AddProtectedEntry(shared, nil, false); err != nil {
			t.Fatal(err)
		}
	}
	var missing []chainhash.Hash
	for i := 0; i < 3; i++ {
		e := newEntry(t, fmt.Sprintf("offer %d", i), 1)
		if err := remoteStore.AddProtectedEntry(e, nil, false); err != nil {
			t.Fatal(err)
		}
		missing = append(missing, e.PayloadHash())
	}
	stats := &wire.PersistablePayload{Type: wire.PayloadTradeStatistics, Data: []byte("s")}
	if err := remoteStore.AddPersistablePayload(stats, nil, false); err != nil {
		t.Fatal(err)
	}
	missing = append(missing, stats.Hash())

	var mtx sync.Mutex
	received := make(map[chainhash.Hash]struct{})
	var synced bool
	local := New(&Config{
		DataStore: localStore,
		OnReceived: func(p Peer, hash chainhash.Hash) {
			mtx.Lock()
			received[hash] = struct{}{}
			mtx.Unlock()
		},
		OnSynced: func(p Peer) { synced = true },
	})
	remote := New(&Config{DataStore: remoteStore})

	// The remote side of the connection answers with the local side's view
	// of the same connection.
	localView := &testPeer{id: 1, caps: wire.DefaultCapabilities}
	remoteView := &testPeer{id: 2, caps: wire.DefaultCapabilities}
	localView.handler = func(msg wire.Message) {
		if err := remote.OnGetData(remoteView, msg.(*wire.MsgGetData)); err != nil {
			t.Errorf("OnGetData: %v", err)
		}
	}
	remoteView.handler = func(msg wire.Message) {
		local.OnData(localView, msg.(*wire.MsgData))
	}

	if err := local.OnConnected(context.Background(), localView); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	if !synced {
		t.Fatal("peer not marked synced")
	}
	for _, hash := range missing {
		if _, ok := localStore.Entry(&hash); !ok && !localStore.HasPayload(&hash) {
			t.Fatalf("item %v not synchronized", hash)
		}
		if _, ok := received[hash]; !ok {
			t.Fatalf("item %v not reported", hash)
		}
	}
	resp := remoteView.lastSent().(*wire.MsgData)
	if len(resp.Entries) != 3 || len(resp.Payloads) != 1 || resp.Truncated {
		t.Fatalf("unexpected response: %d entries, %d payloads, truncated %v",
			len(resp.Entries), len(resp.Payloads), resp.Truncated)
	}
}

// TestTimeout ensures an unanswered request fails with ErrTimeout and allows
// a new request afterwards.
func TestTimeout(t *testing.T) {
	m := New(&Config{DataStore: newDataStore(t), Timeout: 20 * time.Millisecond})
	p := &testPeer{id: 1}

	err := m.OnConnected(context.Background(), p)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrTimeout)
	}
	getData := p.lastSent().(*wire.MsgGetData)

	// A late answer is ignored.
	if m.OnData(p, wire.NewMsgData(getData.Nonce)) {
		t.Fatal("late response was accepted")
	}

	err = m.OnConnected(context.Background(), p)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrTimeout)
	}
}

// TestSinglePendingRequest ensures there is at most one outstanding request
// per peer and responses with another nonce are ignored.
func TestSinglePendingRequest(t *testing.T) {
	m := New(&Config{DataStore: newDataStore(t), Timeout: time.Minute})
	sent := make(chan *wire.MsgGetData, 1)
	p := &testPeer{id: 1}
	p.handler = func(msg wire.Message) { sent <- msg.(*wire.MsgGetData) }

	result := make(chan error, 1)
	go func() { result <- m.OnConnected(context.Background(), p) }()
	getData := <-sent

	err := m.OnConnected(context.Background(), p)
	if !errors.Is(err, ErrRequestPending) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrRequestPending)
	}

	if m.OnData(p, wire.NewMsgData(getData.Nonce+1)) {
		t.Fatal("response with wrong nonce accepted")
	}
	if !m.OnData(p, wire.NewMsgData(getData.Nonce)) {
		t.Fatal("response not accepted")
	}
	if err := <-result; err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
}

// TestCancel ensures a pending request returns when the context is cancelled.
func TestCancel(t *testing.T) {
	m := New(&Config{DataStore: newDataStore(t), Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.OnConnected(ctx, &testPeer{id: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: got %v, want %v", err, context.Canceled)
	}
}

// TestGetDataLimits ensures responses are truncated at the configured limit
// and only contain payload types the requester supports.
func TestGetDataLimits(t *testing.T) {
	ds := newDataStore(t)
	for i := 0; i < 3; i++ {
		if err := ds.AddProtectedEntry(newEntry(t, fmt.Sprint(i), 1), nil, false); err != nil {
			t.Fatal(err)
		}
	}
	payloads := []*wire.PersistablePayload{
		{Type: wire.PayloadTradeStatistics, Data: []byte("stats")},
		{Type: wire.PayloadAccountAgeWitness, Data: []byte("witness")},
	}
	for _, pl := range payloads {
		if err := ds.AddPersistablePayload(pl, nil, false); err != nil {
			t.Fatal(err)
		}
	}

	m := New(&Config{DataStore: ds, MaxEntries: 2})
	p := &testPeer{id: 1, caps: wire.CapAccountAgeWitness}
	if err := m.OnGetData(p, wire.NewMsgGetData(7)); err != nil {
		t.Fatal(err)
	}
	resp := p.lastSent().(*wire.MsgData)
	if resp.Nonce != 7 || len(resp.Entries) != 2 || !resp.Truncated {
		t.Fatalf("unexpected response: nonce %d, %d entries, truncated %v",
			resp.Nonce, len(resp.Entries), resp.Truncated)
	}
	if len(resp.Payloads) != 0 {
		// Entries truncated the response before the payloads.
		t.Fatalf("unexpected payloads in truncated response: %d",
			len(resp.Payloads))
	}

	// Known entries are left out so the rest fits.
	req := wire.NewMsgGetData(8)
	for _, hash := range ds.Hashes() {
		if _, ok := ds.Entry(&hash); ok {
			req.AddHash(&hash)
			break
		}
	}
	if err := m.OnGetData(p, req); err != nil {
		t.Fatal(err)
	}
	resp = p.lastSent().(*wire.MsgData)
	if len(resp.Entries) != 2 || resp.Truncated {
		t.Fatalf("unexpected response: %d entries, truncated %v",
			len(resp.Entries), resp.Truncated)
	}
	if len(resp.Payloads) != 1 || resp.Payloads[0].Type != wire.PayloadAccountAgeWitness {
		t.Fatalf("unexpected payloads: %v", resp.Payloads)
	}
}

// TestRejectedItems ensures invalid items in a response are reported while
// benign refusals are not.
func TestRejectedItems(t *testing.T) {
	ds := newDataStore(t)
	known := newEntry(t, "known", 2)
	if err := ds.AddProtectedEntry(known, nil, false); err != nil {
		t.Fatal(err)
	}

	var rejected []error
	m := New(&Config{
		DataStore:  ds,
		OnRejected: func(p Peer, err error) { rejected = append(rejected, err) },
	})

	bad := newEntry(t, "bad", 1)
	bad.Signature[5] ^= 0x01
	resp := wire.NewMsgData(1)
	resp.Entries = append(resp.Entries, newEntry(t, "known", 1), bad,
		newEntry(t, "new", 1))

	if n := m.process(&testPeer{id: 1}, resp); n != 1 {
		t.Fatalf("unexpected number of new items: got %d, want 1", n)
	}
	if len(rejected) != 1 || !datastore.IsBannable(rejected[0]) {
		t.Fatalf("unexpected rejections: %v", rejected)
	}
}
