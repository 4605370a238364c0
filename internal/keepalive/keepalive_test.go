// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keepalive

import (
	"testing"
	"time"

	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
)

// Ensure *peer.Peer implements the Peer interface.
var _ Peer = (*peer.Peer)(nil)

// testPeer is a fake peer with settable activity times.
type testPeer struct {
	id          int32
	connected   time.Time
	lastSend    time.Time
	lastRecv    time.Time
	rtt         time.Duration
	sent        []wire.Message
	closeReason string
}

func (p *testPeer) ID() int32                        { return p.id }
func (p *testPeer) TimeConnected() time.Time         { return p.connected }
func (p *testPeer) LastRecv() time.Time              { return p.lastRecv }
func (p *testPeer) LastRoundTrip() time.Duration     { return p.rtt }
func (p *testPeer) SetLastRoundTrip(d time.Duration) { p.rtt = d }
func (p *testPeer) Close(reason string)              { p.closeReason = reason }

func (p *testPeer) LastActivity() time.Time {
	if p.lastSend.After(p.lastRecv) {
		return p.lastSend
	}
	return p.lastRecv
}

func (p *testPeer) QueueMessage(msg wire.Message, done chan<- error) {
	p.sent = append(p.sent, msg)
}

// TestKeepAlive ensures quiet connections are pinged, idle ones closed and
// round trip times recorded.
func TestKeepAlive(t *testing.T) {
	now := time.Unix(1700000000, 0)
	start := now.Add(-time.Hour)
	active := &testPeer{id: 1, connected: start, lastRecv: now.Add(-5 * time.Second)}
	quiet := &testPeer{id: 2, connected: start, lastRecv: now.Add(-20 * time.Second),
		rtt: 1500 * time.Millisecond}
	idle := &testPeer{id: 3, connected: start, lastRecv: now.Add(-2 * time.Minute),
		lastSend: now}
	fresh := &testPeer{id: 4, connected: now.Add(-10 * time.Second)}

	m := New(&Config{Peers: func() []Peer {
		return []Peer{active, quiet, idle, fresh}
	}})
	m.now = func() time.Time { return now }
	m.check()

	if len(active.sent) != 0 || active.closeReason != "" {
		t.Fatal("active connection was pinged or closed")
	}
	if idle.closeReason != wire.CloseReasonIdle {
		t.Fatalf("idle connection not closed: reason %q", idle.closeReason)
	}
	if len(idle.sent) != 0 {
		t.Fatal("idle connection was pinged")
	}
	if fresh.closeReason != "" {
		t.Fatal("new connection was closed")
	}
	if len(quiet.sent) != 1 {
		t.Fatalf("quiet connection received %d messages, want 1", len(quiet.sent))
	}
	msg := quiet.sent[0].(*wire.MsgPing)
	if msg.LastRoundTrip != 1500 {
		t.Fatalf("unexpected reported round trip: %d", msg.LastRoundTrip)
	}

	// A pong with another nonce is ignored.
	now = now.Add(250 * time.Millisecond)
	m.OnPong(quiet, wire.NewMsgPong(msg.Nonce+1))
	if quiet.rtt != 1500*time.Millisecond {
		t.Fatal("round trip recorded for unknown pong")
	}
	m.OnPong(quiet, wire.NewMsgPong(msg.Nonce))
	if quiet.rtt != 250*time.Millisecond {
		t.Fatalf("unexpected round trip: %v", quiet.rtt)
	}

	// A second pong with the same nonce is ignored.
	now = now.Add(time.Second)
	m.OnPong(quiet, wire.NewMsgPong(msg.Nonce))
	if quiet.rtt != 250*time.Millisecond {
		t.Fatalf("unexpected round trip: %v", quiet.rtt)
	}
}

// TestNextInterval ensures the randomized interval stays near the
// configured one.
func TestNextInterval(t *testing.T) {
	m := New(&Config{Interval: 30 * time.Second})
	for i := 0; i < 1000; i++ {
		d := m.nextInterval()
		if d < 27*time.Second || d > 33*time.Second {
			t.Fatalf("interval %v out of range", d)
		}
	}
}
