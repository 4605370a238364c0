// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2016-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/tradenet/wire"
)

const (
	// outputBufferSize is the number of elements the output channels use.
	outputBufferSize = 50

	// DefaultHandshakeTimeout is the default duration the version and verack
	// exchange is allowed to take.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultSendTimeout is the default duration a single message write is
	// allowed to take before the connection is considered dead.
	DefaultSendTimeout = 2 * time.Minute

	// maxKnownNonces is the number of locally generated version nonces
	// remembered for self connection detection.
	maxKnownNonces = 50
)

var (
	// nodeCount is the total number of peer connections made since startup
	// and is used to assign an id to a peer.
	nodeCount atomic.Int32

	// sentNonces houses the unique nonces that are generated when pushing
	// version messages that are used to detect self connections.  It serves
	// peers whose config does not provide its own set.
	sentNonces = NewNonceSet()
)

// NewNonceSet returns an empty set suitable for Config.SentNonces.
func NewNonceSet() *lru.Set[uint64] {
	return lru.NewSet[uint64](maxKnownNonces)
}

// MessageListeners defines callback function pointers to invoke with message
// listeners for a peer.  Any listener which is not set to a concrete callback
// during peer initialization is ignored.  Execution of multiple message
// listeners occurs serially, so one callback blocks the execution of the
// next.
//
// NOTE: Unless otherwise documented, these listeners must NOT directly call
// any blocking calls (such as WaitForDisconnect) on the peer instance since the
// input handler goroutine blocks until the callback has completed.  Doing so
// will result in a deadlock.
type MessageListeners struct {
	// OnVerAck is invoked once the version handshake completed and the
	// message handlers are running.  It runs in its own goroutine.
	OnVerAck func(p *Peer)

	// OnGetData is invoked when a peer receives a getdata message.
	OnGetData func(p *Peer, msg *wire.MsgGetData)

	// OnData is invoked when a peer receives a data message.
	OnData func(p *Peer, msg *wire.MsgData)

	// OnAddData is invoked when a peer receives an adddata message.
	OnAddData func(p *Peer, msg *wire.MsgAddData)

	// OnRemoveData is invoked when a peer receives a removedata message.
	OnRemoveData func(p *Peer, msg *wire.MsgRemoveData)

	// OnRefreshTTL is invoked when a peer receives a refreshttl message.
	OnRefreshTTL func(p *Peer, msg *wire.MsgRefreshTTL)

	// OnAddPayload is invoked when a peer receives an addpayload message.
	OnAddPayload func(p *Peer, msg *wire.MsgAddPayload)

	// OnGetPeers is invoked when a peer receives a getpeers message.
	OnGetPeers func(p *Peer, msg *wire.MsgGetPeers)

	// OnPeers is invoked when a peer receives a peers message.
	OnPeers func(p *Peer, msg *wire.MsgPeers)

	// OnPing is invoked when a peer receives a ping message.  The pong reply
	// is sent automatically.
	OnPing func(p *Peer, msg *wire.MsgPing)

	// OnPong is invoked when a peer receives a pong message.
	OnPong func(p *Peer, msg *wire.MsgPong)

	// OnClose is invoked when the remote peer announces it is closing the
	// connection.
	OnClose func(p *Peer, msg *wire.MsgClose)

	// OnRead is invoked when a peer receives a message.  It consists of the
	// number of bytes read, the message, and whether or not an error in the
	// read occurred.  Errors wrap ErrMalformedMessage when the remote peer
	// sent data that could not be decoded.
	OnRead func(p *Peer, bytesRead int, msg wire.Message, err error)

	// OnWrite is invoked when we write a message to a peer.  It consists of
	// the number of bytes written, the message, and whether or not an error
	// in the write occurred.
	OnWrite func(p *Peer, bytesWritten int, msg wire.Message, err error)
}

// Config is the struct to hold configuration options useful to Peer.
type Config struct {
	// Net identifies the overlay network the peer belongs to.
	Net wire.NetworkID

	// ProtocolVersion specifies the maximum protocol version to use and
	// advertise.  This field can be omitted in which case
	// wire.ProtocolVersion will be used.
	ProtocolVersion uint32

	// ListenAddr is the address advertised to the remote peer in the version
	// message.  It identifies the local node on the overlay.
	ListenAddr wire.NodeAddress

	// Capabilities specifies which capabilities to advertise as supported
	// by the local peer.
	Capabilities wire.Capability

	// UserAgent specifies the user agent to advertise.
	UserAgent string

	// IsBanned reports whether a host is banned.  It is consulted for both
	// the transport level remote host and the advertised address before the
	// handshake completes.  It may be nil.
	IsBanned func(host string) bool

	// HandshakeTimeout bounds the version and verack exchange.  Defaults to
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// SendTimeout bounds every message write.  Defaults to
	// DefaultSendTimeout.
	SendTimeout time.Duration

	// MsgThrottlePerSec and MsgThrottlePer10Sec are the inbound message
	// rates allowed before a message counts as a throttle violation.  They
	// default to DefaultMsgThrottlePerSec and DefaultMsgThrottlePer10Sec.
	MsgThrottlePerSec   int
	MsgThrottlePer10Sec int

	// ThrottleViolationLimit is the number of violations after which the
	// connection is closed.  Defaults to DefaultThrottleViolationLimit.
	ThrottleViolationLimit uint32

	// OnThrottled is invoked when the connection is closed for exceeding the
	// inbound message rates.  It may be nil.
	OnThrottled func(p *Peer)

	// Listeners houses callback functions to be invoked on receiving peer
	// messages.
	Listeners MessageListeners

	// SentNonces houses the version nonces sent by the local node.  All
	// peers of a node share one set so a connection between two of them is
	// detected as a self connection.  A process wide set is used when it is
	// nil.
	SentNonces *lru.Set[uint64]

	// AllowSelfConns is only used to allow the tests to bypass the self
	// connection detecting and disconnect logic since they intentionally
	// do so for testing purposes.
	AllowSelfConns bool
}

// outMsg is used to house a message to be sent along with a channel to
// signal when the message has been sent (or won't be sent due to things such
// as shutdown)
type outMsg struct {
	msg  wire.Message
	done chan<- error
}

// StatsSnap is a snapshot of peer stats at a point in time.
type StatsSnap struct {
	ID             int32
	Addr           string
	NA             wire.NodeAddress
	Capabilities   wire.Capability
	UserAgent      string
	Version        uint32
	Inbound        bool
	Persistent     bool
	Synced         bool
	ConnTime       time.Time
	LastSend       time.Time
	LastRecv       time.Time
	BytesSent      uint64
	BytesRecv      uint64
	MsgsSent       uint64
	MsgsRecv       uint64
	LastRoundTrip  time.Duration
	ThrottleEvents uint32
}

// Peer provides a basic concurrent safe overlay peer for handling
// communications via the overlay protocol.  It provides full duplex reading
// and writing, automatic handling of the initial handshake process, inbound
// rate limiting, replies to pings, and asynchronous delivery of received
// messages to the configured listeners.
//
// Outbound messages are typically queued via QueueMessage.  QueueMessage is
// intended for small messages and reports the outcome of the write on the
// optional done channel.
type Peer struct {
	// The following variables must only be used atomically.
	bytesReceived atomic.Uint64
	bytesSent     atomic.Uint64
	msgsReceived  atomic.Uint64
	msgsSent      atomic.Uint64
	lastRecv      atomic.Int64
	lastSend      atomic.Int64
	lastRoundTrip atomic.Int64
	connected     atomic.Bool
	disconnect    atomic.Bool
	persistent    atomic.Bool
	synced        atomic.Bool

	conn    net.Conn
	connMtx sync.Mutex

	// These fields are set at creation time and never modified, so they are
	// safe to read from concurrently without a mutex.
	addr     string
	cfg      Config
	inbound  bool
	throttle *inboundThrottle

	flagsMtx        sync.Mutex // protects the peer flags below
	na              wire.NodeAddress
	id              int32
	userAgent       string
	caps            wire.Capability
	protocolVersion uint32
	versionKnown    bool
	timeConnected   time.Time

	outputQueue   chan outMsg
	sendQueue     chan outMsg
	sendDoneQueue chan struct{}
	inQuit        chan struct{}
	queueQuit     chan struct{}
	outQuit       chan struct{}
	quit          chan struct{}
}

// String returns the peer's address and directionality as a human-readable
// string.
//
// This function is safe for concurrent access.
func (p *Peer) String() string {
	return fmt.Sprintf("%s (%s)", p.addr, directionString(p.inbound))
}

// ID returns the peer id.
//
// This function is safe for concurrent access.
func (p *Peer) ID() int32 {
	p.flagsMtx.Lock()
	id := p.id
	p.flagsMtx.Unlock()
	return id
}

// NA returns the overlay address of the peer.  For outbound peers it is the
// address that was dialed.  For inbound peers it is the address advertised
// in the version message and is zero until the handshake completes.
//
// This function is safe for concurrent access.
func (p *Peer) NA() wire.NodeAddress {
	p.flagsMtx.Lock()
	na := p.na
	p.flagsMtx.Unlock()
	return na
}

// Addr returns the transport level peer address.
//
// This function is safe for concurrent access.
func (p *Peer) Addr() string {
	// The address doesn't change after initialization, therefore it is not
	// protected by a mutex.
	return p.addr
}

// Inbound returns whether the peer is inbound.
//
// This function is safe for concurrent access.
func (p *Peer) Inbound() bool {
	return p.inbound
}

// Capabilities returns the capabilities advertised by the remote peer.
//
// This function is safe for concurrent access.
func (p *Peer) Capabilities() wire.Capability {
	p.flagsMtx.Lock()
	caps := p.caps
	p.flagsMtx.Unlock()
	return caps
}

// UserAgent returns the user agent of the remote peer.
//
// This function is safe for concurrent access.
func (p *Peer) UserAgent() string {
	p.flagsMtx.Lock()
	userAgent := p.userAgent
	p.flagsMtx.Unlock()
	return userAgent
}

// ProtocolVersion returns the negotiated peer protocol version.
//
// This function is safe for concurrent access.
func (p *Peer) ProtocolVersion() uint32 {
	p.flagsMtx.Lock()
	protocolVersion := p.protocolVersion
	p.flagsMtx.Unlock()
	return protocolVersion
}

// VersionKnown returns whether or not the version of a peer is known locally.
//
// This function is safe for concurrent access.
func (p *Peer) VersionKnown() bool {
	p.flagsMtx.Lock()
	versionKnown := p.versionKnown
	p.flagsMtx.Unlock()
	return versionKnown
}

// TimeConnected returns the time at which the peer connected.
//
// This function is safe for concurrent access.
func (p *Peer) TimeConnected() time.Time {
	p.flagsMtx.Lock()
	timeConnected := p.timeConnected
	p.flagsMtx.Unlock()
	return timeConnected
}

// SetPersistent marks the peer as a persistent connection which is never
// evicted to make room for others.
func (p *Peer) SetPersistent(persistent bool) {
	p.persistent.Store(persistent)
}

// Persistent returns whether the peer is a persistent connection.
func (p *Peer) Persistent() bool {
	return p.persistent.Load()
}

// SetSynced marks the peer as having completed the initial data sync.
func (p *Peer) SetSynced() {
	p.synced.Store(true)
}

// Synced returns whether the peer completed the initial data sync.
func (p *Peer) Synced() bool {
	return p.synced.Load()
}

// LastSend returns the last send time of the peer.
//
// This function is safe for concurrent access.
func (p *Peer) LastSend() time.Time {
	return time.Unix(0, p.lastSend.Load())
}

// LastRecv returns the last recv time of the peer.
//
// This function is safe for concurrent access.
func (p *Peer) LastRecv() time.Time {
	return time.Unix(0, p.lastRecv.Load())
}

// LastActivity returns the most recent time a message was sent to or received
// from the peer.
//
// This function is safe for concurrent access.
func (p *Peer) LastActivity() time.Time {
	return time.Unix(0, max(p.lastSend.Load(), p.lastRecv.Load()))
}

// SetLastRoundTrip records the round trip time measured for the most recent
// ping.
func (p *Peer) SetLastRoundTrip(d time.Duration) {
	p.lastRoundTrip.Store(int64(d))
}

// LastRoundTrip returns the round trip time measured for the most recent
// ping.
func (p *Peer) LastRoundTrip() time.Duration {
	return time.Duration(p.lastRoundTrip.Load())
}

// BytesSent returns the total number of bytes sent by the peer.
//
// This function is safe for concurrent access.
func (p *Peer) BytesSent() uint64 {
	return p.bytesSent.Load()
}

// BytesReceived returns the total number of bytes received by the peer.
//
// This function is safe for concurrent access.
func (p *Peer) BytesReceived() uint64 {
	return p.bytesReceived.Load()
}

// StatsSnapshot returns a snapshot of the current peer flags and statistics.
//
// This function is safe for concurrent access.
func (p *Peer) StatsSnapshot() *StatsSnap {
	p.flagsMtx.Lock()
	snap := &StatsSnap{
		ID:           p.id,
		Addr:         p.addr,
		NA:           p.na,
		Capabilities: p.caps,
		UserAgent:    p.userAgent,
		Version:      p.protocolVersion,
		Inbound:      p.inbound,
		ConnTime:     p.timeConnected,
	}
	p.flagsMtx.Unlock()

	snap.Persistent = p.Persistent()
	snap.Synced = p.Synced()
	snap.LastSend = p.LastSend()
	snap.LastRecv = p.LastRecv()
	snap.BytesSent = p.BytesSent()
	snap.BytesRecv = p.BytesReceived()
	snap.MsgsSent = p.msgsSent.Load()
	snap.MsgsRecv = p.msgsReceived.Load()
	snap.LastRoundTrip = p.LastRoundTrip()
	snap.ThrottleEvents = p.throttle.Violations()
	return snap
}

// isBanned reports whether the host is banned per the configured callback.
func (p *Peer) isBanned(host string) bool {
	return host != "" && p.cfg.IsBanned != nil && p.cfg.IsBanned(host)
}

// readMessage reads the next message from the peer with logging.  Malformed
// messages are returned as errors wrapping ErrMalformedMessage.
func (p *Peer) readMessage() (wire.Message, []byte, error) {
	n, msg, buf, err := wire.ReadMessageN(p.conn, p.ProtocolVersion(),
		p.cfg.Net)
	p.bytesReceived.Add(uint64(n))
	var merr wire.MessageError
	if errors.As(err, &merr) {
		err = Error{
			Err:         ErrMalformedMessage,
			Description: merr.Error(),
			recoverable: wire.IsFramingIntact(merr),
		}
	}
	if p.cfg.Listeners.OnRead != nil {
		p.cfg.Listeners.OnRead(p, n, msg, err)
	}
	if err != nil {
		return nil, nil, err
	}

	p.msgsReceived.Add(1)
	p.lastRecv.Store(time.Now().UnixNano())
	log.Debugf("Received %v%s from %s", msg.Command(),
		summaryString(msg), p)
	return msg, buf, nil
}

// summaryString returns the message summary prefixed for logging.
func summaryString(msg wire.Message) string {
	summary := messageSummary(msg)
	if len(summary) > 0 {
		summary = " (" + summary + ")"
	}
	return summary
}

// writeMessage sends a message to the peer with logging.
func (p *Peer) writeMessage(msg wire.Message) error {
	// Don't do anything if we're disconnecting.
	if p.disconnect.Load() {
		return makeError(ErrTransportClosed, "peer is disconnecting")
	}

	log.Debugf("Sending %v%s to %s", msg.Command(), summaryString(msg), p)

	if p.cfg.SendTimeout > 0 {
		p.conn.SetWriteDeadline(time.Now().Add(p.cfg.SendTimeout))
	}
	n, err := wire.WriteMessageN(p.conn, msg, p.ProtocolVersion(), p.cfg.Net)
	p.bytesSent.Add(uint64(n))
	if p.cfg.Listeners.OnWrite != nil {
		p.cfg.Listeners.OnWrite(p, n, msg, err)
	}
	if err != nil {
		return err
	}
	p.msgsSent.Add(1)
	p.lastSend.Store(time.Now().UnixNano())
	return nil
}

// shouldLogReadError returns whether or not the passed error, which is
// expected to have come from reading from the remote peer in the inHandler,
// should be logged.
func shouldLogReadError(err error) bool {
	// No logging when the peer is being forcibly disconnected.
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return false
	}

	// No logging when the remote peer has been disconnected.
	var opErr *net.OpError
	if errors.As(err, &opErr) && !opErr.Temporary() {
		return false
	}

	return true
}

// closeWithReason sends a best-effort close message carrying reason and
// disconnects the peer.
func (p *Peer) closeWithReason(reason string) {
	if err := p.writeMessage(wire.NewMsgClose(reason)); err != nil {
		log.Tracef("Unable to send close to %s: %v", p, err)
	}
	p.Disconnect()
}

// Close sends a close message carrying reason to the remote peer before
// disconnecting it.  The close message is queued behind any pending messages.
func (p *Peer) Close(reason string) {
	if !p.Connected() {
		p.Disconnect()
		return
	}
	done := make(chan error, 1)
	p.QueueMessage(wire.NewMsgClose(reason), done)
	go func() {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		p.Disconnect()
	}()
}

// inHandler handles all incoming messages for the peer.  It must be run as a
// goroutine.
func (p *Peer) inHandler() {
out:
	for !p.disconnect.Load() {
		rmsg, _, err := p.readMessage()
		var perr Error
		malformed := errors.As(err, &perr) &&
			errors.Is(perr, ErrMalformedMessage)
		if err != nil && !(malformed && perr.recoverable) {
			if !p.disconnect.Load() && shouldLogReadError(err) {
				log.Errorf("Can't read message from %s: %v", p, err)
			}
			if malformed {
				p.closeWithReason(wire.CloseReasonRuleViolated)
			}
			break out
		}

		// Rejected messages count against the inbound limits as well.
		if err := p.throttle.wait(time.Now(), p.quit); err != nil {
			log.Warnf("Closing abusive peer %s: %v", p, err)
			p.closeWithReason(wire.CloseReasonThrottled)
			if p.cfg.OnThrottled != nil {
				p.cfg.OnThrottled(p)
			}
			break out
		}

		// The message was read in full, so drop it and leave penalties to
		// the read listener.
		if malformed {
			log.Debugf("Dropping malformed message from %s: %v", p, err)
			continue
		}

		// Handle each supported message type.
		switch msg := rmsg.(type) {
		case *wire.MsgVersion, *wire.MsgVerAck:
			log.Debugf("Received duplicate %s from %s -- disconnecting",
				msg.Command(), p)
			p.closeWithReason(wire.CloseReasonRuleViolated)
			break out

		case *wire.MsgPing:
			p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
			if p.cfg.Listeners.OnPing != nil {
				p.cfg.Listeners.OnPing(p, msg)
			}

		case *wire.MsgPong:
			if p.cfg.Listeners.OnPong != nil {
				p.cfg.Listeners.OnPong(p, msg)
			}

		case *wire.MsgClose:
			log.Debugf("Peer %s is closing the connection: %s", p,
				msg.Reason)
			if p.cfg.Listeners.OnClose != nil {
				p.cfg.Listeners.OnClose(p, msg)
			}
			break out

		case *wire.MsgGetData:
			if p.cfg.Listeners.OnGetData != nil {
				p.cfg.Listeners.OnGetData(p, msg)
			}

		case *wire.MsgData:
			if p.cfg.Listeners.OnData != nil {
				p.cfg.Listeners.OnData(p, msg)
			}

		case *wire.MsgAddData:
			if p.cfg.Listeners.OnAddData != nil {
				p.cfg.Listeners.OnAddData(p, msg)
			}

		case *wire.MsgRemoveData:
			if p.cfg.Listeners.OnRemoveData != nil {
				p.cfg.Listeners.OnRemoveData(p, msg)
			}

		case *wire.MsgRefreshTTL:
			if p.cfg.Listeners.OnRefreshTTL != nil {
				p.cfg.Listeners.OnRefreshTTL(p, msg)
			}

		case *wire.MsgAddPayload:
			if p.cfg.Listeners.OnAddPayload != nil {
				p.cfg.Listeners.OnAddPayload(p, msg)
			}

		case *wire.MsgGetPeers:
			if p.cfg.Listeners.OnGetPeers != nil {
				p.cfg.Listeners.OnGetPeers(p, msg)
			}

		case *wire.MsgPeers:
			if p.cfg.Listeners.OnPeers != nil {
				p.cfg.Listeners.OnPeers(p, msg)
			}

		default:
			log.Debugf("Received unhandled message of type %v from %v",
				rmsg.Command(), p)
		}
	}

	// Ensure connection is closed.
	p.Disconnect()

	close(p.inQuit)
	log.Tracef("Peer input handler done for %s", p)
}

// queueHandler handles the queuing of outgoing data for the peer.  This runs
// as a muxer for various sources of input so we can ensure that the output
// handler doesn't block.  It must be run as a goroutine.
func (p *Peer) queueHandler() {
	pendingMsgs := list.New()

	// We keep the waiting flag so that we know if we have a message queued
	// to the outHandler or not.  We could use the presence of a head of
	// the list for this but then we have rather racy concerns about whether
	// it has gotten it at cleanup time - and thus who sends on the
	// message's done channel.  To avoid such confusion we keep a different
	// flag and pendingMsgs only contains messages that we have not yet
	// passed to outHandler.
	waiting := false

	// To avoid duplication below.
	queuePacket := func(msg outMsg, list *list.List, waiting bool) bool {
		if !waiting {
			p.sendQueue <- msg
		} else {
			list.PushBack(msg)
		}
		// we are always waiting now.
		return true
	}
out:
	for {
		select {
		case msg := <-p.outputQueue:
			waiting = queuePacket(msg, pendingMsgs, waiting)

		// This channel is notified when a message has been sent across
		// the network socket.
		case <-p.sendDoneQueue:
			// No longer waiting if there are no more messages in the
			// pending messages queue.
			next := pendingMsgs.Front()
			if next == nil {
				waiting = false
				continue
			}

			// Notify the outHandler about the next item to
			// asynchronously send.
			val := pendingMsgs.Remove(next)
			p.sendQueue <- val.(outMsg)

		case <-p.quit:
			break out
		}
	}

	// Drain any wait channels before we go away so we don't leave something
	// waiting for us.
	for e := pendingMsgs.Front(); e != nil; e = pendingMsgs.Front() {
		val := pendingMsgs.Remove(e)
		msg := val.(outMsg)
		if msg.done != nil {
			msg.done <- makeError(ErrTransportClosed, "peer disconnected")
		}
	}
cleanup:
	for {
		select {
		case msg := <-p.outputQueue:
			if msg.done != nil {
				msg.done <- makeError(ErrTransportClosed, "peer disconnected")
			}
		default:
			break cleanup
		}
	}
	close(p.queueQuit)
	log.Tracef("Peer queue handler done for %s", p)
}

// outHandler handles all outgoing messages for the peer.  It must be run as a
// goroutine.  It uses a buffered channel to serialize output messages while
// allowing the sender to continue running asynchronously.
func (p *Peer) outHandler() {
out:
	for {
		select {
		case msg := <-p.sendQueue:
			err := p.writeMessage(msg.msg)
			if err != nil {
				p.Disconnect()
				if shouldLogWriteError(err) {
					log.Errorf("Failed to send message to %s: %v", p, err)
				}
				if msg.done != nil {
					str := fmt.Sprintf("send %s failed: %v",
						msg.msg.Command(), err)
					msg.done <- makeError(ErrTransportClosed, str)
				}
			} else if msg.done != nil {
				msg.done <- nil
			}

			// At this point, the message was successfully sent or the
			// connection is closing, so inform the queue handler that
			// it can send the next message.
			select {
			case p.sendDoneQueue <- struct{}{}:
			case <-p.quit:
			}

		case <-p.quit:
			break out
		}
	}

	<-p.queueQuit

	// Drain any wait channels before we go away so we don't leave something
	// waiting for us.  We have waited on queueQuit and thus we can be sure
	// that we will not miss anything sent on sendQueue.
cleanup:
	for {
		select {
		case msg := <-p.sendQueue:
			if msg.done != nil {
				msg.done <- makeError(ErrTransportClosed, "peer disconnected")
			}
		default:
			break cleanup
		}
	}
	close(p.outQuit)
	log.Tracef("Peer output handler done for %s", p)
}

// shouldLogWriteError returns whether or not the passed error, which is
// expected to have come from writing to the remote peer in the outHandler,
// should be logged.
func shouldLogWriteError(err error) bool {
	// No logging when the peer is being forcibly disconnected.
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrTransportClosed) {
		return false
	}
	return true
}

// QueueMessage adds the passed message to the peer send queue.
//
// The done channel, when not nil, receives nil once the message was written
// to the connection or an error wrapping ErrTransportClosed if it could not
// be.  It must have room for one value so the output handler never blocks
// on it.
//
// This function is safe for concurrent access.
func (p *Peer) QueueMessage(msg wire.Message, done chan<- error) {
	// Avoid risk of deadlock if goroutine already exited.  The goroutine
	// we will be sending to hangs around until it knows for a fact that
	// it is marked as disconnected and *then* it drains the channels.
	if !p.Connected() {
		if done != nil {
			go func() {
				done <- makeError(ErrTransportClosed, "peer not connected")
			}()
		}
		return
	}
	select {
	case p.outputQueue <- outMsg{msg: msg, done: done}:
	case <-p.quit:
		if done != nil {
			go func() {
				done <- makeError(ErrTransportClosed, "peer disconnected")
			}()
		}
	}
}

// Connected returns whether or not the peer is currently connected.
//
// This function is safe for concurrent access.
func (p *Peer) Connected() bool {
	return p.connected.Load() && !p.disconnect.Load()
}

// Disconnect disconnects the peer by closing the connection.  Calling this
// function when the peer is already disconnected or in the process of
// disconnecting will have no effect.
func (p *Peer) Disconnect() {
	if p.disconnect.Swap(true) {
		return
	}

	log.Tracef("Disconnecting %s", p)
	p.connMtx.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.connMtx.Unlock()
	close(p.quit)
}

// readRemoteVersionMsg waits for the next message to arrive from the remote
// peer.  If the next message is not a version message or the version is not
// acceptable then return an error.
func (p *Peer) readRemoteVersionMsg() error {
	// Read their version message.
	msg, _, err := p.readMessage()
	if err != nil {
		return err
	}

	remoteVerMsg, ok := msg.(*wire.MsgVersion)
	if !ok {
		str := fmt.Sprintf("A version message must precede all others, "+
			"received %s", msg.Command())
		return makeError(ErrMalformedMessage, str)
	}

	// Detect self connections.
	if !p.cfg.AllowSelfConns && p.sentNonces().Contains(remoteVerMsg.Nonce) {
		return makeError(ErrSelfConnection, "disconnecting peer connected to self")
	}

	if remoteVerMsg.ProtocolVersion < wire.InitialProcotolVersion {
		str := fmt.Sprintf("protocol version must be %d or greater",
			wire.InitialProcotolVersion)
		return makeError(ErrProtocolVersion, str)
	}

	// Refuse banned hosts before any data is exchanged.
	remoteHost, _, _ := net.SplitHostPort(p.addr)
	if p.isBanned(remoteVerMsg.Addr.Host) || p.isBanned(remoteHost) {
		p.writeMessage(wire.NewMsgClose(wire.CloseReasonBanned))
		str := fmt.Sprintf("peer %s (advertised %s) is banned", p,
			remoteVerMsg.Addr)
		return makeError(ErrBanned, str)
	}

	// Negotiate the protocol version and set the capabilities to what the
	// remote peer advertised.
	p.flagsMtx.Lock()
	p.protocolVersion = min(p.protocolVersion, remoteVerMsg.ProtocolVersion)
	p.versionKnown = true
	p.caps = remoteVerMsg.Capabilities
	p.userAgent = remoteVerMsg.UserAgent
	if p.inbound {
		p.na = remoteVerMsg.Addr
	}
	p.flagsMtx.Unlock()
	log.Debugf("Negotiated protocol version %d for peer %s",
		p.ProtocolVersion(), p)
	return nil
}

// readRemoteVerAckMsg waits for the next message to arrive from the remote
// peer.  If this message is not a verack message, then an error is returned.
func (p *Peer) readRemoteVerAckMsg() error {
	msg, _, err := p.readMessage()
	if err != nil {
		return err
	}
	if _, ok := msg.(*wire.MsgVerAck); !ok {
		str := fmt.Sprintf("A verack message must follow version, "+
			"received %s", msg.Command())
		return makeError(ErrMalformedMessage, str)
	}
	return nil
}

// sentNonces returns the set of version nonces sent by the local node.
func (p *Peer) sentNonces() *lru.Set[uint64] {
	if p.cfg.SentNonces != nil {
		return p.cfg.SentNonces
	}
	return sentNonces
}

// localVersionMsg creates a version message that can be used to send to the
// remote peer.
func (p *Peer) localVersionMsg() *wire.MsgVersion {
	nonce := rand.Uint64()
	p.sentNonces().Put(nonce)

	msg := wire.NewMsgVersion(p.cfg.ListenAddr, p.cfg.Capabilities, nonce,
		p.cfg.UserAgent)
	msg.ProtocolVersion = p.cfg.ProtocolVersion
	return msg
}

// writeLocalVersionMsg writes our version message to the remote peer.
func (p *Peer) writeLocalVersionMsg() error {
	return p.writeMessage(p.localVersionMsg())
}

// negotiateInboundProtocol performs the negotiation protocol for an inbound
// peer.  The remote peer's version is read first, then ours is sent,
// followed by a verack from each side.
func (p *Peer) negotiateInboundProtocol() error {
	if err := p.readRemoteVersionMsg(); err != nil {
		return err
	}
	if err := p.writeLocalVersionMsg(); err != nil {
		return err
	}
	if err := p.writeMessage(wire.NewMsgVerAck()); err != nil {
		return err
	}
	return p.readRemoteVerAckMsg()
}

// negotiateOutboundProtocol performs the negotiation protocol for an outbound
// peer.  Our version is sent first, then the remote version and verack are
// read before our verack is sent.
func (p *Peer) negotiateOutboundProtocol() error {
	if err := p.writeLocalVersionMsg(); err != nil {
		return err
	}
	if err := p.readRemoteVersionMsg(); err != nil {
		return err
	}
	if err := p.readRemoteVerAckMsg(); err != nil {
		return err
	}
	return p.writeMessage(wire.NewMsgVerAck())
}

// start begins processing input and output messages once the handshake
// completed.
func (p *Peer) start() error {
	log.Tracef("Starting peer %s", p)

	negotiateErr := make(chan error, 1)
	go func() {
		if p.inbound {
			negotiateErr <- p.negotiateInboundProtocol()
		} else {
			negotiateErr <- p.negotiateOutboundProtocol()
		}
	}()

	// Negotiate the protocol within the specified timeout.
	timer := time.NewTimer(p.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case err := <-negotiateErr:
		if err != nil {
			p.Disconnect()
			return err
		}
	case <-timer.C:
		p.Disconnect()
		return makeError(ErrTimeout, "protocol negotiation timeout")
	}
	log.Debugf("Connected to %s", p)

	p.flagsMtx.Lock()
	p.timeConnected = time.Now()
	p.flagsMtx.Unlock()

	// The protocol has been negotiated successfully so start processing
	// input and output messages.
	go p.inHandler()
	go p.queueHandler()
	go p.outHandler()

	if p.cfg.Listeners.OnVerAck != nil {
		go p.cfg.Listeners.OnVerAck(p)
	}
	return nil
}

// AssociateConnection associates the given conn to the peer and starts the
// handshake in the background.  Calling this function when the peer is
// already connected will have no effect.  The returned channel receives the
// handshake result, nil on success, and is closed afterwards.
func (p *Peer) AssociateConnection(conn net.Conn) <-chan error {
	result := make(chan error, 1)

	// Already connected?
	if p.connected.Swap(true) {
		close(result)
		return result
	}

	p.connMtx.Lock()
	p.conn = conn
	p.connMtx.Unlock()

	if p.inbound {
		p.addr = conn.RemoteAddr().String()
	}

	go func() {
		err := p.start()
		if err != nil {
			log.Debugf("Cannot start peer %v: %v", p, err)
			p.Disconnect()
		}
		result <- err
		close(result)
	}()
	return result
}

// WaitForDisconnect waits until the peer has completely disconnected and all
// resources are cleaned up.  This will happen if either the local or remote
// side has been disconnected or the peer is forcibly disconnected via
// Disconnect.
func (p *Peer) WaitForDisconnect() {
	<-p.quit

	// Wait for the handlers when they were started.
	if p.TimeConnected().IsZero() {
		return
	}
	<-p.inQuit
	<-p.queueQuit
	<-p.outQuit
}

// newPeerBase returns a new base peer based on the inbound flag.  This
// is used by the NewInboundPeer and NewOutboundPeer functions to perform base
// setup needed by both types of peers.
func newPeerBase(origCfg *Config, inbound bool) *Peer {
	cfg := *origCfg // Copy to avoid mutating caller.

	// Default to the max supported protocol version if not specified by the
	// caller.
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = wire.ProtocolVersion
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.MsgThrottlePerSec <= 0 {
		cfg.MsgThrottlePerSec = DefaultMsgThrottlePerSec
	}
	if cfg.MsgThrottlePer10Sec <= 0 {
		cfg.MsgThrottlePer10Sec = DefaultMsgThrottlePer10Sec
	}
	if cfg.ThrottleViolationLimit == 0 {
		cfg.ThrottleViolationLimit = DefaultThrottleViolationLimit
	}

	p := Peer{
		inbound:         inbound,
		cfg:             cfg,
		throttle:        newInboundThrottle(cfg.MsgThrottlePerSec, cfg.MsgThrottlePer10Sec, cfg.ThrottleViolationLimit),
		id:              nodeCount.Add(1),
		protocolVersion: cfg.ProtocolVersion,
		outputQueue:     make(chan outMsg, outputBufferSize),
		sendQueue:       make(chan outMsg, 1),   // nonblocking sync
		sendDoneQueue:   make(chan struct{}, 1), // nonblocking sync
		inQuit:          make(chan struct{}),
		queueQuit:       make(chan struct{}),
		outQuit:         make(chan struct{}),
		quit:            make(chan struct{}),
	}
	return &p
}

// NewInboundPeer returns a new inbound peer.  Use AssociateConnection to
// start processing incoming and outgoing messages.
func NewInboundPeer(cfg *Config) *Peer {
	return newPeerBase(cfg, true)
}

// NewOutboundPeer returns a new outbound peer dialed at the passed overlay
// address.  Use AssociateConnection to start processing incoming and
// outgoing messages.
func NewOutboundPeer(cfg *Config, na wire.NodeAddress) *Peer {
	p := newPeerBase(cfg, false)
	p.addr = na.String()
	p.na = na
	return p
}
