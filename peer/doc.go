// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package peer provides a common base for creating and managing tradenet overlay
peers.

# Overview

This package builds upon the wire package, which provides the fundamental
primitives necessary to speak the overlay protocol, in order to provide a
concurrent safe peer with full duplex reading and writing, automatic handling
of the version handshake, replies to pings and per connection inbound rate
limiting.

A peer is created with NewInboundPeer or NewOutboundPeer and attached to an
established connection with AssociateConnection, which performs the handshake
in the background and reports the result on the returned channel.  During the
handshake the advertised address and the transport address of the remote peer
are checked against the configured IsBanned callback and banned peers are sent
a close message and disconnected before any data is exchanged.

# Inbound Rate Limiting

Every message read after the handshake is accounted against two token buckets,
one per second and one per ten seconds.  A message that exceeds either bucket
is a violation and delays further reads until both buckets have tokens again.
When a peer reaches the configured violation limit it is sent a close message,
disconnected and reported through the OnThrottled callback so the caller can
ban it.

# Callbacks

All received messages other than the handshake messages and pings are
delivered to the MessageListeners callbacks on the input handler goroutine.
The OnVerAck callback runs in its own goroutine once the handshake completed.

# Queuing Messages

QueueMessage adds a message to the send queue of the peer.  The optional done
channel receives nil once the message was written to the connection, or an
error wrapping ErrTransportClosed when the peer disconnected first.
*/
package peer
